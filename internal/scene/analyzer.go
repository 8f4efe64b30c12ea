package scene

import (
	"context"
	"sync"
	"time"

	"meshrouter/internal/backend"
	"meshrouter/internal/logging"
)

// Analyzer queries the backend for scene state and caches the resulting
// snapshot for a short time window. Cached snapshots are returned with
// their hot fields (mode, active object, selection, edit-mode selection
// counts) re-fetched from the backend before every return.
//
// Any backend failure degrades to an empty snapshot; Analyze never
// returns an error. The time-based freshness check is not a lock: the
// Analyzer assumes one in-flight pipeline call at a time, and the
// internal mutex only protects the cache pointer itself.
type Analyzer struct {
	mu      sync.Mutex
	backend backend.Backend
	ttl     time.Duration
	cached  *SceneSnapshot
}

// NewAnalyzer creates an analyzer with the given cache TTL.
func NewAnalyzer(b backend.Backend, ttl time.Duration) *Analyzer {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Analyzer{backend: b, ttl: ttl}
}

// Analyze returns the current scene snapshot, from cache when fresh.
// objectID optionally narrows detail queries to a specific object;
// empty means the active object.
func (a *Analyzer) Analyze(ctx context.Context, objectID string) *SceneSnapshot {
	timer := logging.StartTimer(logging.CategoryScene, "Analyze")
	defer timer.Stop()

	a.mu.Lock()
	cached := a.cached
	a.mu.Unlock()

	if cached != nil && time.Since(cached.CapturedAt) < a.ttl {
		logging.SceneDebug("cache hit (age=%v)", time.Since(cached.CapturedAt))
		return a.refreshHotFields(ctx, cached)
	}

	snap := a.capture(ctx, objectID)
	if snap == nil {
		logging.Get(logging.CategoryScene).Warn("backend unreachable, returning empty snapshot")
		return EmptySnapshot()
	}

	a.mu.Lock()
	a.cached = snap
	a.mu.Unlock()

	return snap.Clone()
}

// InvalidateCache clears the cached snapshot unconditionally.
func (a *Analyzer) InvalidateCache() {
	a.mu.Lock()
	a.cached = nil
	a.mu.Unlock()
	logging.SceneDebug("cache invalidated")
}

// HasSelection reports whether anything is selected, consulting the
// cache first and issuing a selection-only backend query otherwise.
func (a *Analyzer) HasSelection(ctx context.Context) bool {
	a.mu.Lock()
	cached := a.cached
	a.mu.Unlock()

	if cached != nil && time.Since(cached.CapturedAt) < a.ttl {
		return cached.HasSelection()
	}

	resp := a.backend.Send(ctx, backend.CmdGetState, nil)
	if !resp.OK() {
		return false
	}
	if len(asStringSlice(resp.Result["selected_objects"])) > 0 {
		return true
	}
	if ParseMode(asString(resp.Result["mode"])) == ModeEdit {
		sel := a.backend.Send(ctx, backend.CmdGetEditSelection, nil)
		if sel.OK() {
			return parseTopology(sel.Result).HasSelection()
		}
	}
	return false
}

// refreshHotFields returns a copy of the cached snapshot with mode,
// active object, selection, and (in edit mode) selection counts
// re-fetched. Topology beyond the hot counts is never refreshed from
// here, and is cleared entirely when the backend left edit mode.
func (a *Analyzer) refreshHotFields(ctx context.Context, cached *SceneSnapshot) *SceneSnapshot {
	snap := cached.Clone()

	resp := a.backend.Send(ctx, backend.CmdGetState, nil)
	if !resp.OK() {
		// Degrade to the cached values as-is.
		return snap
	}

	snap.Mode = ParseMode(asString(resp.Result["mode"]))
	snap.ActiveObject = asString(resp.Result["active_object"])
	snap.SelectedObjects = make(map[string]bool)
	for _, id := range asStringSlice(resp.Result["selected_objects"]) {
		snap.SelectedObjects[id] = true
	}

	if snap.Mode != ModeEdit {
		snap.Topology = nil
		return snap
	}

	sel := a.backend.Send(ctx, backend.CmdGetEditSelection, nil)
	if sel.OK() {
		fresh := parseTopology(sel.Result)
		if snap.Topology == nil {
			snap.Topology = fresh
		} else {
			snap.Topology.SelectedVertices = fresh.SelectedVertices
			snap.Topology.SelectedEdges = fresh.SelectedEdges
			snap.Topology.SelectedFaces = fresh.SelectedFaces
		}
	}
	return snap
}

// capture issues the full fixed query sequence. Returns nil when the
// initial state query fails (backend unreachable).
func (a *Analyzer) capture(ctx context.Context, objectID string) *SceneSnapshot {
	state := a.backend.Send(ctx, backend.CmdGetState, nil)
	if !state.OK() {
		return nil
	}

	snap := &SceneSnapshot{
		Mode:            ParseMode(asString(state.Result["mode"])),
		ActiveObject:    asString(state.Result["active_object"]),
		SelectedObjects: make(map[string]bool),
		CapturedAt:      time.Now(),
	}
	for _, id := range asStringSlice(state.Result["selected_objects"]) {
		snap.SelectedObjects[id] = true
	}

	objects := a.backend.Send(ctx, backend.CmdGetObjects, nil)
	if objects.OK() {
		snap.Objects = parseObjects(objects.Result["objects"])
	}

	target := objectID
	if target == "" {
		target = snap.ActiveObject
	}
	if target != "" {
		detail := a.backend.Send(ctx, backend.CmdGetObjectDetail, map[string]any{"object": target})
		if detail.OK() {
			dims := asFloatSlice(detail.Result["dimensions"])
			if len(dims) == 3 {
				p := CalculateProportions(dims)
				snap.Proportions = &p
				// Keep the object list consistent with the detail query.
				for i := range snap.Objects {
					if snap.Objects[i].ID == target {
						copy(snap.Objects[i].Dimensions[:], dims)
					}
				}
			}
			snap.Materials = asStringSlice(detail.Result["materials"])
			snap.Modifiers = asStringSlice(detail.Result["modifiers"])
		}
	}

	if snap.Mode == ModeEdit {
		sel := a.backend.Send(ctx, backend.CmdGetEditSelection, nil)
		if sel.OK() {
			snap.Topology = parseTopology(sel.Result)
		}
	}

	logging.SceneDebug("captured snapshot: mode=%s objects=%d active=%q",
		snap.Mode, len(snap.Objects), snap.ActiveObject)
	return snap
}

// ----- backend result parsing -----

func parseObjects(v any) []ObjectInfo {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ObjectInfo, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		info := ObjectInfo{
			ID:       asString(m["id"]),
			Kind:     asString(m["kind"]),
			Selected: asBool(m["selected"]),
			Active:   asBool(m["active"]),
		}
		copyVec(&info.Location, asFloatSlice(m["location"]))
		copyVec(&info.Dimensions, asFloatSlice(m["dimensions"]))
		out = append(out, info)
	}
	return out
}

func parseTopology(m map[string]any) *TopologyInfo {
	return &TopologyInfo{
		Vertices:         asInt(m["vertices"]),
		Edges:            asInt(m["edges"]),
		Faces:            asInt(m["faces"]),
		SelectedVertices: asInt(m["selected_vertices"]),
		SelectedEdges:    asInt(m["selected_edges"]),
		SelectedFaces:    asInt(m["selected_faces"]),
	}
}

func copyVec(dst *[3]float64, src []float64) {
	for i := 0; i < 3 && i < len(src); i++ {
		dst[i] = src[i]
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asFloatSlice(v any) []float64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		out = append(out, asFloat(item))
	}
	return out
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		// Already-typed slices show up from in-process fakes.
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
