// Package workflow holds multi-step modeling workflow definitions and
// the machinery that decides when to run one, expands it into concrete
// tool calls, and trims it down when the match confidence is weak.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"meshrouter/internal/logging"
)

// Step is one tool call template inside a workflow. Param values may
// contain $name placeholders resolved against the originating call.
// Optional steps are the first to go when confidence is low.
type Step struct {
	Tool        string         `yaml:"tool"`
	Params      map[string]any `yaml:"params"`
	Optional    bool           `yaml:"optional"`
	Description string         `yaml:"description"`
}

// Definition is a named workflow with the text variants used for
// keyword and semantic matching.
type Definition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Phrases     []string `yaml:"phrases"`
	Steps       []Step   `yaml:"steps"`
}

// Registry stores workflow definitions by name. Constructed explicitly
// and passed through; there is no package-level instance.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry returns a registry preloaded with the built-in workflows.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, def := range builtinWorkflows() {
		r.register(def)
	}
	return r
}

func (r *Registry) register(def Definition) {
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def
}

// Register adds or replaces a definition by name.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(def)
}

// Get looks a workflow up by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered workflow names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every definition, sorted by name for stable iteration.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MatchKeyword resolves text to a workflow via exact keyword match. The
// whole lowercased input must equal one of a workflow's keywords.
func (r *Registry) MatchKeyword(text string) (Definition, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Definition{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		def := r.defs[name]
		for _, kw := range def.Keywords {
			if strings.ToLower(kw) == needle {
				return def, true
			}
		}
	}
	return Definition{}, false
}

// LoadDir reads every .yaml/.yml file in dir as a list of definitions
// and registers them, replacing built-ins with the same name. A missing
// directory is not an error so deployments without custom workflows
// start clean.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading workflow dir: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var file struct {
			Workflows []Definition `yaml:"workflows"`
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, def := range file.Workflows {
			if def.Name == "" {
				return fmt.Errorf("parsing %s: workflow without a name", path)
			}
			r.Register(def)
			loaded++
		}
	}
	if loaded > 0 {
		logging.Workflow("loaded %d workflow definitions from %s", loaded, dir)
	}
	return nil
}
