package workflow

// builtinWorkflows returns the workflows shipped with the router. They
// cover the archetypes the pattern detector can suggest plus the
// flatten heuristic. Custom YAML definitions may replace any of them
// by name.
func builtinWorkflows() []Definition {
	return []Definition{
		{
			Name:        "build_tower",
			Description: "stack a tall tower from a cube base with tapering sections",
			Keywords:    []string{"tower", "build tower", "tall structure"},
			Phrases: []string{
				"make a tall tower",
				"build me a tower out of cubes",
				"construct a tall building",
			},
			Steps: []Step{
				{Tool: "modeling_create_primitive", Params: map[string]any{"kind": "CUBE", "location": "$location"}},
				{Tool: "modeling_transform", Params: map[string]any{"scale": []any{1.0, 1.0, 3.0}}},
				{Tool: "mesh_subdivide", Params: map[string]any{"number_cuts": 3}, Optional: true, Description: "section cuts for later detailing"},
				{Tool: "mesh_bevel", Params: map[string]any{"offset": 0.05}, Optional: true, Description: "soften the vertical edges"},
			},
		},
		{
			Name:        "flatten_object",
			Description: "squash the active object into a thin slab",
			Keywords:    []string{"flatten", "flatten object", "make flat"},
			Phrases: []string{
				"flatten this object",
				"squash it down flat",
				"make the cube flat like a plate",
			},
			Steps: []Step{
				{Tool: "modeling_transform", Params: map[string]any{"scale": []any{1.0, 1.0, 0.1}}},
				{Tool: "modeling_apply_transform", Params: map[string]any{"scale": true}},
				{Tool: "modeling_shade_smooth", Optional: true},
			},
		},
		{
			Name:        "build_table",
			Description: "model a four-legged table from a flat top",
			Keywords:    []string{"table", "build table", "desk"},
			Phrases: []string{
				"make a simple table",
				"model a wooden table with four legs",
				"build a desk",
			},
			Steps: []Step{
				{Tool: "modeling_create_primitive", Params: map[string]any{"kind": "CUBE", "location": "$location"}},
				{Tool: "modeling_transform", Params: map[string]any{"scale": []any{2.0, 1.2, 0.08}}},
				{Tool: "mesh_inset_faces", Params: map[string]any{"thickness": 0.1}},
				{Tool: "mesh_extrude_region", Params: map[string]any{"depth": -0.9}},
				{Tool: "mesh_bevel", Params: map[string]any{"offset": 0.02}, Optional: true, Description: "round the tabletop edge"},
			},
		},
		{
			Name:        "model_phone",
			Description: "model a phone-shaped slab with rounded edges and a screen inset",
			Keywords:    []string{"phone", "smartphone", "model phone"},
			Phrases: []string{
				"model a smartphone",
				"make a phone shape",
				"create a mobile phone body",
			},
			Steps: []Step{
				{Tool: "modeling_create_primitive", Params: map[string]any{"kind": "CUBE"}},
				{Tool: "modeling_transform", Params: map[string]any{"scale": []any{0.4, 0.8, 0.04}}},
				{Tool: "mesh_bevel", Params: map[string]any{"offset": 0.02, "segments": 4}},
				{Tool: "mesh_inset_faces", Params: map[string]any{"thickness": 0.03}, Optional: true, Description: "screen border"},
				{Tool: "modeling_shade_smooth", Optional: true},
			},
		},
		{
			Name:        "model_wheel",
			Description: "model a wheel from a cylinder with a hub inset",
			Keywords:    []string{"wheel", "tire", "model wheel"},
			Phrases: []string{
				"model a car wheel",
				"make a wheel with a hub",
				"create a tire shape",
			},
			Steps: []Step{
				{Tool: "modeling_create_primitive", Params: map[string]any{"kind": "CYLINDER", "location": "$location"}},
				{Tool: "modeling_transform", Params: map[string]any{"scale": []any{1.0, 1.0, 0.3}}},
				{Tool: "mesh_inset_faces", Params: map[string]any{"thickness": 0.2}},
				{Tool: "mesh_extrude_region", Params: map[string]any{"depth": -0.1}, Optional: true, Description: "hub recess"},
				{Tool: "modeling_shade_smooth", Optional: true},
			},
		},
	}
}
