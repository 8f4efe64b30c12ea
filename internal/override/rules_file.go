package override

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"meshrouter/internal/logging"
)

// LoadFile registers every override rule from a YAML file. Rules named
// like existing ones replace them. A missing file is not an error.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading override rules: %w", err)
	}
	var file struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing override rules: %w", err)
	}
	for _, rule := range file.Rules {
		if rule.Name == "" {
			return fmt.Errorf("override rule missing name")
		}
		if rule.TriggerTool == "" {
			return fmt.Errorf("rule %s: missing trigger_tool", rule.Name)
		}
		if len(rule.Replacements) == 0 {
			return fmt.Errorf("rule %s: no replacements", rule.Name)
		}
		for i, rep := range rule.Replacements {
			if rep.Tool == "" {
				return fmt.Errorf("rule %s: replacement %d missing tool", rule.Name, i)
			}
		}
		e.Register(rule)
	}
	logging.Override("loaded %d rules from %s", len(file.Rules), path)
	return nil
}
