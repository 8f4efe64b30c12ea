package firewall

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"meshrouter/internal/logging"
)

// ruleSpec is the YAML shape of one rule.
type ruleSpec struct {
	Name      string `yaml:"name"`
	Pattern   string `yaml:"pattern"`
	Condition string `yaml:"condition"`
	Action    string `yaml:"action"`
	Message   string `yaml:"message"`
	Disabled  bool   `yaml:"disabled"`
}

// LoadFile registers every rule from a YAML file. Rules named like
// existing ones replace them; a rule marked disabled is registered but
// starts off. A missing file is not an error.
func (f *Firewall) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading firewall rules: %w", err)
	}
	var file struct {
		Rules []ruleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing firewall rules: %w", err)
	}
	for _, spec := range file.Rules {
		action := RuleAction(spec.Action)
		switch action {
		case ActionBlock, ActionModify, ActionAutoFix:
		default:
			return fmt.Errorf("rule %s: unknown action %q", spec.Name, spec.Action)
		}
		rule := Rule{
			Name:      spec.Name,
			Pattern:   spec.Pattern,
			Condition: spec.Condition,
			Action:    action,
			Message:   spec.Message,
		}
		if err := f.Register(rule); err != nil {
			return err
		}
		if spec.Disabled {
			f.SetEnabled(spec.Name, false)
		}
	}
	logging.Firewall("loaded %d rules from %s", len(file.Rules), path)
	return nil
}

// Watch reloads the rules file whenever it changes on disk. A reload
// that fails to parse keeps the previous rules and logs the error.
// The returned stop function shuts the watcher down.
func (f *Firewall) Watch(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting rules watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := f.LoadFile(path); err != nil {
					logging.Get(logging.CategoryFirewall).Error("rules reload failed: %v", err)
					continue
				}
				logging.Firewall("rules reloaded after change to %s", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Get(logging.CategoryFirewall).Error("rules watcher: %v", err)
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}
