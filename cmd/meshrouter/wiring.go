package main

import (
	"context"

	"go.uber.org/zap"

	"meshrouter/internal/backend"
	"meshrouter/internal/classify"
	"meshrouter/internal/config"
	"meshrouter/internal/correction"
	"meshrouter/internal/embedding"
	"meshrouter/internal/firewall"
	"meshrouter/internal/intercept"
	"meshrouter/internal/override"
	"meshrouter/internal/pattern"
	"meshrouter/internal/router"
	"meshrouter/internal/scene"
	"meshrouter/internal/vector"
	"meshrouter/internal/workflow"
)

// buildSupervisor wires the full pipeline from config. Components are
// constructed explicitly; nothing global is shared between two
// supervisors built from the same config.
func buildSupervisor(ctx context.Context, cfg *config.Config) (*router.Supervisor, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client := backend.NewTCPClient(backend.TCPClientConfig{
		Host:           cfg.Backend.Host,
		Port:           cfg.Backend.Port,
		ConnectTimeout: cfg.GetConnectTimeout(),
		CommandTimeout: cfg.GetCommandTimeout(),
	})
	closers = append(closers, func() { _ = client.Close() })

	registry := workflow.NewRegistry()
	if cfg.Workflow.DefinitionsPath != "" {
		if err := registry.LoadDir(cfg.Workflow.DefinitionsPath); err != nil {
			logger.Warn("workflow definitions not loaded",
				zap.String("path", cfg.Workflow.DefinitionsPath), zap.Error(err))
		}
	}

	fw, err := firewall.New()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.Firewall.RulesPath != "" {
		if err := fw.LoadFile(cfg.Firewall.RulesPath); err != nil {
			logger.Warn("firewall rules not loaded",
				zap.String("path", cfg.Firewall.RulesPath), zap.Error(err))
		}
		if cfg.Firewall.WatchRules {
			stop, err := fw.Watch(cfg.Firewall.RulesPath)
			if err != nil {
				logger.Warn("firewall rule watcher not started", zap.Error(err))
			} else {
				closers = append(closers, stop)
			}
		}
	}

	overrides := override.NewEngine()
	if cfg.Override.RulesPath != "" {
		if err := overrides.LoadFile(cfg.Override.RulesPath); err != nil {
			logger.Warn("override rules not loaded",
				zap.String("path", cfg.Override.RulesPath), zap.Error(err))
		}
	}

	interceptor := intercept.New(cfg.Intercept.DatabasePath)
	closers = append(closers, func() { _ = interceptor.Close() })

	store := vector.NewStore(cfg.Vector.IndexPath)
	closers = append(closers, func() { _ = store.Close() })

	classifier, err := buildClassifier(ctx, cfg, store, registry)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sup := router.New(router.Deps{
		Interceptor: interceptor,
		Analyzer:    scene.NewAnalyzer(client, cfg.GetCacheTTL()),
		Detector:    pattern.NewDetector(cfg.Pattern.DetectionThreshold),
		Corrector: correction.NewEngine(correction.Options{
			EnableModeSwitch: cfg.Correction.EnableModeSwitch,
			EnableSelection:  cfg.Correction.EnableSelection,
			EnableClamping:   cfg.Correction.EnableClamping,
		}),
		Overrides:  overrides,
		Registry:   registry,
		Firewall:   fw,
		Classifier: classifier,
	}, router.Options{
		SessionID:     sessionID,
		GoalThreshold: cfg.Workflow.LowConfidence,
		Thresholds: workflow.Thresholds{
			High:   cfg.Workflow.HighConfidence,
			Medium: cfg.Workflow.MediumConfidence,
			Low:    cfg.Workflow.LowConfidence,
		},
	})
	return sup, cleanup, nil
}

// buildClassifier indexes the workflow registry. When no embedding
// provider is configured the classifier still works on its TF-IDF
// fallback; an engine that fails to construct is downgraded the same
// way rather than failing the boot.
func buildClassifier(ctx context.Context, cfg *config.Config, store *vector.Store, registry *workflow.Registry) (*classify.Classifier, error) {
	var engine embedding.Engine
	if cfg.Embedding.Provider != "" {
		eng, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
			TaskType:       cfg.Embedding.TaskType,
		})
		if err != nil {
			logger.Warn("embedding engine unavailable, using statistical fallback", zap.Error(err))
		} else {
			engine = eng
		}
	}

	classifier := classify.New(store, engine)
	if err := classifier.IndexWorkflows(ctx, registry); err != nil {
		return nil, err
	}
	return classifier, nil
}

// buildStore opens just the vector store, for maintenance commands.
func buildStore(_ context.Context, cfg *config.Config) (*vector.Store, func(), error) {
	store := vector.NewStore(cfg.Vector.IndexPath)
	return store, func() { _ = store.Close() }, nil
}
