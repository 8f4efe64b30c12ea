package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"meshrouter/internal/config"
	"meshrouter/internal/logging"
	"meshrouter/internal/router"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	sessionID  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "meshrouter",
	Short: "meshrouter - correction and routing pipeline for geometry tool calls",
	Long: `meshrouter sits between an LLM agent and a stateful 3D geometry backend.

Every tool call the agent emits runs through a deterministic pipeline:
scene analysis, geometry pattern detection, mode/selection/parameter
correction, workflow expansion, override rules, and a rule firewall.
The result is the ordered list of calls that actually execute.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// processCmd runs a single tool call through the pipeline and prints
// the emitted {tool, params} pairs as JSON.
var processCmd = &cobra.Command{
	Use:   "process [tool] [params-json]",
	Short: "Run one tool call through the pipeline",
	Long: `Runs one intercepted tool call through the full decision pipeline
and prints the ordered calls that would be executed.

Example:
  meshrouter process mesh_extrude_region '{"depth": 50}'
  meshrouter process modeling_transform '{"scale": [1, 1, 5]}' --prompt "stretch it up"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runProcess,
}

// setGoalCmd resolves free text to a workflow.
var setGoalCmd = &cobra.Command{
	Use:   "set-goal [text...]",
	Short: "Resolve a goal phrase to a workflow",
	Long: `Resolves free text against the workflow registry: exact keyword
match first, then a semantic top-1 match if an embedding engine is
configured. Prints the matched workflow or reports no match.

Example:
  meshrouter set-goal build tower
  meshrouter set-goal make me something tall and thin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSetGoal,
}

// serveCmd runs the JSON-over-TCP request loop.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over newline-delimited JSON on TCP",
	Long: `Starts a TCP listener accepting one JSON request object per line:

  {"op": "process", "tool": "...", "params": {...}, "prompt": "..."}
  {"op": "set_goal", "text": "..."}
  {"op": "stats"}
  {"op": "goal_history"}

Each request receives one JSON response line. The pipeline is
single-in-flight; requests are served sequentially per connection.`,
	RunE: runServe,
}

// statsCmd queries a running server for its counters.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline counters of a running server",
	RunE:  runStats,
}

// reindexCmd rebuilds the vector store's backing index from memory.
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the in-memory records",
	Long: `Rewrites the SQLite vector index from the authoritative in-memory
records. This is an exclusive maintenance operation; do not run it
against a database a live server is writing to.`,
	RunE: runReindex,
}

var (
	processPrompt string
	listenAddr    string
	serverAddr    string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "meshrouter.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "cli", "Session id for the interception audit log")

	processCmd.Flags().StringVar(&processPrompt, "prompt", "", "Prompt text that produced the call")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "localhost:9877", "Listen address")
	statsCmd.Flags().StringVar(&serverAddr, "addr", "localhost:9877", "Address of a running server")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(setGoalCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reindexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	params := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
	}

	sup, cleanup, err := buildSupervisor(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	calls := sup.Process(ctx, args[0], params, processPrompt)
	out, err := json.MarshalIndent(router.EmitPairs(calls), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if verbose {
		st := sup.Stats()
		logger.Info("pipeline stats",
			zap.Uint64("total", st.Total),
			zap.Uint64("corrected", st.Corrected),
			zap.Uint64("expanded", st.Expanded),
			zap.Uint64("overridden", st.Overridden),
			zap.Uint64("blocked", st.Blocked))
	}
	return nil
}

func runSetGoal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sup, cleanup, err := buildSupervisor(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	text := strings.Join(args, " ")
	name, ok := sup.SetGoal(ctx, text)
	if !ok {
		fmt.Printf("no workflow matched %q\n", text)
		return nil
	}
	hist := sup.GoalHistory()
	last := hist[len(hist)-1]
	fmt.Printf("matched workflow %s (%s, score %.2f)\n", name, last.Method, last.Score)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	if !store.RebuildIndex() {
		return fmt.Errorf("no backing index configured (vector.index_path is empty)")
	}
	fmt.Printf("index rebuilt: %d records in %s\n", store.Count(""), time.Since(start).Round(time.Millisecond))
	return nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if logger != nil {
			logger.Info("received shutdown signal")
		}
		cancel()
	}()
	return ctx, cancel
}
