// Command torque is the task engine CLI. It wires the store, executor,
// dispatcher and session memory from the YAML config and exposes the
// engine's operations as subcommands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/GoCodeAlone/torque/agent"
	"github.com/GoCodeAlone/torque/comms"
	"github.com/GoCodeAlone/torque/config"
	"github.com/GoCodeAlone/torque/dispatch"
	"github.com/GoCodeAlone/torque/executor"
	"github.com/GoCodeAlone/torque/internal/version"
	"github.com/GoCodeAlone/torque/memory"
	"github.com/GoCodeAlone/torque/provider"
	"github.com/GoCodeAlone/torque/provider/mock"
	"github.com/GoCodeAlone/torque/task"
)

func main() {
	var (
		configPath = flag.String("config", "torque.yaml", "path to config file")
		sessionID  = flag.String("session", "", "override the configured session id")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	// API keys come from the environment; a local .env is optional.
	_ = godotenv.Load()

	cmd := args[0]
	rest := args[1:]

	if cmd == "version" {
		fmt.Printf("torque %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *sessionID != "" {
		cfg.SessionID = *sessionID
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		err = eng.cmdRun(rest)
	case "exec":
		err = eng.cmdExec(rest)
	case "history":
		err = eng.cmdHistory(rest)
	case "rollback":
		err = eng.cmdRollback(rest)
	case "stats":
		err = eng.cmdStats(rest)
	case "estimate":
		err = eng.cmdEstimate(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `torque — cost-aware task engine

Usage:
  torque [flags] <command> [args]

Flags:
  --config  <path>  config file (default: torque.yaml)
  --session <id>    override the configured session id

Commands:
  version                 print version
  run <request>           process a natural-language request
  exec <task-id>          execute a stored task by id
  history                 show the session's execution history
  rollback <task-id>      truncate history back to a task
  stats                   show cost statistics for this run
  estimate <desc>...      estimate savings for task descriptions
`)
}

// loadConfig falls back to defaults when the config file is absent, so
// the CLI works out of the box.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return nil, err
}

// engine bundles the wired components behind the subcommands.
type engine struct {
	cfg  *config.Config
	exec *executor.Executor
	disp *dispatch.Dispatcher
	mem  *memory.SessionMemory
	proc *agent.Processor
}

func buildEngine(cfg *config.Config) (*engine, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	mem, err := memory.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	bus := comms.NewInMemoryBus()
	bus.Subscribe(func(_ context.Context, n *comms.Notice) error {
		if n.Action != "" {
			fmt.Printf("  task %s: %s (%s)\n", n.TaskID, n.Status, n.Action)
		} else {
			fmt.Printf("  task %s: %s\n", n.TaskID, n.Status)
		}
		return nil
	})

	execOpts := []executor.Option{executor.WithBus(bus)}
	if cfg.Rollback {
		execOpts = append(execOpts, executor.WithRollback())
	}
	exec := executor.New(cfg.ProjectRoot, store, execOpts...)

	timeout := time.Duration(cfg.Generator.TimeoutSeconds) * time.Second
	disp := dispatch.New(dispatch.Options{
		Store:             store,
		Executor:          exec,
		Generator:         gen,
		UseTemplates:      cfg.Cost.UseTemplates,
		MinimizeGenerator: cfg.Cost.MinimizeGenerator,
		GenerateTimeout:   timeout,
	})
	proc := agent.New(agent.Options{
		Store:           store,
		Executor:        exec,
		Dispatcher:      disp,
		Memory:          mem,
		Generator:       gen,
		SessionID:       cfg.SessionID,
		GenerateTimeout: timeout,
	})

	return &engine{cfg: cfg, exec: exec, disp: disp, mem: mem, proc: proc}, nil
}

func buildStore(cfg *config.Config) (task.Store, error) {
	switch cfg.Storage {
	case "sqlite":
		return task.NewSQLiteStore(filepath.Join(cfg.DataDir, "tasks.db"))
	default:
		return task.NewFileStore(cfg.DataDir)
	}
}

func buildGenerator(cfg config.GeneratorConfig) (provider.Generator, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	switch cfg.Provider {
	case "":
		return nil, nil
	case "mock":
		return mock.New(), nil
	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic generator needs an API key (set %s)", cfg.APIKeyEnv)
		}
		return provider.NewAnthropicGenerator(provider.AnthropicConfig{
			APIKey:    apiKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		}), nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai generator needs an API key (set %s)", cfg.APIKeyEnv)
		}
		return provider.NewOpenAIGenerator(provider.OpenAIConfig{
			APIKey:    apiKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

func (e *engine) cmdRun(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: torque run <request>")
	}
	request := strings.Join(args, " ")

	outcome := e.proc.Process(request)
	if outcome.Success {
		fmt.Printf("ok: %s\n", outcome.Message)
	}
	path := "rule-based"
	if outcome.UsedGenerator {
		path = "generator"
	}
	fmt.Printf("path: %s, files created: %d\n", path, outcome.FilesCreated)
	printStats(outcome.Stats)
	if !outcome.Success {
		return fmt.Errorf("request failed: %s", outcome.Message)
	}
	return nil
}

func (e *engine) cmdExec(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: torque exec <task-id>")
	}

	result := e.exec.Execute(args[0])
	if result.Success {
		fmt.Printf("ok: %s %s (%d bytes)\n", result.Action, result.Target, result.BytesWritten)
		return nil
	}
	return fmt.Errorf("%s: %s", result.ErrorKind, result.Error)
}

func (e *engine) cmdHistory(_ []string) error {
	history, err := e.mem.History(e.cfg.SessionID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("no history for session %s\n", e.cfg.SessionID)
		return nil
	}
	for i, entry := range history {
		status := task.Status("")
		if entry.Record != nil {
			status = entry.Record.Status
		}
		fmt.Printf("%3d  %s  task %s  %s\n",
			i, entry.Timestamp.Format("2006-01-02 15:04:05"), entry.TaskID, status)
	}
	return nil
}

func (e *engine) cmdRollback(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: torque rollback <task-id>")
	}

	discarded, err := e.mem.RollbackToState(e.cfg.SessionID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("rolled session %s back to task %s (%d entries discarded)\n",
		e.cfg.SessionID, args[0], discarded)
	fmt.Println("note: rollback affects history only; files already written are untouched")
	return nil
}

func (e *engine) cmdStats(_ []string) error {
	printStats(e.disp.Statistics())
	summary := e.proc.OptimizationSummary()
	fmt.Printf("requests: %d total, %d generator, %d rule-based\n",
		summary.TotalRequests, summary.GeneratorRequests, summary.RuleBasedRequests)
	return nil
}

func (e *engine) cmdEstimate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: torque estimate <description>...")
	}

	est := dispatch.EstimateSavings(args)
	fmt.Printf("%d of %d tasks are template-satisfiable (%.0f%%)\n",
		est.OptimizableTasks, est.TotalTasks, est.OptimizationPercent)
	fmt.Printf("potential savings: %d tokens\n", est.PotentialSavings)
	return nil
}

func printStats(stats dispatch.CostStats) {
	fmt.Printf("ops: %d total, %d generator, %d rule-based (%.1f%% saved)\n",
		stats.TotalOps, stats.GeneratorOps, stats.RuleBasedOps, stats.SavingsPercent)
	fmt.Printf("tokens: %d used, %d saved\n", stats.TokensUsed, stats.TokensSaved)
}
