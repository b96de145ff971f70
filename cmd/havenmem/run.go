package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/lucentlabs/havenmem"
	"github.com/lucentlabs/havenmem/internal/config"
	"github.com/lucentlabs/havenmem/provider/openaicompat"
	"github.com/lucentlabs/havenmem/store/litestore"
	"github.com/lucentlabs/havenmem/store/pgvector"
	"github.com/lucentlabs/havenmem/tools/file"
	"github.com/lucentlabs/havenmem/tools/memory"
	"github.com/lucentlabs/havenmem/tools/python"
	"github.com/lucentlabs/havenmem/tools/shell"
	"github.com/lucentlabs/havenmem/tools/web"
	"github.com/lucentlabs/havenmem/tools/workingmem"
	"github.com/lucentlabs/havenmem/workspace"
)

// defaultSystemMemoryText is the system-memory template shipped with this
// binary. On startup it is compared against the agent's persisted
// SystemMemoryText; a mismatch triggers an idempotent replace (§6 "Schema
// migration").
const defaultSystemMemoryText = `You are a long-running conversational agent with a hierarchical memory system: this system memory, a working-memory document, a rolling conversation window, and a searchable archival store. Use save_memory to keep durable facts and search_memory to recall them. Use update_working_memory for short-lived state you want to keep across turns.`

type exitCoded struct {
	code int
	err  error
}

func (e *exitCoded) Error() string { return e.err.Error() }
func (e *exitCoded) Unwrap() error { return e.err }

func isConfigError(err error) bool {
	var ce *havenmem.ErrConfig
	if errors.As(err, &ce) {
		return true
	}
	var ec *exitCoded
	return errors.As(err, &ec) && ec.code == exitConfigError
}

func isBackendError(err error) bool {
	var be *havenmem.ErrBackendUnavailable
	if errors.As(err, &be) {
		return true
	}
	var ec *exitCoded
	return errors.As(err, &ec) && ec.code == exitBackendDown
}

func isInterrupted(err error) bool {
	var ec *exitCoded
	return errors.As(err, &ec) && ec.code == exitInterrupted
}

func newRunCmd() *cobra.Command {
	var (
		agentName    string
		modelID      string
		workspaceDir string
		fifoCapacity int
		logLevel     string
		configPath   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session against one agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), runOptions{
				agentName:    agentName,
				modelID:      modelID,
				workspaceDir: workspaceDir,
				fifoCapacity: fifoCapacity,
				logLevel:     logLevel,
				configPath:   configPath,
			})
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "default", "agent name to load or create")
	cmd.Flags().StringVar(&modelID, "model", "", "chat model id (overrides config default)")
	cmd.Flags().StringVar(&workspaceDir, "workspace", "", "workspace root for file/shell/python tools (overrides config default)")
	cmd.Flags().IntVar(&fifoCapacity, "context", 0, "FIFO conversation window capacity (overrides config default)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a havenmem.toml config file")

	return cmd
}

type runOptions struct {
	agentName    string
	modelID      string
	workspaceDir string
	fifoCapacity int
	logLevel     string
	configPath   string
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runSession(ctx context.Context, opts runOptions) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(opts.logLevel)}))

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return &exitCoded{code: exitConfigError, err: fmt.Errorf("load config: %w", err)}
	}

	agentName := opts.agentName
	if agentName == "" {
		agentName = "default"
	}
	modelID := opts.modelID
	if modelID == "" {
		modelID = cfg.Provider.Model
	}
	workspaceDir := opts.workspaceDir
	if workspaceDir == "" {
		workspaceDir = cfg.Agent.WorkspaceRoot
	}
	fifoCapacity := opts.fifoCapacity
	if fifoCapacity <= 0 {
		fifoCapacity = cfg.Agent.FIFOCapacity
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return &exitCoded{code: exitBackendDown, err: err}
	}
	defer closeStore()

	sandbox, err := workspace.New(workspaceDir)
	if err != nil {
		return &exitCoded{code: exitConfigError, err: fmt.Errorf("open workspace: %w", err)}
	}

	chatProvider := openaicompat.NewProvider(cfg.Provider.APIKey, modelID, cfg.Provider.BaseURL)
	embeddingProvider := openaicompat.NewEmbeddingProvider(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)

	registry := havenmem.NewToolRegistry()
	registry.Add(file.New(sandbox))
	registry.Add(shell.New(sandbox.Root()))
	registry.Add(python.New(sandbox.Root()))
	registry.Add(web.New())

	session, err := havenmem.NewSession(ctx, havenmem.Config{
		Store:             store,
		Provider:          chatProvider,
		Embedding:         embeddingProvider,
		Tools:             registry,
		Logger:            logger,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
	}, havenmem.Agent{
		Name:             agentName,
		ModelID:          modelID,
		SystemMemoryText: defaultSystemMemoryText,
		FIFOCapacity:     fifoCapacity,
		WorkspaceRoot:    workspaceDir,
	})
	if err != nil {
		return &exitCoded{code: exitBackendDown, err: fmt.Errorf("load agent %q: %w", agentName, err)}
	}

	if err := migrateSystemMemory(ctx, store, session); err != nil {
		logger.Warn("system memory migration failed", "error", err)
	}

	// memory/workingmem tools are bound to the loaded session, so they are
	// registered after NewSession rather than before.
	registry.Add(memory.New(session))
	registry.Add(workingmem.New(session))

	return interactiveLoop(ctx, logger, session)
}

// migrateSystemMemory compares the agent's persisted system-memory text
// against this binary's current default and replaces it idempotently if
// they differ (§6 "Schema migration"). Running it twice in a row is a
// no-op the second time.
func migrateSystemMemory(ctx context.Context, store havenmem.Store, session *havenmem.Session) error {
	rec, err := store.GetAgentByName(ctx, session.Name())
	if err != nil {
		return err
	}
	if rec.SystemMemoryText == defaultSystemMemoryText {
		return nil
	}
	rec.SystemMemoryText = defaultSystemMemoryText
	rec.UpdatedAt = havenmem.NowUnix()
	return store.UpdateAgent(ctx, rec)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (havenmem.Store, func(), error) {
	switch cfg.Backend {
	case "pgvector":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pgvector: %w", err)
		}
		st := pgvector.New(pool,
			pgvector.WithHNSWM(cfg.HNSWM),
			pgvector.WithEFConstruction(cfg.HNSWEFConstruct),
			pgvector.WithEFSearch(cfg.HNSWEFSearch),
			pgvector.WithEmbeddingDimension(cfg.EmbeddingDimensn),
		)
		if err := st.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("init pgvector schema: %w", err)
		}
		return st, pool.Close, nil
	case "litestore", "":
		st := litestore.New(cfg.SQLitePath)
		if err := st.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init litestore schema: %w", err)
		}
		return st, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// interactiveLoop reads user input from stdin and drives Session.Step
// against it. SIGINT cancels the in-flight turn's context (cooperatively
// honored by the tool timeouts) and returns control to the prompt; SIGINT
// at an idle prompt ends the loop with exit code 130; SIGTERM initiates a
// clean shutdown of the whole loop.
func interactiveLoop(parent context.Context, logger *slog.Logger, session *havenmem.Session) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
	}()

	fmt.Printf("havenmem: agent %q ready. Ctrl-C cancels a turn; Ctrl-C twice or SIGTERM exits.\n", session.Name())

	for {
		fmt.Print("> ")
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGTERM {
				fmt.Println("\nshutting down")
				return nil
			}
			fmt.Println()
			return &exitCoded{code: exitInterrupted, err: errors.New("interrupted")}
		case line, ok := <-inputCh:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/exit" || line == "/quit" {
				return nil
			}

			turnCtx, cancel := context.WithCancel(parent)
			done := make(chan struct{})
			go func() {
				defer close(done)
				reply, err := session.Step(turnCtx, line)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					return
				}
				fmt.Println(reply)
			}()

			select {
			case <-done:
				cancel()
			case sig := <-sigCh:
				cancel()
				<-done
				if sig == syscall.SIGTERM {
					fmt.Println("\nshutting down")
					return nil
				}
				fmt.Println("\nturn cancelled")
			}
		}
	}
}

