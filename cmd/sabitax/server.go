package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sabitax/sabitax/internal/agent"
	"github.com/sabitax/sabitax/internal/api"
	"github.com/sabitax/sabitax/internal/config"
	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/corpus"
	"github.com/sabitax/sabitax/internal/engine"
	"github.com/sabitax/sabitax/internal/ollama"
	"github.com/sabitax/sabitax/internal/retrieval"
	"github.com/sabitax/sabitax/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sabitax server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sabitax server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sabitax system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sabitax.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "sabitax version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming
	// the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sabitax is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sabitax is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check inference engine readiness, pulling models if missing.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}
	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	vectorStore, closeVectors, err := openVectorStore(ctx, cfg, store, embedder)
	if err != nil {
		return err
	}
	defer closeVectors()

	retriever := retrieval.NewRetriever(embedder, vectorStore)
	conversations := conversation.NewStore(store)

	// Build or load the corpus index. Failure is not fatal: the service
	// starts degraded with retrieval disabled and can be reloaded once
	// documents are in place.
	indexer := corpus.NewIndexer(cfg.Corpus.DocsDir, embedder, vectorStore, slog.Default())
	if count, err := indexer.Build(ctx, false); err != nil {
		slog.Warn("corpus index unavailable, starting degraded", "error", err)
	} else {
		slog.Info("corpus index ready", "passages", count)
	}

	if cfg.Corpus.Watch {
		watcher, err := corpus.NewWatcher(cfg.Corpus.DocsDir, slog.Default(), func() {
			if _, err := indexer.Build(context.Background(), true); err != nil {
				slog.Warn("reindex after document change failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("creating document watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("watching documents directory: %w", err)
		}
		defer watcher.Stop()
	}

	genTimeout, err := time.ParseDuration(cfg.Agent.GenerationTimeout)
	if err != nil {
		slog.Warn("invalid generation timeout, using default 60s", "value", cfg.Agent.GenerationTimeout, "error", err)
		genTimeout = 60 * time.Second
	}
	conversationAgent := agent.New(eng, retriever, conversations, agent.Options{
		ChatModel:         cfg.Ollama.ChatModel,
		TopK:              cfg.Retrieval.TopK,
		ReflectionPasses:  cfg.Agent.ReflectionPasses,
		GenerationTimeout: genTimeout,
	})

	handler := api.NewHandler(api.Deps{
		Agent:         conversationAgent,
		Conversations: conversations,
		Indexer:       indexer,
		Token:         cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio transport.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Agent:         conversationAgent,
		Conversations: conversations,
		Retriever:     retriever,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sabitax listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openVectorStore selects the configured vector backend. The Qdrant
// backend needs the embedding dimension up front, so it probes the
// embedder once.
func openVectorStore(ctx context.Context, cfg config.Config, store *storage.Store, embedder *retrieval.Embedder) (retrieval.VectorStore, func(), error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		probe, err := embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, nil, fmt.Errorf("probing embedding dimension: %w", err)
		}
		qs, err := retrieval.NewQdrantStore(cfg.Vector.QdrantHost, cfg.Vector.QdrantPort, uint64(len(probe)))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		slog.Info("using qdrant vector backend", "host", cfg.Vector.QdrantHost, "port", cfg.Vector.QdrantPort, "dim", len(probe))
		return qs, func() { qs.Close() }, nil
	case "", "sqlite":
		return retrieval.NewSQLiteStore(store.DB()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q (want sqlite or qdrant)", cfg.Vector.Backend)
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sabitax is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sabitax (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sabitax (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status         string `json:"status"`
			RAGInitialized bool   `json:"rag_initialized"`
		}
		if decodeErr := decodeJSON(resp, &health); decodeErr == nil {
			printStatus("Server", "%s on port %d", health.Status, cfg.Server.Port)
			if health.RAGInitialized {
				printStatus("Corpus index", "ready")
			} else {
				printStatus("Corpus index", "not built (retrieval disabled)")
			}
		} else {
			printStatus("Server", "error (%v)", decodeErr)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Vector backend", "%s", cfg.Vector.Backend)
	printStatus("Documents dir", "%s", cfg.Corpus.DocsDir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
