package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mensah/datashelf/internal/api"
	"github.com/mensah/datashelf/internal/config"
	"github.com/mensah/datashelf/internal/dataset"
	"github.com/mensah/datashelf/internal/embeddings"
	"github.com/mensah/datashelf/internal/identity"
	"github.com/mensah/datashelf/internal/objstore"
	"github.com/mensah/datashelf/internal/publish"
	"github.com/mensah/datashelf/internal/search"
	"github.com/mensah/datashelf/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the datashelf server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "datashelf version %s\n", version)

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Derived indexes share the primary store's database.
	vectorIndex := embeddings.NewIndex(store.DB())
	searchIndex := search.NewIndex(store.DB())
	objects := objstore.NewFS(cfg.Assets.Dir, cfg.Assets.PublicBaseURL)
	embedder := embeddings.NewClient(cfg.Embeddings.BaseURL, cfg.Embeddings.Model)

	var users identity.Resolver
	if cfg.Identity.BaseURL != "" {
		users = identity.NewHTTPResolver(cfg.Identity.BaseURL)
	} else {
		slog.Warn("identity.base_url not set; slugs and uploader info fall back to raw owner ids")
	}

	pipeline := publish.New(store, objects, embedder, vectorIndex, searchIndex, cfg.Tenant)
	manager := dataset.NewManager(dataset.Deps{
		Store:    store,
		Pipeline: pipeline,
		Users:    users,
		Embedder: embedder,
		Vectors:  vectorIndex,
		Search:   searchIndex,
		Objects:  objects,
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/", api.NewAppHandler(api.AppDeps{Manager: manager}))
	topRouter.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Assets.Dir))))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// MCP server over stdio for agent tooling.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Manager: manager})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("datashelf listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		printWarning("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	printSuccess("shutdown complete")
	return nil
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
