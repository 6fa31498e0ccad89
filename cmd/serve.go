package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/hogdesc/internal/server"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/cwbudde/hogdesc/internal/workerpool"
	"github.com/spf13/cobra"
)

var (
	addr         string
	serveWorkers int
	noStore      bool
	cacheSize    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long: `Starts the job server. Describe and locate jobs are submitted with
POST /api/v1/jobs and stored as records under --data-dir.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Worker goroutines per descriptor (0 = GOMAXPROCS)")
	serveCmd.Flags().BoolVar(&noStore, "no-store", false, "Keep results in memory only")
	serveCmd.Flags().IntVar(&cacheSize, "cache-size", source.DefaultCacheSize, "Decoded images kept in memory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pool := workerpool.New(serveWorkers)
	defer pool.Close()
	slog.Info("Worker pool started", "workers", pool.Size())

	var recordStore store.Store
	if !noStore {
		fsStore, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create record store: %w", err)
		}
		recordStore = fsStore
		slog.Info("Storing records", "dir", fsStore.BaseDir())
	}

	srv := server.NewServer(addr, server.NewRunner(pool, recordStore, cacheSize))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
