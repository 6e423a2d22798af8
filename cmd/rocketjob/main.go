package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rahsheen/rocketjob/config"
	"github.com/rahsheen/rocketjob/ingest"
	"github.com/rahsheen/rocketjob/logger"
	"github.com/rahsheen/rocketjob/server"
	"github.com/rahsheen/rocketjob/sliced"
)

var Version = "dev"

var logCategories = []string{
	"startup", "store", "upload", "claim", "requeue", "http", "shutdown",
	"debug", "debug-claim", "debug-upload", "debug-pebble",
}

func main() {
	config.CheckVersion(Version)

	cfg := &Config{}
	if err := config.Load(cfg, os.Args[1:]); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories(logCategories...)
	if cfg.Debug {
		logger.SetMinLevel(logger.LevelDebug)
	}
	if len(cfg.LogFilter) > 0 {
		logger.SetCategoryFilter(cfg.LogFilter)
	}
	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
	}

	logger.Println("startup", "rocketjob "+Version+" starting...")
	logger.Printf("startup", "Storage: %s (slice-size: %d)", cfg.Path, cfg.SliceSize)

	store, err := sliced.OpenPebble(cfg.Path, sliced.PebbleOptions{NoSync: cfg.NoSync})
	if err != nil {
		logger.Fatal("Failed to open slice store: %v", err)
	}
	defer store.Close()

	queue := sliced.NewQueue(store)
	ctx := context.Background()

	if ranTool(ctx, cfg, store, queue) {
		return
	}

	serve(cfg, queue)
}

// ranTool executes one-shot operator commands; true means the process
// should exit instead of serving.
func ranTool(ctx context.Context, cfg *Config, store sliced.Store, queue *sliced.Queue) bool {
	uploader := ingest.New(store, cfg.SliceSize)

	switch {
	case cfg.Upload != "":
		opts := ingest.Options{
			Delimiter:         cfg.Delimiter,
			BufferSize:        cfg.BufferSize,
			Encoding:          cfg.Encoding,
			StripNonPrintable: !cfg.KeepUnprint,
		}
		if cfg.Transforms != "" {
			opts.Transforms = splitList(cfg.Transforms)
		}
		count, err := uploader.Upload(ctx, ingest.Source{Path: cfg.Upload}, opts)
		if err != nil {
			logger.Fatal("Upload failed after %d records: %v", count, err)
		}

	case cfg.UploadRange != "":
		first, last, err := parseRange(cfg.UploadRange)
		if err != nil {
			logger.Fatal("Invalid -upload-range: %v", err)
		}
		if cfg.Reverse {
			_, err = uploader.UploadRangeReverse(ctx, first, last)
		} else {
			_, err = uploader.UploadRange(ctx, first, last)
		}
		if err != nil {
			logger.Fatal("Range upload failed: %v", err)
		}

	case cfg.UploadTable != "":
		if cfg.PGDSN == "" {
			logger.Fatal("-upload-table requires -pg-dsn")
		}
		db, err := sql.Open("postgres", cfg.PGDSN)
		if err != nil {
			logger.Fatal("Failed to open database: %v", err)
		}
		defer db.Close()

		cursor := &ingest.SQLCursor{
			DB:        db,
			Table:     cfg.UploadTable,
			Where:     cfg.WhereClause,
			KeyColumn: cfg.KeyColumn,
		}
		count, err := uploader.UploadCursor(ctx, cursor, ingest.CursorOptions{
			Columns: splitList(cfg.Columns),
		})
		if err != nil {
			logger.Fatal("Table upload failed after %d records: %v", count, err)
		}
		logger.Printf("upload", "Uploaded %s rows from %s", logger.FormatCount(count), cfg.UploadTable)

	case cfg.RequeueFailed:
		count, err := queue.RequeueFailed(ctx)
		if err != nil {
			logger.Fatal("Requeue failed: %v", err)
		}
		fmt.Printf("requeued %d failed slice(s)\n", count)

	case cfg.RequeueRunning != "":
		count, err := queue.RequeueRunning(ctx, cfg.RequeueRunning)
		if err != nil {
			logger.Fatal("Requeue failed: %v", err)
		}
		fmt.Printf("requeued %d running slice(s)\n", count)

	case cfg.Failures:
		err := queue.EachFailedRecord(ctx, func(rec sliced.Record, slice *sliced.Slice) error {
			fmt.Printf("slice %d record %d: %s\n  %s\n",
				slice.ID, slice.Failure.RecordOffset, slice.Failure.Description, string(rec))
			return nil
		})
		if err != nil {
			logger.Fatal("Failed to list failures: %v", err)
		}

	case cfg.Counts:
		counts, err := queue.Counts(ctx)
		if err != nil {
			logger.Fatal("Failed to count slices: %v", err)
		}
		fmt.Printf("queued=%d running=%d completed=%d failed=%d\n",
			counts.Queued, counts.Running, counts.Completed, counts.Failed)

	default:
		return false
	}
	return true
}

func serve(cfg *Config, queue *sliced.Queue) {
	srv := server.New(queue, server.Config{
		Debug:      cfg.Debug,
		ClaimRPS:   cfg.ClaimRPS,
		ClaimBurst: cfg.ClaimBurst,
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	var group errgroup.Group
	var servers []*http.Server

	startListener := func(addr, label string, handler http.Handler) {
		if addr == "" || addr == "none" {
			return
		}
		listener := server.SocketListen(addr)
		httpServer := &http.Server{Handler: handler}
		servers = append(servers, httpServer)
		logger.Printf("startup", "  %s: %s", label, addr)
		group.Go(func() error {
			if err := httpServer.Serve(listener); err != http.ErrServerClosed {
				return fmt.Errorf("%s listener: %w", label, err)
			}
			return nil
		})
	}

	logger.Println("startup", "Listening:")
	startListener(cfg.HTTPListen, "HTTP API", mux)
	startListener(cfg.HTTPSocket, "HTTP API", mux)
	startListener(cfg.MetricsListen, "Metrics", promhttp.Handler())

	if cfg.PprofPort != "" {
		go func() {
			logger.Printf("startup", "  pprof: localhost:%s", cfg.PprofPort)
			http.ListenAndServe("localhost:"+cfg.PprofPort, nil)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Println("shutdown", "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, httpServer := range servers {
		httpServer.Shutdown(shutdownCtx)
	}
	group.Wait()
	logger.Println("shutdown", "Done")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func parseRange(s string) (int64, int64, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected 'first:last', got %q", s)
	}
	first, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	last, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}
