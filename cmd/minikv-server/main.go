package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/lojhan/minikv/internal/logging"
	"github.com/lojhan/minikv/internal/server"
)

func main() {
	addr := flag.String("addr", server.DefaultAddr, "Address to listen on")
	dbFile := flag.String("dbfilename", "minikv.db", "Data file loaded on start and written by SAVE")
	autoSave := flag.Bool("autosave", false, "Save the data file after every SET and DEL")
	multicore := flag.Bool("multicore", false, "Run one event loop per CPU")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "Rotating log file (default stderr)")
	logMaxSize := flag.Int("log-max-size", 100, "Maximum log file size in megabytes before rotation")
	logJSON := flag.Bool("log-json", false, "Write logs as JSON")
	flag.Parse()

	logger, err := logging.New(logging.Options{
		Level:      *logLevel,
		File:       *logFile,
		MaxSizeMB:  *logMaxSize,
		MaxBackups: 3,
		MaxAgeDays: 28,
		JSON:       *logJSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	srv, err := server.New(server.Config{
		Addr:      *addr,
		DBFile:    *dbFile,
		AutoSave:  *autoSave,
		Multicore: *multicore,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		select {
		case <-srv.Ready():
			logger.Info("ready to accept connections", zap.String("addr", srv.Addr()), zap.String("dbfilename", *dbFile))
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
