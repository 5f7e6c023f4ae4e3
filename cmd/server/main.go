package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/logsift/logsift/pkg/alarm"
	"github.com/logsift/logsift/pkg/api"
	"github.com/logsift/logsift/pkg/config"
	"github.com/logsift/logsift/pkg/query"
	"github.com/logsift/logsift/pkg/retention"
	"github.com/logsift/logsift/pkg/storage"
	"github.com/logsift/logsift/pkg/storage/badger"
	"github.com/logsift/logsift/pkg/storage/memory"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 60 * time.Second
	shutdownTimeout    = 30 * time.Second

	badgerGCDiscardRatio = 0.5
)

// getEnv gets a string from an environment variable or returns the default
func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from an environment variable or returns the default
func getEnvInt64(log *logrus.Logger, key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.WithFields(logrus.Fields{"key": key, "value": val}).
			Warnf("invalid value, using default %d", defaultValue)
	}
	return defaultValue
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if getEnv("LOGSIFT_LOG_FORMAT", "") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(getEnv("LOGSIFT_LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	log.Info("starting logsift server")

	// Configuration from environment:
	//   LOGSIFT_PORT           listen port (default 8080)
	//   LOGSIFT_DATA_DIR       badger data directory
	//   LOGSIFT_MAX_MEMORY_MB  badger memory budget
	//   LOGSIFT_STORE          "badger" (default) or "memory"
	port := getEnv("LOGSIFT_PORT", config.DefaultPort)
	dataDir := getEnv("LOGSIFT_DATA_DIR", config.DefaultDataDir)
	maxMemoryMB := getEnvInt64(log, "LOGSIFT_MAX_MEMORY_MB", config.DefaultMaxMemoryMB)

	var (
		store       storage.Store
		badgerStore *badger.Store
	)
	if getEnv("LOGSIFT_STORE", "badger") == "memory" {
		store = memory.New()
		log.Info("using in-memory storage (entries are lost on restart)")
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.WithError(err).Fatal("failed to create data directory")
		}
		bs, err := badger.New(badger.Config{
			Path:        dataDir,
			MaxMemoryMB: maxMemoryMB,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to open storage")
		}
		store = bs
		badgerStore = bs
		log.WithFields(logrus.Fields{
			"dir":           dataDir,
			"max_memory_mb": maxMemoryMB,
		}).Info("badger storage opened")
	}
	defer store.Close()

	executor := query.NewExecutor(store)

	policyRepo := retention.NewMemoryRepository()
	retentionEngine := retention.New(store, policyRepo, log, config.RetentionInterval)

	alarmRepo := alarm.NewMemoryRepository()
	dispatcher := alarm.NewRouter(log)
	alarmEngine := alarm.New(alarmRepo, executor, dispatcher, log, config.AlarmInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		retentionEngine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		alarmEngine.Run(ctx)
	}()

	if badgerStore != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBadgerGC(ctx, log, badgerStore)
		}()
	}

	handler := api.NewHandler(store, executor, alarmEngine, retentionEngine, log)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler.Router(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")

	// Cancel before wg.Wait or the background loops never exit.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("background tasks stopped")
	case <-time.After(5 * time.Second):
		log.Warn("background tasks did not stop in time")
	}

	log.Info("server exited")
}

// runBadgerGC reclaims value log space periodically. Badger's LSM keeps
// deleted entries in the value log until GC rewrites the files.
func runBadgerGC(ctx context.Context, log *logrus.Logger, store *badger.Store) {
	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.RunGC(badgerGCDiscardRatio); err != nil {
				log.WithError(err).Debug("badger gc found nothing to collect")
			}
		case <-ctx.Done():
			return
		}
	}
}
