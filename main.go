package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"converter/adapters"
	"converter/api"
	"converter/config"
	"converter/statuscache"
	"converter/store"
	"converter/storage"
	"converter/worker"
)

func main() {
	log.Println("Starting Media Conversion Service...")

	cfg := config.Load()

	if err := os.MkdirAll(filepath.Join(cfg.WorkDir, "inputs"), 0755); err != nil {
		log.Fatalf("Failed to create work directory: %v", err)
	}

	// Fail fast on missing binaries rather than on the first request.
	if err := adapters.CheckBinaries(cfg); err != nil {
		log.Fatalf("Dependency check failed: %v", err)
	}
	log.Println("All conversion binaries available")

	jobStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer jobStore.Close()

	artifactStore, err := buildStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize artifact storage: %v", err)
	}

	cache, redisClient := buildStatusCache(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := adapters.NewRegistry(cfg)
	pool := worker.NewPool(cfg, jobStore, artifactStore, cache, registry)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.JanitorLoop(ctx, 5*time.Minute)
	}()

	log.Printf("Started %d conversion workers", cfg.WorkerCount)

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	api.RegisterHandlers(r, &api.Handler{Config: cfg, Pool: pool, Storage: artifactStore})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		log.Printf("Listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("Service is ready to process conversions")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	log.Println("Conversion service stopped")
}

func buildStore(cfg *config.Config) (store.JobStore, error) {
	if cfg.DatabaseURL != "" {
		s, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to database successfully")
		return s, nil
	}
	log.Println("No database configured, using in-memory job store")
	return store.NewMemoryStore(), nil
}

func buildStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.S3Bucket != "" {
		log.Printf("Storing artifacts in S3 bucket %s", cfg.S3Bucket)
		return storage.NewS3Storage(cfg), nil
	}
	dir := filepath.Join(cfg.WorkDir, "artifacts")
	log.Printf("Storing artifacts in %s", dir)
	return storage.NewLocalStorage(dir)
}

func buildStatusCache(cfg *config.Config) (*statuscache.Cache, *redis.Client) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")
	// Status hashes expire a little after the artifacts do.
	return statuscache.New(client, cfg.RetentionWindow*2), client
}
