package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sentiment-backend/cmd"
	"sentiment-backend/internal/api"
	"sentiment-backend/internal/cache"
	"sentiment-backend/internal/core"
	"sentiment-backend/internal/database"
	"sentiment-backend/internal/messaging"
	"sentiment-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

// Single-process deployment: sqlite, local filesystem storage, and an
// in-memory queue instead of postgres, S3, and RabbitMQ.
type Config struct {
	Root             string  `env:"ROOT" envDefault:"./sentiment-data"`
	Port             int     `env:"PORT" envDefault:"3001"`
	OnnxModelDir     string  `env:"ONNX_MODEL_DIR"`
	OnnxRuntimeDylib string  `env:"ONNX_RUNTIME_DYLIB"`
	OpenAIModel      string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	CacheTTLSeconds  int     `env:"CACHE_TTL_SECONDS" envDefault:"3600"`
	JWTSecret        string  `env:"JWT_SECRET"`
	RateLimitRPS     float64 `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst   int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	ChunkSize        int     `env:"BATCH_CHUNK_SIZE" envDefault:"500"`
}

const (
	modelBucket   = "models"
	uploadBucket  = "uploads"
	resultsBucket = "results"
)

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "sentiment.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	return db
}

// createQueue restores tasks that were queued when the process last exited,
// since the in-memory queue does not survive restarts.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	queue := messaging.NewInMemoryQueue()

	var jobs []database.BatchJob
	if err := db.Where("status = ?", database.JobQueued).Find(&jobs).Error; err != nil {
		log.Fatalf("Failed to fetch jobs from database: %v", err)
	}
	for _, job := range jobs {
		if err := queue.PublishBatchSplitTask(context.Background(), messaging.BatchSplitPayload{JobId: job.Id}); err != nil {
			log.Fatalf("Failed to publish batch split task: %v", err)
		}
	}

	var tasks []database.BatchTask
	if err := db.Where("status = ?", database.JobQueued).Find(&tasks).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}
	for _, task := range tasks {
		if err := queue.PublishInferenceTask(context.Background(), messaging.InferenceTaskPayload{
			JobId:  task.JobId,
			TaskId: task.TaskId,
		}); err != nil {
			log.Fatalf("Failed to publish inference task: %v", err)
		}
	}

	return queue
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := core.InitOnnxRuntime(cfg.OnnxRuntimeDylib); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating data directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)

	store, err := storage.NewLocalProvider(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	ctx := context.Background()
	for _, bucket := range []string{modelBucket, uploadBucket, resultsBucket} {
		if err := store.CreateBucket(ctx, bucket); err != nil {
			log.Fatalf("Failed to create bucket %s: %v", bucket, err)
		}
	}

	cmd.InitializeLexiconModel(db)
	cmd.InitializeLLMModel(db, cfg.OpenAIModel)
	if cfg.OnnxModelDir != "" {
		if err := cmd.InitializeOnnxModel(ctx, db, store, modelBucket, "transformer-base", cfg.OnnxModelDir); err != nil {
			log.Fatalf("Failed to init transformer model: %v", err)
		}
	}

	queue := createQueue(db)

	resultCache := cache.NewMemoryCache(time.Duration(cfg.CacheTTLSeconds)*time.Second, 10000)

	engine := core.NewModelEngine(store, core.NewModelLoaders(cfg.OpenAIModel), filepath.Join(cfg.Root, "models"), modelBucket)
	defer engine.Release()

	worker := core.NewTaskProcessor(db, store, queue, queue, engine, modelBucket, cfg.ChunkSize)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(api.JWTAuth([]byte(cfg.JWTSecret)))
	r.Use(api.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	apiHandler := api.NewBackendService(db, store, queue, engine, resultCache, uploadBucket, resultsBucket)
	r.Route("/api", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	slog.Info("starting worker")
	go worker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
