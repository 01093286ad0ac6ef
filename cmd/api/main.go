package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
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
)

type APIConfig struct {
	DatabaseURL       string  `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string  `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string  `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string  `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string  `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string  `env:"AWS_REGION,notEmpty,required"`
	ModelBucket       string  `env:"MODEL_BUCKET_NAME" envDefault:"models"`
	UploadBucket      string  `env:"UPLOAD_BUCKET_NAME" envDefault:"uploads"`
	ResultsBucket     string  `env:"RESULTS_BUCKET_NAME" envDefault:"results"`
	ModelDir          string  `env:"MODEL_DIR" envDefault:"./models"`
	OnnxRuntimeDylib  string  `env:"ONNX_RUNTIME_DYLIB"`
	OpenAIModel       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	RedisURL          string  `env:"REDIS_URL"`
	CacheTTLSeconds   int     `env:"CACHE_TTL_SECONDS" envDefault:"3600"`
	JWTSecret         string  `env:"JWT_SECRET"`
	RateLimitRPS      float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	APIPort           string  `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := core.InitOnnxRuntime(cfg.OnnxRuntimeDylib); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     cfg.S3EndpointURL,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
	})
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	ctx := context.Background()
	for _, bucket := range []string{cfg.ModelBucket, cfg.UploadBucket, cfg.ResultsBucket} {
		if err := store.CreateBucket(ctx, bucket); err != nil {
			log.Fatalf("Failed to create bucket %s: %v", bucket, err)
		}
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	var resultCache cache.ResultCache
	if cfg.RedisURL != "" {
		resultCache, err = cache.NewRedisCache(cfg.RedisURL, cacheTTL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	} else {
		resultCache = cache.NewMemoryCache(cacheTTL, 10000)
	}

	cmd.InitializeLexiconModel(db)
	cmd.InitializeLLMModel(db, cfg.OpenAIModel)

	engine := core.NewModelEngine(store, core.NewModelLoaders(cfg.OpenAIModel), cfg.ModelDir, cfg.ModelBucket)
	defer engine.Release()

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
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(api.JWTAuth([]byte(cfg.JWTSecret)))
	r.Use(api.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	apiHandler := api.NewBackendService(db, store, publisher, engine, resultCache, cfg.UploadBucket, cfg.ResultsBucket)
	r.Route("/api", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
