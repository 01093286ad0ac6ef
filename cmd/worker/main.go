package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"sentiment-backend/cmd"
	"sentiment-backend/internal/core"
	"sentiment-backend/internal/database"
	"sentiment-backend/internal/messaging"
	"sentiment-backend/internal/storage"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION,notEmpty,required"`
	ModelBucket       string `env:"MODEL_BUCKET_NAME" envDefault:"models"`
	ModelDir          string `env:"MODEL_DIR" envDefault:"./models"`
	OnnxRuntimeDylib  string `env:"ONNX_RUNTIME_DYLIB"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	ChunkSize         int    `env:"BATCH_CHUNK_SIZE" envDefault:"500"`
	Concurrency       int    `env:"WORKER_CONCURRENCY" envDefault:"1"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
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

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ receiver: %v", err)
	}

	engine := core.NewModelEngine(store, core.NewModelLoaders(cfg.OpenAIModel), cfg.ModelDir, cfg.ModelBucket)

	worker := core.NewTaskProcessor(db, store, publisher, receiver, engine, cfg.ModelBucket, cfg.ChunkSize)

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	for i := 0; i < cfg.Concurrency; i++ {
		go worker.Start()
	}

	log.Printf("Worker started with %d consumers. Waiting for tasks. Press Ctrl+C to exit.", cfg.Concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")

	worker.Stop()

	log.Println("Worker process stopped.")
}
