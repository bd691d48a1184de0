package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"novelrag/chunker"
	"novelrag/config"
	"novelrag/loader/service"
	"novelrag/model"
	"novelrag/store"
)

var watch = flag.Bool("watch", false, "keep running and rebuild on source changes")

func init() {
	mustLoadEnvVariables()
}

func main() {
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("error loading config: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.NewPostgresStore(ctx, pgConnStr(), embeddingDim())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
	}

	embedder, err := model.NewEmbedderFromEnv()
	if err != nil {
		log.Fatal("error creating embedder: ", err)
	}

	ch, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatal("error creating chunker: ", err)
	}

	svc := service.New(pool, embedder, ch, service.Config{
		SourceDir: os.Getenv("LOADER_SOURCE_DIR"),
		BatchSize: cfg.Build.BatchSize,
		Settle:    cfg.SettleTime(),
	})

	if *watch {
		go func() {
			sigch := make(chan os.Signal, 1)
			signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
			<-sigch
			log.Println("Received shutdown signal, shutting down loader...")
			cancel()
		}()

		if err := svc.Run(ctx); err != nil {
			log.Printf("loader stopped with error: %v", err)
		}
	} else {
		buildCtx, buildCancel := context.WithTimeout(ctx, cfg.BuildTimeout())
		defer buildCancel()
		if err := svc.Build(buildCtx); err != nil {
			log.Fatal("index build failed: ", err)
		}
	}

	log.Println("Closing database connection pool...")
	if err := pool.Close(); err != nil {
		log.Printf("error closing pool: %v\n", err)
	}
}

func pgConnStr() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}

func embeddingDim() int {
	dim, _ := strconv.Atoi(os.Getenv("EMBEDDING_DIM"))
	return dim
}

func mustLoadEnvVariables() {
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}
}
