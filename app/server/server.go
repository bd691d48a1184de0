package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"novelrag/app/api"
	"novelrag/app/prompt"
	"novelrag/app/session"
	"novelrag/chunker"
	"novelrag/config"
	"novelrag/loader/service"
	"novelrag/model"
	"novelrag/retriever"
	"novelrag/store"
)

type Server struct {
	listenAddr string
	cfgPath    string
	logger     *slog.Logger
	app        *fiber.App
}

func NewServer(addr, cfgPath string) *Server {
	return &Server{
		listenAddr: addr,
		cfgPath:    cfgPath,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("error during shutdown", "error", err.Error())
		}
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		log.Fatal("error loading config: ", err)
		return
	}

	pool, err := store.NewPostgresStore(ctx, pgConnStr(), embeddingDim())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	embedder, err := model.NewEmbedderFromEnv()
	if err != nil {
		log.Fatal("error creating embedder: ", err)
		return
	}
	generator := model.NewGeneratorFromEnv()

	sizer, err := prompt.NewSizer(cfg.Context.Unit)
	if err != nil {
		log.Fatal("error creating sizer: ", err)
		return
	}
	assembler, err := prompt.NewAssembler(sizer, cfg.Context.Budget, cfg.Context.HistoryBudget)
	if err != nil {
		log.Fatal("error creating assembler: ", err)
		return
	}

	chatSession := session.New(
		retriever.New(embedder, pool, cfg.Retrieval.TopK),
		assembler,
		generator,
		cfg.RequestTimeout(),
	)

	var (
		app = fiber.New(fiber.Config{
			ErrorHandler: api.ErrorHandler,
		})
		checkHandler = api.NewCheckHandler()
		chatHandler  = api.NewChatHandler(chatSession)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)
	s.app = app

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/chat", chatHandler.HandleChat)

	// Rebuilds are only exposed when the server knows where the sources are.
	if sourceDir := os.Getenv("LOADER_SOURCE_DIR"); sourceDir != "" {
		ch, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
		if err != nil {
			log.Fatal("error creating chunker: ", err)
			return
		}
		builder := service.New(pool, embedder, ch, service.Config{
			SourceDir: sourceDir,
			BatchSize: cfg.Build.BatchSize,
			Settle:    cfg.SettleTime(),
		})
		buildHandler := api.NewBuildHandler(builder, cfg.BuildTimeout())
		apiv1.Post("/rebuild", buildHandler.HandleRebuild)
	}

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
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
