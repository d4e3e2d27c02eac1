package bootstrap

import (
	"fmt"
	"time"

	"github.com/kirillkom/screen-assistant/internal/config"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
	"github.com/kirillkom/screen-assistant/internal/core/usecase"
	auditnats "github.com/kirillkom/screen-assistant/internal/infrastructure/audit/nats"
	"github.com/kirillkom/screen-assistant/internal/infrastructure/lexical/postgres"
	"github.com/kirillkom/screen-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/screen-assistant/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/screen-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/screen-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Service ports.AssistantService
	OCR     ports.OCRExtractor
	Audit   *auditnats.Publisher

	closeFn func()
}

func New(cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sparse := postgres.NewSearcher(db)

	dense := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	audit, err := auditnats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, auditnats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit publisher: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	ocr := tesseract.New(cfg.OCRServiceURL, executor)

	normalizer := usecase.NewNormalizer(embedder, cfg.MaxQueryChars, cfg.MaxOCRKeywords)
	assembler := usecase.NewAssembler(cfg.TokenBudget, cfg.OverlapThreshold)
	driver := usecase.NewGenerationDriver(
		generator,
		time.Duration(cfg.GenerationTimeoutSeconds)*time.Second,
		cfg.GenerationMaxAttempts,
	)

	pipeline := usecase.NewPipeline(normalizer, dense, sparse, assembler, driver, audit, usecase.PipelineOptions{
		RetrieveK: cfg.RetrieveK,
		FinalK:    cfg.FinalK,
		Weights: usecase.FusionWeights{
			DenseWeight:    cfg.Tuning.DenseWeight,
			SparseWeight:   cfg.Tuning.SparseWeight,
			RankConstant:   cfg.Tuning.RankConstant,
			RelevanceFloor: cfg.Tuning.RelevanceFloor,
		},
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})

	return &App{
		Config:  cfg,
		Service: pipeline,
		OCR:     ocr,
		Audit:   audit,

		closeFn: func() {
			audit.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
