package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/auditor"
	"github.com/rc-ventura/educajus-br-ai/internal/config"
	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/drafter"
	"github.com/rc-ventura/educajus-br-ai/internal/guard"
	"github.com/rc-ventura/educajus-br-ai/internal/index"
	logpkg "github.com/rc-ventura/educajus-br-ai/internal/logger"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
	"github.com/rc-ventura/educajus-br-ai/internal/pipeline"
	"github.com/rc-ventura/educajus-br-ai/internal/polisher"
	"github.com/rc-ventura/educajus-br-ai/internal/retriever"
	"github.com/rc-ventura/educajus-br-ai/internal/review"
	"github.com/rc-ventura/educajus-br-ai/internal/transport/httpapi"
	openaiClient "github.com/rc-ventura/educajus-br-ai/internal/transport/openai"
	"github.com/rc-ventura/educajus-br-ai/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting educajus API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	ctx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	// Create the index provider based on driver
	var provider index.Provider
	switch cfg.Index.Driver {
	case "chromem":
		chromem := index.OpenChromem(cfg.Index.Chromem.Path, cfg.Index.Chromem.Collection, logger)
		if cfg.Index.Chromem.Watch {
			go func() {
				if err := index.Watch(ctx, cfg.Index.Chromem.Path, chromem, logger); err != nil {
					logger.Error("index watcher stopped", zap.Error(err))
				}
			}()
		}
		provider = chromem
	case "redis":
		store, err := index.OpenRedis(index.RedisConfig{
			Addrs:        cfg.Index.Redis.Addrs,
			Password:     cfg.Index.Redis.Password,
			Alias:        cfg.Index.Redis.Alias,
			KeyPrefix:    cfg.Index.Redis.KeyPrefix,
			MetadataPath: cfg.Index.Redis.MetadataPath,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Redis index", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Index.Redis.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to Redis")
		provider = store
	default:
		logger.Fatal("Unknown index driver", zap.String("driver", cfg.Index.Driver))
	}

	// Query embedder. The index was built with the document instruction; the
	// query side must use the matching query instruction.
	embedder := openaiClient.NewEmbedder(&openaiClient.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	var queryEmbedder domain.Embedder = embedder
	if cfg.Embedding.QueryInstruction != "" {
		queryEmbedder = domain.NewInstructionEmbedder(queryEmbedder, cfg.Embedding.QueryInstruction)
	}

	// Chat client is shared by the scope classifier and the drafter. Without an
	// API key the guard runs heuristic-only and the drafter serves templates.
	var chat *openaiClient.ChatClient
	if cfg.LLM.APIKey != "" {
		chat = openaiClient.NewChatClient(&openaiClient.ChatConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Logger:      logger,
		})
	}

	// Pass nil interface (not typed nil pointer!) when chat is not configured.
	var primary guard.ScopeClassifier
	var draftChat drafter.ChatCompleter
	if chat != nil {
		classifyTimeout := time.Duration(cfg.LLM.ClassifyTimeoutSec) * time.Second
		primary = guard.NewLLMClassifier(chat, classifyTimeout)
		draftChat = chat
	}

	intake := guard.New(guard.Options{
		Severity:       cfg.Intake.Severity,
		MaskToken:      cfg.Intake.MaskToken,
		Primary:        primary,
		Fallback:       guard.NewKeywordClassifier(cfg.Intake.InScopeTerms, cfg.Intake.OutOfScopeTerms),
		WarnDisclosure: guard.WarnDisclosure(cfg.Intake.WarnDisclosure),
		Logger:         logger,
	})

	retr := retriever.New(retriever.Options{
		Provider:     provider,
		Embedder:     queryEmbedder,
		EncoderModel: cfg.Embedding.Model,
		EncoderDims:  cfg.Embedding.Dimensions,
		DefaultK:     cfg.Retrieval.DefaultK,
		MaxK:         cfg.Retrieval.MaxK,
		Logger:       logger,
	})

	draft := drafter.New(draftChat, time.Duration(cfg.LLM.DraftTimeoutSec)*time.Second, logger)

	audit, err := auditor.New(logger)
	if err != nil {
		logger.Fatal("Failed to create auditor", zap.Error(err))
	}

	var reviews review.Queue
	if cfg.Review.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Review.Path), 0o755); err != nil {
			logger.Fatal("Failed to create review queue directory", zap.Error(err))
		}
		reviews = review.NewFileQueue(cfg.Review.Path, logger)
	}

	pipe := pipeline.New(pipeline.Options{
		Guard:       intake,
		Retriever:   retr,
		Drafter:     draft,
		Auditor:     audit,
		Polish:      polisher.Polish,
		Template:    drafter.Template,
		Reviews:     reviews,
		MinEvidence: cfg.Retrieval.MinEvidence,
		Logger:      logger,
	})

	server := httpapi.NewServer(pipe, provider, embedder, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
