// The indexer rebuilds the vector index from statute text. A rebuild is a
// whole new build directory (chromem) or a fresh versioned Redis index; the
// serving side only ever observes complete builds, published by an atomic
// manifest rename or an FT.ALIASUPDATE.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/config"
	"github.com/rc-ventura/educajus-br-ai/internal/corpus"
	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/index"
	logpkg "github.com/rc-ventura/educajus-br-ai/internal/logger"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
	openaiClient "github.com/rc-ventura/educajus-br-ai/internal/transport/openai"
	"github.com/rc-ventura/educajus-br-ai/internal/version"
)

const embedBatchSize = 64

func main() {
	var (
		sourcePath string
		chunksPath string
		law        string
		sourceURL  string
	)
	flag.StringVar(&sourcePath, "source", "", "cleaned statute text, split on Art. N headers")
	flag.StringVar(&chunksPath, "chunks", "", "pre-chunked metadata JSONL (skips chunking)")
	flag.StringVar(&law, "law", "8078/90", "law identifier stored on every chunk")
	flag.StringVar(&sourceURL, "url", "https://www.planalto.gov.br/ccivil_03/leis/l8078compilado.htm", "source URL stored on every chunk")
	flag.Parse()

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

	logger.Info("Starting educajus indexer",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("model", cfg.Embedding.Model),
	)

	metrics.RegisterEmbeddingMetrics()

	chunks, err := loadChunks(sourcePath, chunksPath, law, sourceURL)
	if err != nil {
		logger.Fatal("Failed to load chunks", zap.Error(err))
	}
	if len(chunks) == 0 {
		logger.Fatal("No chunks produced from the source")
	}
	logger.Info("Chunks loaded", zap.Int("count", len(chunks)))

	// Document embedder. The matching query instruction is applied at serving
	// time; mixing the two sides breaks retrieval silently.
	var embedder domain.Embedder = openaiClient.NewEmbedder(&openaiClient.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	if cfg.Embedding.DocumentInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Embedding.DocumentInstruction)
	}

	ctx := context.Background()
	embeddings, err := embedAll(ctx, embedder, chunks, logger)
	if err != nil {
		logger.Fatal("Failed to embed chunks", zap.Error(err))
	}

	dims := len(embeddings[0])
	if cfg.Embedding.Dimensions > 0 && dims != cfg.Embedding.Dimensions {
		logger.Fatal("Embedding dimensions do not match config",
			zap.Int("got", dims),
			zap.Int("want", cfg.Embedding.Dimensions),
		)
	}

	buildVersion := time.Now().UTC().Format("20060102t150405")
	man := index.Manifest{
		Model:      cfg.Embedding.Model,
		Dimensions: dims,
		Count:      len(chunks),
		Collection: cfg.Index.Chromem.Collection,
		BuildDir:   "build-" + buildVersion,
		BuiltAt:    time.Now().UTC(),
	}

	switch cfg.Index.Driver {
	case "chromem":
		err = publishChromem(ctx, cfg.Index.Chromem.Path, man, chunks, embeddings)
	case "redis":
		err = publishRedis(ctx, cfg, man, buildVersion, chunks, embeddings, logger)
	default:
		logger.Fatal("Unknown index driver", zap.String("driver", cfg.Index.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to publish index", zap.Error(err))
	}

	logger.Info("Index published",
		zap.String("build", man.BuildDir),
		zap.Int("count", man.Count),
		zap.Int("dimensions", man.Dimensions),
	)
}

// loadChunks reads pre-chunked JSONL or chunks raw statute text.
func loadChunks(sourcePath, chunksPath, law, sourceURL string) ([]domain.Chunk, error) {
	switch {
	case chunksPath != "":
		store, err := corpus.Load(chunksPath)
		if err != nil {
			return nil, err
		}
		return store.Chunks(), nil
	case sourcePath != "":
		data, err := os.ReadFile(filepath.Clean(sourcePath))
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", sourcePath, err)
		}
		collectedAt := time.Now().UTC().Format("2006-01-02")
		return corpus.SplitArticles(string(data), law, sourceURL, collectedAt), nil
	default:
		return nil, fmt.Errorf("either -source or -chunks is required")
	}
}

// embedAll vectorizes chunk texts in batches.
func embedAll(ctx context.Context, e domain.Embedder, chunks []domain.Chunk, logger *zap.Logger) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	batcher, hasBatch := e.(domain.BatchEmbedder)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))

		var res domain.BatchEmbeddingResult
		var err error
		if hasBatch {
			res, err = batcher.BatchEmbed(ctx, texts[start:end])
		} else {
			res, err = domain.BatchFallback(ctx, e, texts[start:end])
		}
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, res.Embeddings...)

		logger.Info("Embedded batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("tokens", res.TotalTokens),
		)
	}
	return out, nil
}

// publishChromem writes a fresh build directory under the artifact root and
// commits it with an atomic manifest rename.
func publishChromem(ctx context.Context, root string, man index.Manifest, chunks []domain.Chunk, embeddings [][]float32) error {
	buildDir := filepath.Join(root, man.BuildDir)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("create build dir %s: %w", buildDir, err)
	}

	if err := corpus.Write(filepath.Join(buildDir, index.MetadataFile), chunks); err != nil {
		return err
	}
	if err := index.BuildChromem(ctx, buildDir, man.Collection, chunks, embeddings); err != nil {
		return err
	}

	// The manifest rename is the publish step; everything before it is invisible.
	return index.WriteManifest(filepath.Join(root, index.ManifestFile), man)
}

// publishRedis ingests vectors into a fresh versioned index, writes the local
// metadata artifact, then retargets the serving alias. The previous version is
// dropped only after the swap.
func publishRedis(
	ctx context.Context, cfg config.Config, man index.Manifest,
	buildVersion string, chunks []domain.Chunk, embeddings [][]float32,
	logger *zap.Logger,
) error {
	store, err := index.OpenRedis(index.RedisConfig{
		Addrs:        cfg.Index.Redis.Addrs,
		Password:     cfg.Index.Redis.Password,
		Alias:        cfg.Index.Redis.Alias,
		KeyPrefix:    cfg.Index.Redis.KeyPrefix,
		MetadataPath: cfg.Index.Redis.MetadataPath,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	readiness := time.Duration(cfg.Index.Redis.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		return err
	}

	// Remember the previous build so its index can be retired after the swap.
	root := cfg.Index.Redis.MetadataPath
	var prevIndex string
	if prev, err := index.LoadManifest(filepath.Join(root, index.ManifestFile)); err == nil {
		prevIndex = redisIndexName(cfg.Index.Redis.Alias, strings.TrimPrefix(prev.BuildDir, "build-"))
	}

	indexName := redisIndexName(cfg.Index.Redis.Alias, buildVersion)
	prefix := cfg.Index.Redis.KeyPrefix + buildVersion + ":"

	if err := store.CreateVersionedIndex(ctx, indexName, prefix, man.Dimensions); err != nil {
		return err
	}
	for i, c := range chunks {
		if err := store.IngestChunk(ctx, prefix, c, embeddings[i]); err != nil {
			return err
		}
	}

	buildDir := filepath.Join(root, man.BuildDir)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("create build dir %s: %w", buildDir, err)
	}
	if err := corpus.Write(filepath.Join(buildDir, index.MetadataFile), chunks); err != nil {
		return err
	}
	if err := index.WriteManifest(filepath.Join(root, index.ManifestFile), man); err != nil {
		return err
	}

	if err := store.SwapAlias(ctx, indexName); err != nil {
		return err
	}

	if prevIndex != "" && prevIndex != indexName {
		if err := store.DropIndex(ctx, prevIndex); err != nil {
			logger.Warn("failed to drop retired index", zap.String("index", prevIndex), zap.Error(err))
		}
	}
	return nil
}

func redisIndexName(alias, version string) string {
	return alias + "-" + version
}
