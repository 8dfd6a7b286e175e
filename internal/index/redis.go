package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/corpus"
	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// RedisConfig holds connection and naming parameters for the Redis backend.
type RedisConfig struct {
	Addrs        []string
	Password     string
	Alias        string // serving index alias, retargeted on rebuild
	KeyPrefix    string
	MetadataPath string // local artifact root with manifest + chunk metadata
}

// Redis serves vector search from a Redis Search index behind an alias.
// Vectors live in Redis; chunk metadata is loaded from the local artifact the
// same rebuild produced, so the runtime drop check can still catch drift
// between the two.
type Redis struct {
	client rueidis.Client
	cfg    RedisConfig
	logger *zap.Logger

	current atomic.Pointer[redisSnapshot]
}

// OpenRedis connects to Redis and attempts the initial metadata load.
func OpenRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	r := &Redis{client: client, cfg: cfg, logger: logger}
	if err := r.Reload(); err != nil {
		logger.Warn("index metadata not loaded, serving unavailable",
			zap.String("path", cfg.MetadataPath),
			zap.Error(err),
		)
	}
	return r, nil
}

// WaitForReady polls PING until the server responds or the timeout expires.
func (r *Redis) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			cmd := r.client.B().Ping().Build()
			if err := r.client.Do(ctx, cmd).Error(); err == nil {
				return nil
			}
		}
	}
}

// Close shuts down the client.
func (r *Redis) Close() { r.client.Close() }

// Snapshot returns the current metadata view, or ErrIndexUnavailable before
// the first successful load.
func (r *Redis) Snapshot() (Snapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, domain.ErrIndexUnavailable
	}
	return s, nil
}

// Reload re-reads the local artifact manifest and chunk metadata. The serving
// alias in Redis is already retargeted by the indexer; this picks up the
// matching metadata half of the rebuild.
func (r *Redis) Reload() error {
	man, err := LoadManifest(filepath.Join(r.cfg.MetadataPath, ManifestFile))
	if err != nil {
		return err
	}

	meta, err := corpus.Load(filepath.Join(r.cfg.MetadataPath, man.BuildDir, MetadataFile))
	if err != nil {
		return err
	}

	if man.Count != meta.Count() {
		return fmt.Errorf("%w: metadata=%d manifest=%d",
			domain.ErrCorpusMisaligned, meta.Count(), man.Count)
	}

	r.current.Store(&redisSnapshot{r: r, meta: meta, man: man})
	r.logger.Info("index metadata loaded",
		zap.String("alias", r.cfg.Alias),
		zap.String("build", man.BuildDir),
		zap.Int("count", man.Count),
	)
	return nil
}

type redisSnapshot struct {
	r    *Redis
	meta *corpus.Store
	man  Manifest
}

// Search runs a KNN vector similarity search via FT.SEARCH on the alias.
func (s *redisSnapshot) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if s.meta.Count() == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k < 1 {
		k = 1
	}

	args := knnSearchArgs(s.r.cfg.Alias, vector, k)
	cmd := s.r.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.r.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") {
			return nil, fmt.Errorf("%w: alias %s not defined", domain.ErrIndexUnavailable, s.r.cfg.Alias)
		}
		return nil, fmt.Errorf("ft.search %s: %w", s.r.cfg.Alias, err)
	}

	return parseKNNResult(raw)
}

func (s *redisSnapshot) Resolve(id int64) (domain.Chunk, bool) { return s.meta.Resolve(id) }

func (s *redisSnapshot) Count() int { return s.meta.Count() }

func (s *redisSnapshot) Manifest() Manifest { return s.man }

// knnSearchArgs builds the FT.SEARCH argument list for a KNN query. Without
// an explicit LIMIT the server pages at its default of 10 results, no matter
// what k the KNN clause asks for.
func knnSearchArgs(alias string, vector []float32, k int) []string {
	return []string{
		alias, fmt.Sprintf("*=>[KNN %d @vector $BLOB]", k),
		"RETURN", "1", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	}
}

// parseKNNResult decodes the RESP2 FT.SEARCH reply.
// 2-stride: [total, key1, fields1, key2, fields2, ...]
func parseKNNResult(raw []rueidis.RedisMessage) ([]Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		id, ok := idFromKey(key)
		if !ok {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		score := 0.0
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].ToString()
			if name != "__vector_score" {
				continue
			}
			val, _ := fields[j+1].ToString()
			if dist, err := strconv.ParseFloat(val, 64); err == nil {
				score = max(0, 1.0-dist) // cosine distance → similarity, clamped to [0,1]
			}
		}

		hits = append(hits, Hit{ID: id, Score: score})
	}

	return hits, nil
}

// idFromKey extracts the numeric chunk identifier after the last key separator.
func idFromKey(key string) (int64, bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 || i == len(key)-1 {
		return 0, false
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// vectorToBytes encodes float32 values as little-endian binary for FT.SEARCH PARAMS.
func vectorToBytes(vec []float32) string {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return rueidis.BinaryString(buf)
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

// --- Rebuild-side operations (used by the indexer, never by the server) ---

// CreateVersionedIndex creates an FT index over hashes under prefix with a
// FLAT float32 cosine vector field. FLAT keeps recall exact; statute corpora
// are small enough that HNSW buys nothing.
func (r *Redis) CreateVersionedIndex(ctx context.Context, name, prefix string, dims int) error {
	args := []string{
		name, "ON", "HASH",
		"PREFIX", "1", prefix,
		"SCHEMA",
		"vector", "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dims),
		"DISTANCE_METRIC", "COSINE",
		"article", "TAG",
		"law", "TAG",
	}
	cmd := r.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ft.create %s: %w", name, err)
	}
	return nil
}

// IngestChunk writes one chunk hash under the versioned prefix.
func (r *Redis) IngestChunk(ctx context.Context, prefix string, c domain.Chunk, vector []float32) error {
	key := prefix + strconv.FormatInt(c.ID, 10)
	cmd := r.client.B().Hset().Key(key).FieldValue().
		FieldValue("vector", vectorToBytes(vector)).
		FieldValue("article", c.Article).
		FieldValue("law", c.Law).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// SwapAlias atomically retargets the serving alias to a freshly built index.
func (r *Redis) SwapAlias(ctx context.Context, indexName string) error {
	cmd := r.client.B().Arbitrary("FT.ALIASUPDATE").Args(r.cfg.Alias, indexName).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ft.aliasupdate %s -> %s: %w", r.cfg.Alias, indexName, err)
	}
	return nil
}

// DropIndex removes a retired index version, keeping its documents out of the
// way of future prefixes.
func (r *Redis) DropIndex(ctx context.Context, name string) error {
	cmd := r.client.B().Arbitrary("FT.DROPINDEX").Args(name, "DD").Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return nil
		}
		return fmt.Errorf("ft.dropindex %s: %w", name, err)
	}
	return nil
}
