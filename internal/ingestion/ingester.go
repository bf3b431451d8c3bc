package ingestion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/openai"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
)

type Config struct {
	Namespace   string
	TextField   string
	BatchSize   int
	Concurrency int
}

func DefaultConfig() Config {
	return Config{TextField: "text", BatchSize: 64, Concurrency: 4}
}

type Stats struct {
	Files   int
	Skipped int
	Chunks  int
	// Pruned counts vectors removed because their file shrank.
	Pruned int
}

type chunk struct {
	id     string
	source string
	index  int
	text   string
}

type Ingester struct {
	log     *logger.Logger
	ai      openai.Client
	store   pinecone.VectorStore
	chunker *Chunker
	metrics *observability.Metrics
	cfg     Config
}

func NewIngester(log *logger.Logger, ai openai.Client, store pinecone.VectorStore, chunker *Chunker, metrics *observability.Metrics, cfg Config) *Ingester {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.TextField) == "" {
		cfg.TextField = def.TextField
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if chunker == nil {
		chunker = NewChunker(nil, 0, 50)
	}
	return &Ingester{
		log:     log.With("service", "Ingester"),
		ai:      ai,
		store:   store,
		chunker: chunker,
		metrics: metrics,
		cfg:     cfg,
	}
}

// VectorID is stable per (source, chunk) so re-ingesting a file overwrites
// its previous vectors.
func VectorID(source string, index int) string {
	return fmt.Sprintf("%s%d", sourcePrefix(source), index)
}

// sourcePrefix is the id prefix shared by every chunk of source.
func sourcePrefix(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:]) + "#"
}

// deleteBatchSize is the most ids one Pinecone delete accepts.
const deleteBatchSize = 1000

// IngestDir loads every supported file under dir and upserts its chunks.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (Stats, error) {
	var stats Stats
	var chunks []*chunk
	counts := map[string]int{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}
		fileChunks, err := in.prepare(dir, path)
		if err != nil {
			stats.Skipped++
			in.log.Warn("Skipping file", "path", path, "error", err)
			return nil
		}
		stats.Files++
		counts[sourceName(dir, path)] = len(fileChunks)
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk %s: %w", dir, err)
	}
	n, err := in.embedAndUpsert(ctx, chunks)
	stats.Chunks = n
	if err != nil {
		return stats, err
	}
	for source, keep := range counts {
		pruned, err := in.pruneStale(ctx, source, keep)
		stats.Pruned += pruned
		if err != nil {
			return stats, err
		}
	}
	in.log.Info("Ingest finished", "dir", dir, "files", stats.Files, "skipped", stats.Skipped, "chunks", stats.Chunks, "pruned", stats.Pruned)
	return stats, nil
}

// IngestFile re-ingests one file and drops chunks left over from a longer
// earlier version; root determines its source name.
func (in *Ingester) IngestFile(ctx context.Context, root, path string) (int, error) {
	chunks, err := in.prepare(root, path)
	if err != nil {
		return 0, err
	}
	n, err := in.embedAndUpsert(ctx, chunks)
	if err != nil {
		return n, err
	}
	if _, err := in.pruneStale(ctx, sourceName(root, path), len(chunks)); err != nil {
		return n, err
	}
	return n, nil
}

// RemoveFile deletes every vector of a file that no longer exists.
func (in *Ingester) RemoveFile(ctx context.Context, root, path string) (int, error) {
	return in.pruneStale(ctx, sourceName(root, path), 0)
}

// pruneStale deletes the vectors of source whose chunk index is keep or higher.
func (in *Ingester) pruneStale(ctx context.Context, source string, keep int) (int, error) {
	prefix := sourcePrefix(source)
	ids, err := in.store.ListIDs(ctx, in.cfg.Namespace, prefix)
	if err != nil {
		return 0, fmt.Errorf("list vectors of %s: %w", source, err)
	}
	var stale []string
	for _, id := range ids {
		idx, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil || idx >= keep {
			stale = append(stale, id)
		}
	}
	for start := 0; start < len(stale); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(stale))
		if err := in.store.DeleteIDs(ctx, in.cfg.Namespace, stale[start:end]); err != nil {
			return start, fmt.Errorf("delete stale vectors of %s: %w", source, err)
		}
	}
	if len(stale) > 0 {
		in.log.Info("Pruned stale chunks", "source", source, "count", len(stale))
	}
	return len(stale), nil
}

func (in *Ingester) prepare(root, path string) ([]*chunk, error) {
	text, err := Load(path)
	if err != nil {
		return nil, err
	}
	source := sourceName(root, path)
	parts := in.chunker.Chunk(text)
	out := make([]*chunk, 0, len(parts))
	for i, p := range parts {
		out = append(out, &chunk{id: VectorID(source, i), source: source, index: i, text: p})
	}
	return out, nil
}

func sourceName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (in *Ingester) embedAndUpsert(ctx context.Context, chunks []*chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for start := 0; start < len(chunks); start += in.cfg.BatchSize {
		end := start + in.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			if err := in.upsertBatch(gctx, batch); err != nil {
				in.metrics.AddIngestChunks("error", len(batch))
				return err
			}
			in.metrics.AddIngestChunks("ok", len(batch))
			done.Add(int64(len(batch)))
			return nil
		})
	}
	err := g.Wait()
	return int(done.Load()), err
}

func (in *Ingester) upsertBatch(ctx context.Context, batch []*chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.text
	}
	vecs, err := in.ai.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed batch: expected %d vectors, got %d", len(batch), len(vecs))
	}
	vectors := make([]pinecone.Vector, len(batch))
	for i, c := range batch {
		vectors[i] = pinecone.Vector{
			ID:     c.id,
			Values: vecs[i],
			Metadata: map[string]any{
				in.cfg.TextField: c.text,
				"source":         c.source,
				"chunk":          c.index,
			},
		}
	}
	if err := in.store.Upsert(ctx, in.cfg.Namespace, vectors); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}
