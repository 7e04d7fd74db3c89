package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/pkg/logging"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EmbeddingStore keeps document chunks with their embeddings in PostgreSQL
// and ranks them by cosine similarity against the embedded query.
type EmbeddingStore struct {
	pool   querier
	client embeddingClient
	model  string
	topK   int
	tracer trace.Tracer
	logger *logging.Logger
}

// NewEmbeddingStore creates a store over a pgx pool.
func NewEmbeddingStore(pool *pgxpool.Pool, client embeddingClient, model string, topK int, logger *logging.Logger) *EmbeddingStore {
	if pool == nil {
		panic("retrieval: pgx pool required")
	}
	return newEmbeddingStoreWithQuerier(pool, client, model, topK, logger)
}

func newEmbeddingStoreWithQuerier(q querier, client embeddingClient, model string, topK int, logger *logging.Logger) *EmbeddingStore {
	if client == nil {
		panic("retrieval: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmbeddingStore{
		pool:   q,
		client: client,
		model:  model,
		topK:   topK,
		tracer: otel.Tracer("evolvian.internal.retrieval"),
		logger: logger.WithComponent("retrieval"),
	}
}

var _ Retriever = (*EmbeddingStore)(nil)

// Retrieve embeds the query and returns the tenant's topK chunks by cosine
// similarity. Tenants with no documents get an empty result.
func (s *EmbeddingStore) Retrieve(ctx context.Context, tenantID, query string) ([]Passage, error) {
	ctx, span := s.tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()

	queryVec, err := s.embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval: failed to embed query: %w", err)
	}
	if len(queryVec) == 0 {
		return []Passage{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content, source, embedding
		FROM document_chunks
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval: failed to load chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		passage Passage
		score   float64
	}
	var candidates []scored
	for rows.Next() {
		var content, source string
		var embedding []float32
		if err := rows.Scan(&content, &source, &embedding); err != nil {
			return nil, fmt.Errorf("retrieval: failed to scan chunk: %w", err)
		}
		candidates = append(candidates, scored{
			passage: Passage{Text: content, Source: source},
			score:   cosineSimilarity(queryVec[0], embedding),
		})
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval: failed to read chunks: %w", err)
	}

	if len(candidates) == 0 {
		return []Passage{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	limit := s.topK
	if len(candidates) < limit {
		limit = len(candidates)
	}
	out := make([]Passage, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].passage
	}
	return out, nil
}

// ReplaceSource swaps all chunks of one document: delete the old rows, embed
// the new chunks, insert. Callers pass chunks from Chunker.Split.
func (s *EmbeddingStore) ReplaceSource(ctx context.Context, tenantID, source string, chunks []string) error {
	ctx, span := s.tracer.Start(ctx, "retrieval.replace_source")
	defer span.End()

	if tenantID == "" || source == "" {
		return fmt.Errorf("retrieval: tenant_id and source are required")
	}

	var embeddings [][]float32
	if len(chunks) > 0 {
		var err error
		embeddings, err = s.embed(ctx, chunks)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("retrieval: failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(chunks) {
			return errors.New("retrieval: embedding response size mismatch")
		}
	}

	if _, err := s.pool.Exec(ctx, `
		DELETE FROM document_chunks WHERE tenant_id = $1 AND source = $2
	`, tenantID, source); err != nil {
		span.RecordError(err)
		return fmt.Errorf("retrieval: failed to clear old chunks: %w", err)
	}

	for i, chunk := range chunks {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO document_chunks (tenant_id, source, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5)
		`, tenantID, source, i, chunk, embeddings[i]); err != nil {
			span.RecordError(err)
			return fmt.Errorf("retrieval: failed to insert chunk %d: %w", i, err)
		}
	}

	s.logger.Info("reindexed document", "tenant_id", tenantID, "source", source, "chunks", len(chunks))
	return nil
}

// CountChunks reports how many chunks a tenant has stored.
func (s *EmbeddingStore) CountChunks(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM document_chunks WHERE tenant_id = $1
	`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("retrieval: failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *EmbeddingStore) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: inputs,
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
