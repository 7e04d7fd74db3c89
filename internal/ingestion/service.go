package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/evolvian/assistant-platform/internal/retrieval"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Service.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type indexer interface {
	ReplaceSource(ctx context.Context, tenantID, source string, chunks []string) error
}

// Service moves tenant documents from object storage into the retrieval
// index: fetch, chunk, embed, replace that document's rows.
type Service struct {
	s3Client S3API
	bucket   string
	chunker  *retrieval.Chunker
	index    indexer
	logger   *logging.Logger
}

// NewService creates an ingestion service. If bucket is empty, ingestion is
// disabled and all operations return an error.
func NewService(s3Client S3API, bucket string, chunker *retrieval.Chunker, index indexer, logger *logging.Logger) *Service {
	if chunker == nil {
		chunker = retrieval.NewChunker(0, 0)
	}
	if index == nil {
		panic("ingestion: index required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		s3Client: s3Client,
		bucket:   bucket,
		chunker:  chunker,
		index:    index,
		logger:   logger.WithComponent("ingestion"),
	}
}

// Enabled reports whether object storage is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

func tenantKey(tenantID, source string) string {
	return path.Join("tenants", tenantID, source)
}

// Upload stores a document in the tenant's folder and indexes it.
func (s *Service) Upload(ctx context.Context, tenantID, source string, content io.Reader) error {
	if !s.Enabled() {
		return fmt.Errorf("ingestion: object storage not configured")
	}
	if tenantID == "" || source == "" {
		return fmt.Errorf("ingestion: tenant_id and source are required")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("ingestion: read upload: %w", err)
	}

	key := tenantKey(tenantID, source)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("ingestion: s3 put %s: %w", key, err)
	}

	return s.indexContent(ctx, tenantID, source, string(data))
}

// Ingest re-reads one stored document and rebuilds its index rows.
func (s *Service) Ingest(ctx context.Context, tenantID, source string) error {
	if !s.Enabled() {
		return fmt.Errorf("ingestion: object storage not configured")
	}

	key := tenantKey(tenantID, source)
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("ingestion: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ingestion: read %s: %w", key, err)
	}

	return s.indexContent(ctx, tenantID, source, string(data))
}

// Reindex walks every document in the tenant's folder and rebuilds the whole
// index for that tenant. Returns the number of documents processed.
func (s *Service) Reindex(ctx context.Context, tenantID string) (int, error) {
	if !s.Enabled() {
		return 0, fmt.Errorf("ingestion: object storage not configured")
	}

	prefix := tenantKey(tenantID, "") + "/"
	var processed int
	var continuation *string
	for {
		out, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return processed, fmt.Errorf("ingestion: s3 list %s: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			source := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if source == "" {
				continue
			}
			if err := s.Ingest(ctx, tenantID, source); err != nil {
				s.logger.Warn("failed to reindex document", "tenant_id", tenantID, "source", source, "error", err)
				continue
			}
			processed++
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	s.logger.Info("tenant reindex complete", "tenant_id", tenantID, "documents", processed)
	return processed, nil
}

func (s *Service) indexContent(ctx context.Context, tenantID, source, content string) error {
	chunks := s.chunker.Split(content)
	if err := s.index.ReplaceSource(ctx, tenantID, source, chunks); err != nil {
		return fmt.Errorf("ingestion: index %s: %w", source, err)
	}
	return nil
}
