package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/option-sim/internal/metrics"
	"github.com/amirphl/option-sim/internal/table"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration
	RPS       float64
	Location  *time.Location
}

// S3 is a Store over an S3 compatible bucket. Every call is rate limited and
// bounded by Timeout.
type S3 struct {
	client   *minio.Client
	bucket   string
	timeout  time.Duration
	limiter  *rate.Limiter
	location *time.Location
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("blob store endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store client: %w", err)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(cfg.RPS))
	}

	return &S3{
		client:   client,
		bucket:   cfg.Bucket,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, burst),
		location: cfg.Location,
	}, nil
}

func (s *S3) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

func observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BlobRequests.WithLabelValues(op, status).Inc()
}

func (s *S3) List(ctx context.Context, prefix string) (out []ObjectInfo, err error) {
	defer func() { observe("list", err) }()

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

func (s *S3) ReadTable(ctx context.Context, key string) (t *table.Table, err error) {
	defer func() { observe("read", err) }()

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer obj.Close()

	t, err = table.ReadParquet(obj, table.Gzipped(key), s.location)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return t, nil
}

func (s *S3) WriteTable(ctx context.Context, key string, t *table.Table) (err error) {
	defer func() { observe("write", err) }()

	var buf bytes.Buffer
	if err := table.WriteParquet(&buf, t, table.Gzipped(key)); err != nil {
		return err
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = s.client.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	log := utils.Component("blobstore")
	log.Debug().Str("key", key).Int("rows", t.Len()).Msg("object written")
	return nil
}

// wrap maps missing objects onto ErrNotExist.
func (s *S3) wrap(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == 404) {
		return fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return fmt.Errorf("failed to read %s: %w", key, err)
}
