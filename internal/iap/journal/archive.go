package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"matchBack/internal/models"
)

// S3Config points at an S3 compatible bucket.
type S3Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
}

// S3Archive stores journal batches as objects.
type S3Archive struct {
	client *s3.S3
	bucket string
}

// NewS3Archive builds an S3 client from static credentials.
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is empty")
	}
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Archive{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// Put uploads body under key.
func (a *S3Archive) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("unable to upload %s to S3: %w", key, err)
	}
	return nil
}

// Uploader stores archive objects.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Source is the journal side of the archiver.
type Source interface {
	Peek(ctx context.Context, n int) ([]models.LedgerFailure, error)
	Trim(ctx context.Context, n int) error
}

// Archiver moves journal records into object storage as JSON lines.
type Archiver struct {
	source Source
	up     Uploader
	prefix string
	batch  int
	logger Logger
	now    func() time.Time
}

// NewArchiver constructs an Archiver moving at most batch records per run.
func NewArchiver(source Source, up Uploader, prefix string, batch int, logger Logger) *Archiver {
	if batch <= 0 {
		batch = 500
	}
	return &Archiver{
		source: source,
		up:     up,
		prefix: strings.Trim(prefix, "/"),
		batch:  batch,
		logger: logger,
		now:    time.Now,
	}
}

// RunOnce archives one batch. Records are trimmed only after a successful upload.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	records, err := a.source.Peek(ctx, a.batch)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return 0, fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}

	if err := a.up.Put(ctx, a.objectKey(), buf.Bytes()); err != nil {
		return 0, err
	}
	if err := a.source.Trim(ctx, len(records)); err != nil {
		return len(records), fmt.Errorf("archived but not trimmed: %w", err)
	}
	return len(records), nil
}

func (a *Archiver) objectKey() string {
	now := a.now().UTC()
	name := fmt.Sprintf("%s/%d-%s.jsonl", now.Format("2006/01/02"), now.Unix(), uuid.NewString())
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

// Run archives on every tick until ctx is done.
func (a *Archiver) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	runOnce := func() {
		n, err := a.RunOnce(ctx)
		if err != nil {
			a.logger.Errorf("journal archiver: %v", err)
		} else if n > 0 {
			a.logger.Infof("journal archiver: archived %d ledger failures", n)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
