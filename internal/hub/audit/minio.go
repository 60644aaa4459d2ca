// Package audit mirrors accepted snapshots and command transitions into an
// S3-compatible bucket. The mirror is strictly best-effort: records are
// queued and written by a background worker, and a full queue drops the
// record rather than ever slowing ingest or dispatch.
package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/options"
)

const contentType = "application/json"

// Recorder writes audit records to a bucket.
type Recorder struct {
	client     *minio.Client
	bucketName string
	queue      chan record
}

type record struct {
	key  string
	body []byte
}

// NewRecorder creates a Recorder from S3 options. Call EnsureBucket before
// Run to verify the bucket exists.
func NewRecorder(opts *options.S3Options) (*Recorder, error) {
	// Development clusters run MinIO with self-signed certificates, so
	// certificate verification is skipped here.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Recorder{
		client:     client,
		bucketName: opts.BucketName,
		queue:      make(chan record, 256),
	}, nil
}

// EnsureBucket verifies the audit bucket exists, creating it if necessary.
func (r *Recorder) EnsureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", r.bucketName)
		if err := r.client.MakeBucket(ctx, r.bucketName, minio.MakeBucketOptions{Region: ""}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Run drains the queue until ctx is cancelled. Call it in its own goroutine.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-r.queue:
			putCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := r.client.PutObject(putCtx, r.bucketName, rec.key,
				bytes.NewReader(rec.body), int64(len(rec.body)),
				minio.PutObjectOptions{ContentType: contentType})
			cancel()
			if err != nil {
				log.Warn("Failed to write audit record", "key", rec.key, "err", err)
			}
		}
	}
}

// RecordSnapshot queues an accepted telemetry snapshot.
func (r *Recorder) RecordSnapshot(ctx context.Context, snap *model.Snapshot) {
	key := fmt.Sprintf("snapshots/%s/%s.json", snap.VehicleID, snap.ObservedAt.UTC().Format(time.RFC3339Nano))
	r.push(key, snap)
}

// RecordCommand queues a command state transition. One command produces one
// object per state it passes through.
func (r *Recorder) RecordCommand(ctx context.Context, cmd *model.Command) {
	key := fmt.Sprintf("commands/%s/%s/%s.json", cmd.VehicleID, cmd.ID, string(cmd.State))
	r.push(key, cmd)
}

func (r *Recorder) push(key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error(err, "Failed to marshal audit record", "key", key)
		return
	}
	select {
	case r.queue <- record{key: key, body: body}:
	default:
		log.Warn("Audit queue full, dropping record", "key", key)
	}
}
