// Package archive optionally uploads completed job input/output pairs to
// S3 when JOB_ARCHIVE_S3_BUCKET is set, so job history can grow past the
// database's comfort zone without losing it. No file in the retrieved
// pack exercises aws-sdk-go-v2 (it appears only in the teacher's go.mod),
// so this is written against the SDK's standard config-then-client idiom
// rather than a grounded usage site — see DESIGN.md.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onewithdev/peterbot/internal/store"
)

// Record is the archived shape of one completed or failed job.
type Record struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	ChatID string `json:"chatId"`
}

// Archiver uploads Records to S3. A nil *Archiver (when no bucket is
// configured) is valid and Archive becomes a no-op.
type Archiver struct {
	bucket   string
	uploader *manager.Uploader
}

// New builds an Archiver for bucket using the default AWS credential chain.
// Returns (nil, nil) if bucket is empty, matching notify.New's "feature
// disabled" shape so callers don't need a separate enabled flag.
func New(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{bucket: bucket, uploader: manager.NewUploader(client)}, nil
}

// Archive uploads job as a JSON object keyed by its id. Failures are
// logged, not propagated — archival is a durability nicety, never allowed
// to block job delivery.
func (a *Archiver) Archive(ctx context.Context, job store.Job) {
	if a == nil {
		return
	}
	output := ""
	if job.Output != nil {
		output = *job.Output
	}
	rec := Record{ID: job.ID, Type: string(job.Type), Status: string(job.Status), Input: job.Input, Output: output, ChatID: job.ChatID}
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("archive: marshal failed", "job_id", job.ID, "error", err)
		return
	}

	key := fmt.Sprintf("jobs/%s.json", job.ID)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		slog.Warn("archive: upload failed", "job_id", job.ID, "error", err)
		return
	}
	slog.Debug("archive: job archived", "job_id", job.ID, "key", key)
}
