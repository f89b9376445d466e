// Package archive stores unparsable labeling responses in GCS so they can
// be inspected after the fact.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// BucketFromEnv returns the archive bucket, or "" when archival is disabled.
func BucketFromEnv() string {
	return os.Getenv("TXN_ARCHIVE_BUCKET")
}

// GCSArchiver writes raw labeling payloads to a GCS bucket.
type GCSArchiver struct {
	bucket string
}

// NewGCSArchiver creates an archiver for the given bucket. It assumes
// Application Default Credentials are configured.
func NewGCSArchiver(bucket string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket}
}

// ArchiveRawResponse uploads the payload and returns the object's GCS URI.
func (a *GCSArchiver) ArchiveRawResponse(ctx context.Context, payload string) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	objectName := fmt.Sprintf("labeling-responses/%s-%s.txt",
		time.Now().UTC().Format("20060102T150405Z"),
		strings.Split(uuid.NewString(), "-")[0])

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, strings.NewReader(payload)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy payload to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}
