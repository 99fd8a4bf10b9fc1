package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// GCSUploader uploads generated reports to a Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader opens a Cloud Storage client for the bucket. When
// credentialsFile is empty, application default credentials are used.
func NewGCSUploader(ctx context.Context, bucket, credentialsFile string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}
	logger.Debugf("Export: Cloud Storage client opened for bucket '%s'.", bucket)
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload writes the report bytes to the bucket under objectName.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, data *bytes.Buffer) error {
	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object '%s' to bucket '%s': %w", objectName, u.bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish upload of '%s' to bucket '%s': %w", objectName, u.bucket, err)
	}
	return nil
}

// Close releases the Cloud Storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

var _ Uploader = (*GCSUploader)(nil)
