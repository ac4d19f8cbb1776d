// Package attachments captures bounded image previews of attachment URLs
// posted with job activity, so a dispute can be resolved against what the
// attachment showed at post time even if the source link dies later.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"github.com/jhbizops/builder.contractors-sub000/internal/config"
)

const maxDownloadBytes = 25 * 1024 * 1024

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archiver fetches attachment URLs and stores resized previews, locally
// or in S3 when a bucket is configured.
type Archiver struct {
	httpClient *http.Client
	dest       uploader
	maxWidth   int
}

// New constructs the archiver, choosing S3 when a bucket is configured
// and the local directory otherwise.
func New(ctx context.Context, cfg config.Config) (*Archiver, error) {
	timeout := cfg.AttachmentTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxWidth := cfg.PreviewMaxWidth
	if maxWidth == 0 {
		maxWidth = 640
	}

	var dest uploader
	if cfg.AttachmentS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dest = &s3Uploader{client: client, bucket: cfg.AttachmentS3Bucket}
	} else {
		baseDir := cfg.AttachmentDir
		if baseDir == "" {
			baseDir = "./attachments"
		}
		dest = &localUploader{baseDir: baseDir}
	}

	return &Archiver{
		httpClient: &http.Client{Timeout: timeout},
		dest:       dest,
		maxWidth:   maxWidth,
	}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AttachmentS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Archive stores a preview for each image attachment under the activity
// entry's key space. Non-image or unreachable attachments are skipped;
// the first hard failure is returned so the caller can log it.
func (a *Archiver) Archive(ctx context.Context, entryID string, urls []string) error {
	var firstErr error
	for i, url := range urls {
		if err := a.archiveOne(ctx, entryID, i, url); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return firstErr
}

func (a *Archiver) archiveOne(ctx context.Context, entryID string, idx int, url string) error {
	data, contentType, err := a.download(ctx, url)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > a.maxWidth {
		img = imaging.Resize(img, a.maxWidth, 0, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	key := sanitizeKey(fmt.Sprintf("previews/%s/%d.jpg", entryID, idx))
	if _, err := a.dest.Upload(ctx, key, buf.Bytes(), "image/jpeg"); err != nil {
		return fmt.Errorf("upload preview: %w", err)
	}
	return nil
}

func (a *Archiver) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxDownloadBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(body)) > maxDownloadBytes {
		return nil, "", errors.New("attachment too large")
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
