package attachments

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhbizops/builder.contractors-sub000/internal/config"
)

func TestArchiverStoresBoundedPreview(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 0, G: 128, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	cfg := config.Config{
		AttachmentDir:     tempDir,
		AttachmentTimeout: 2 * time.Second,
		PreviewMaxWidth:   10,
	}

	archiver, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	if err := archiver.Archive(context.Background(), "entry-1", []string{srv.URL}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tempDir, "previews", "entry-1", "0.jpg"))
	if err != nil {
		t.Fatalf("preview not written: %v", err)
	}
	out, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if out.Bounds().Dx() != 10 {
		t.Fatalf("expected preview width 10, got %d", out.Bounds().Dx())
	}
}

func TestArchiverSkipsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	archiver, err := New(context.Background(), config.Config{AttachmentDir: tempDir, AttachmentTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	if err := archiver.Archive(context.Background(), "entry-2", []string{srv.URL}); err != nil {
		t.Fatalf("non-image attachment should be skipped, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(tempDir, "previews"))
	if len(entries) != 0 {
		t.Fatalf("expected no previews written, got %d", len(entries))
	}
}
