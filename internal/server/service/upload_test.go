package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keepsake/internal/server/config"
	"keepsake/internal/server/session"
	"keepsake/internal/server/storage"
)

func newTestService(t *testing.T) *UploadService {
	t.Helper()
	base := t.TempDir()

	store := storage.NewFileSystemStore(filepath.Join(base, "gallery"), filepath.Join(base, "tmp"))
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("failed to ensure dirs: %v", err)
	}

	sessions := session.NewStore(filepath.Join(base, "tmp"), 30*time.Minute)
	cfg := &config.Config{
		MaxFileSize:        1024,
		MaxChunkedFileSize: 1024 * 1024,
	}

	return NewUploadService(store, sessions, cfg)
}

func incoming(name, contentType, content string) IncomingFile {
	return IncomingFile{
		Name:        name,
		Size:        int64(len(content)),
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestProcessUpload(t *testing.T) {
	t.Run("round-trip: accepted upload appears in the gallery once", func(t *testing.T) {
		svc := newTestService(t)

		stored, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("wedding.jpg", "image/jpeg", "jpeg bytes"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stored) != 1 {
			t.Fatalf("expected 1 stored file, got %d", len(stored))
		}
		if stored[0].OriginalName != "wedding.jpg" {
			t.Errorf("expected original name kept, got %q", stored[0].OriginalName)
		}
		if stored[0].Size != int64(len("jpeg bytes")) {
			t.Errorf("unexpected size %d", stored[0].Size)
		}

		items, err := svc.Gallery(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 gallery item, got %d", len(items))
		}
		if items[0].Filename != stored[0].Filename {
			t.Errorf("gallery shows %q, upload stored %q", items[0].Filename, stored[0].Filename)
		}
		if items[0].Type != "image" {
			t.Errorf("expected image classification, got %q", items[0].Type)
		}
	})

	t.Run("multiple files in one request", func(t *testing.T) {
		svc := newTestService(t)

		stored, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("photo.jpg", "image/jpeg", "a jpeg"),
			incoming("clip.mp4", "video/mp4", "an mp4"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected 2 stored files, got %d", len(stored))
		}

		items, _ := svc.Gallery(context.Background())
		if len(items) != 2 {
			t.Fatalf("expected 2 gallery items, got %d", len(items))
		}
	})

	t.Run("assigned names never collide", func(t *testing.T) {
		svc := newTestService(t)

		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			stored, err := svc.ProcessUpload(context.Background(), []IncomingFile{
				incoming("same.jpg", "image/jpeg", "bytes"),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[stored[0].Filename] {
				t.Fatalf("name collision: %s", stored[0].Filename)
			}
			seen[stored[0].Filename] = true
		}
	})

	t.Run("empty request rejected", func(t *testing.T) {
		svc := newTestService(t)

		if _, err := svc.ProcessUpload(context.Background(), nil); !errors.Is(err, ErrNoFiles) {
			t.Errorf("expected ErrNoFiles, got %v", err)
		}
	})

	t.Run("disallowed extension fails the whole batch", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("fine.jpg", "image/jpeg", "ok"),
			incoming("photo.exe", "application/octet-stream", "MZ..."),
		})
		if !errors.Is(err, ErrDisallowedType) {
			t.Fatalf("expected ErrDisallowedType, got %v", err)
		}

		items, _ := svc.Gallery(context.Background())
		if len(items) != 0 {
			t.Errorf("expected gallery unchanged, found %d items", len(items))
		}
	})

	t.Run("disallowed declared MIME fails the batch", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("sneaky.jpg", "application/x-msdownload", "MZ..."),
		})
		if !errors.Is(err, ErrDisallowedType) {
			t.Errorf("expected ErrDisallowedType, got %v", err)
		}
	})

	t.Run("oversize file rejected with nothing stored", func(t *testing.T) {
		svc := newTestService(t)

		big := strings.Repeat("x", 2048) // cfg ceiling is 1024
		_, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("small.jpg", "image/jpeg", "ok"),
			incoming("huge.jpg", "image/jpeg", big),
		})
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}

		items, _ := svc.Gallery(context.Background())
		if len(items) != 0 {
			t.Errorf("expected gallery unchanged, found %d items", len(items))
		}
	})
}

func TestChunkedUpload(t *testing.T) {
	t.Run("chunks in any order reassemble byte-identical", func(t *testing.T) {
		svc := newTestService(t)
		ctx := context.Background()

		original := []byte(strings.Repeat("wedding video frames ", 100))
		chunkSize := 256
		totalChunks := (len(original) + chunkSize - 1) / chunkSize

		uploadID, err := svc.InitChunked(ctx, "reception.mp4", int64(len(original)), totalChunks)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Send the last chunk first, then the rest.
		order := []int{totalChunks - 1}
		for i := 0; i < totalChunks-1; i++ {
			order = append(order, i)
		}
		for _, index := range order {
			start := index * chunkSize
			end := start + chunkSize
			if end > len(original) {
				end = len(original)
			}
			if _, err := svc.WriteChunk(ctx, uploadID, index, bytes.NewReader(original[start:end])); err != nil {
				t.Fatalf("unexpected error on chunk %d: %v", index, err)
			}
		}

		stored, err := svc.CompleteChunked(ctx, uploadID, totalChunks)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stored.OriginalName != "reception.mp4" {
			t.Errorf("expected original name kept, got %q", stored.OriginalName)
		}
		if stored.Size != int64(len(original)) {
			t.Errorf("expected size %d, got %d", len(original), stored.Size)
		}

		items, _ := svc.Gallery(ctx)
		if len(items) != 1 {
			t.Fatalf("expected 1 gallery item, got %d", len(items))
		}
		if items[0].Type != "video" {
			t.Errorf("expected video classification, got %q", items[0].Type)
		}
		if items[0].Size != int64(len(original)) {
			t.Errorf("finalized file size %d differs from original %d", items[0].Size, len(original))
		}
	})

	t.Run("missing chunk yields error and no finalized file", func(t *testing.T) {
		svc := newTestService(t)
		ctx := context.Background()

		uploadID, err := svc.InitChunked(ctx, "clip.mp4", 9, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		svc.WriteChunk(ctx, uploadID, 0, strings.NewReader("abc"))
		svc.WriteChunk(ctx, uploadID, 1, strings.NewReader("def"))

		if _, err := svc.CompleteChunked(ctx, uploadID, 3); !errors.Is(err, session.ErrIncomplete) {
			t.Fatalf("expected ErrIncomplete, got %v", err)
		}

		items, _ := svc.Gallery(ctx)
		if len(items) != 0 {
			t.Errorf("expected no finalized file, found %d items", len(items))
		}
	})

	t.Run("partial upload never visible to the gallery", func(t *testing.T) {
		svc := newTestService(t)
		ctx := context.Background()

		uploadID, _ := svc.InitChunked(ctx, "clip.mp4", 6, 2)
		svc.WriteChunk(ctx, uploadID, 0, strings.NewReader("abc"))

		items, _ := svc.Gallery(ctx)
		if len(items) != 0 {
			t.Errorf("partial upload leaked into the gallery: %d items", len(items))
		}
	})

	t.Run("init validates its payload", func(t *testing.T) {
		svc := newTestService(t)
		ctx := context.Background()

		if _, err := svc.InitChunked(ctx, "", 100, 2); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for empty filename, got %v", err)
		}
		if _, err := svc.InitChunked(ctx, "a.mp4", 0, 2); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for zero size, got %v", err)
		}
		if _, err := svc.InitChunked(ctx, "a.mp4", 100, 0); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for zero chunks, got %v", err)
		}
		if _, err := svc.InitChunked(ctx, "tool.exe", 100, 2); !errors.Is(err, ErrDisallowedType) {
			t.Errorf("expected ErrDisallowedType, got %v", err)
		}
		if _, err := svc.InitChunked(ctx, "a.mp4", 10*1024*1024, 2); !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("complete on unknown session", func(t *testing.T) {
		svc := newTestService(t)

		if _, err := svc.CompleteChunked(context.Background(), "ghost", 2); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestArchive(t *testing.T) {
	t.Run("empty gallery returns ErrNoMedia before writing", func(t *testing.T) {
		svc := newTestService(t)

		var buf bytes.Buffer
		err := svc.Archive(context.Background(), &buf)
		if !errors.Is(err, ErrNoMedia) {
			t.Fatalf("expected ErrNoMedia, got %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("expected nothing written, got %d bytes", buf.Len())
		}
	})

	t.Run("streams a zip when media exists", func(t *testing.T) {
		svc := newTestService(t)

		if _, err := svc.ProcessUpload(context.Background(), []IncomingFile{
			incoming("photo.jpg", "image/jpeg", "jpeg bytes"),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var buf bytes.Buffer
		if err := svc.Archive(context.Background(), &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Len() == 0 {
			t.Error("expected archive bytes")
		}
	})
}
