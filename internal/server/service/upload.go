package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"keepsake/internal/media"
	"keepsake/internal/server/config"
	"keepsake/internal/server/session"
	"keepsake/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNoFiles        = errors.New("no files uploaded")
	ErrDisallowedType = errors.New("only images and videos are allowed")
	ErrFileTooLarge   = errors.New("file exceeds maximum allowed size")
	ErrMalformed      = errors.New("malformed upload request")
	ErrNoMedia        = errors.New("no media files to download")
)

// IncomingFile is one file from a multipart upload request.
type IncomingFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// StoredFile is returned for each accepted file.
type StoredFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// UploadService contains the business logic for media uploads and listing.
type UploadService struct {
	store    storage.Store
	sessions *session.Store
	cfg      *config.Config
}

// NewUploadService creates a new upload service.
func NewUploadService(store storage.Store, sessions *session.Store, cfg *config.Config) *UploadService {
	return &UploadService{
		store:    store,
		sessions: sessions,
		cfg:      cfg,
	}
}

// ProcessUpload handles a whole-file multipart upload of one or more files.
// Validation is all-or-nothing: every file is checked before any byte is
// persisted, so one bad file fails the request with nothing stored.
func (s *UploadService) ProcessUpload(ctx context.Context, files []IncomingFile) ([]StoredFile, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	for _, f := range files {
		if err := s.validateFile(f); err != nil {
			return nil, err
		}
	}

	stored := make([]StoredFile, 0, len(files))
	for _, f := range files {
		result, err := s.saveFile(f)
		if err != nil {
			// Disk failure partway through: withdraw what this request
			// already promoted so the batch stays all-or-nothing.
			for _, prev := range stored {
				s.store.Remove(prev.Filename)
			}
			return nil, err
		}
		stored = append(stored, result)
	}

	slog.Info("upload processed", "files", len(stored))
	return stored, nil
}

// InitChunked starts a chunked upload session and returns its opaque id.
func (s *UploadService) InitChunked(ctx context.Context, filename string, fileSize int64, totalChunks int) (string, error) {
	if filename == "" || fileSize <= 0 || totalChunks <= 0 {
		return "", ErrMalformed
	}
	if !media.AllowedExtension(filename) {
		return "", fmt.Errorf("%w: %s", ErrDisallowedType, filename)
	}
	if fileSize > s.cfg.MaxChunkedFileSize {
		return "", ErrFileTooLarge
	}

	sess, err := s.sessions.Create(filename, fileSize, totalChunks)
	if err != nil {
		return "", fmt.Errorf("failed to create upload session: %w", err)
	}

	slog.Info("chunked upload started",
		"upload_id", sess.ID,
		"filename", filename,
		"filesize", fileSize,
		"total_chunks", totalChunks,
	)
	return sess.ID, nil
}

// WriteChunk stores one chunk of an in-progress session.
func (s *UploadService) WriteChunk(ctx context.Context, uploadID string, index int, data io.Reader) (int64, error) {
	return s.sessions.WriteChunk(uploadID, index, data)
}

// CompleteChunked verifies all chunks arrived, reassembles them, and
// promotes the result into the media directory under a fresh unique name.
// The session is discarded only after a successful promote.
func (s *UploadService) CompleteChunked(ctx context.Context, uploadID string, totalChunks int) (StoredFile, error) {
	sess, err := s.sessions.Get(uploadID)
	if err != nil {
		return StoredFile{}, err
	}

	assembled, err := s.sessions.Assemble(uploadID, totalChunks)
	if err != nil {
		return StoredFile{}, err
	}

	info, err := os.Stat(assembled)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to stat assembled file: %w", err)
	}

	name, err := s.assignName(sess.Filename)
	if err != nil {
		return StoredFile{}, err
	}

	if err := s.store.Promote(assembled, name); err != nil {
		return StoredFile{}, err
	}
	s.sessions.Remove(uploadID)

	slog.Info("chunked upload completed",
		"upload_id", uploadID,
		"filename", name,
		"original_name", sess.Filename,
		"size", info.Size(),
	)

	return StoredFile{
		Filename:     name,
		OriginalName: sess.Filename,
		Size:         info.Size(),
	}, nil
}

// Gallery lists every stored media item, newest first.
func (s *UploadService) Gallery(ctx context.Context) ([]media.Item, error) {
	return s.store.List()
}

// Archive streams a zip of the whole gallery to w. Returns ErrNoMedia
// before writing anything when the gallery is empty, so the handler can
// still send a 404.
func (s *UploadService) Archive(ctx context.Context, w io.Writer) error {
	items, err := s.store.List()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrNoMedia
	}

	if err := s.store.WriteArchive(w); err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}

	slog.Info("gallery archive streamed", "files", len(items))
	return nil
}

// --- Helpers ---

func (s *UploadService) validateFile(f IncomingFile) error {
	if !media.AllowedExtension(f.Name) || !media.AllowedMimeType(f.ContentType) {
		return fmt.Errorf("%w: %s", ErrDisallowedType, f.Name)
	}
	if f.Size > s.cfg.MaxFileSize {
		return fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name)
	}
	return nil
}

func (s *UploadService) saveFile(f IncomingFile) (StoredFile, error) {
	name, err := s.assignName(f.Name)
	if err != nil {
		return StoredFile{}, err
	}

	src, err := f.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	n, err := s.store.Save(name, src)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to store file: %w", err)
	}

	return StoredFile{
		Filename:     name,
		OriginalName: f.Name,
		Size:         n,
	}, nil
}

// assignName generates a unique server-side filename, retrying on the
// vanishingly unlikely collision with an existing file.
func (s *UploadService) assignName(originalName string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		name, err := media.UniqueName(originalName)
		if err != nil {
			return "", err
		}
		if !s.store.Exists(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("failed to assign a unique filename for %s", originalName)
}
