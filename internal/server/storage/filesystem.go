package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"keepsake/internal/media"
)

// Store defines the interface for the media store backend.
// This allows swapping the filesystem for S3 or other backends later.
type Store interface {
	Save(name string, data io.Reader) (int64, error)
	Promote(srcPath, name string) error
	Exists(name string) bool
	Remove(name string) error
	List() ([]media.Item, error)
	WriteArchive(w io.Writer) error
	EnsureDirs() error
}

// FileSystemStore keeps all accepted media files in one flat, publicly
// served directory. The directory is the sole source of truth: there is no
// index, and every listing re-scans it.
type FileSystemStore struct {
	mediaDir string
	tmpDir   string
}

// NewFileSystemStore creates a filesystem media store. tmpDir holds
// in-flight bytes and must not be publicly served.
func NewFileSystemStore(mediaDir, tmpDir string) *FileSystemStore {
	return &FileSystemStore{mediaDir: mediaDir, tmpDir: tmpDir}
}

// EnsureDirs creates the media and temp directories if they don't exist.
func (fs *FileSystemStore) EnsureDirs() error {
	for _, dir := range []string{fs.mediaDir, fs.tmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes data to a temp file and renames it into the media directory,
// so a partially written file is never visible to listings.
// Returns the number of bytes written.
func (fs *FileSystemStore) Save(name string, data io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(fs.tmpDir, "incoming-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Promote(tmpPath, name); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	return n, nil
}

// Promote atomically moves a fully written file from the temp area to its
// final public path. The temp dir lives on the same volume as the media
// dir, so the rename is atomic.
func (fs *FileSystemStore) Promote(srcPath, name string) error {
	dst := filepath.Join(fs.mediaDir, filepath.Base(name))
	if err := os.Rename(srcPath, dst); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a media file with the given name is already stored.
func (fs *FileSystemStore) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(fs.mediaDir, filepath.Base(name)))
	return err == nil
}

// Remove deletes a stored media file. Missing files are not an error.
func (fs *FileSystemStore) Remove(name string) error {
	path := filepath.Join(fs.mediaDir, filepath.Base(name))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file %s: %w", name, err)
	}
	return nil
}

// List re-scans the media directory, filters to recognized media
// extensions, and returns items ordered newest first.
func (fs *FileSystemStore) List() ([]media.Item, error) {
	entries, err := os.ReadDir(fs.mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read media directory: %w", err)
	}

	items := make([]media.Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		mediaType, ok := media.TypeForName(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Raced with an out-of-band delete; skip it.
			continue
		}

		items = append(items, media.Item{
			Filename:   entry.Name(),
			Path:       "/gallery/" + entry.Name(),
			Type:       mediaType,
			Size:       info.Size(),
			UploadDate: info.ModTime(),
		})
	}

	// Newest first; assigned names embed the upload timestamp, so the
	// filename tiebreak keeps same-millisecond uploads stable.
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UploadDate.Equal(items[j].UploadDate) {
			return items[i].UploadDate.After(items[j].UploadDate)
		}
		return items[i].Filename > items[j].Filename
	})

	return items, nil
}

// WriteArchive streams a zip of every listed media file to w. Entries use
// the Store method since media bytes are already compressed.
func (fs *FileSystemStore) WriteArchive(w io.Writer) error {
	items, err := fs.List()
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, item := range items {
		if err := fs.addArchiveEntry(zw, item.Filename); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) addArchiveEntry(zw *zip.Writer, name string) error {
	file, err := os.Open(filepath.Join(fs.mediaDir, name))
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = name
	header.Method = zip.Store

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	return nil
}
