package media

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"
)

// Type classifies a media item by what the gallery should render it as.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Item is one stored media file plus metadata derived from the filesystem.
type Item struct {
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Type       Type      `json:"type"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
}

var imageExtensions = map[string]bool{
	".jpeg": true, ".jpg": true, ".png": true, ".gif": true, ".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".mkv": true,
}

// allowedMimeTypes is the declared-MIME allow-list. Checked as declared by
// the client, never by content sniffing.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":       true,
	"image/jpg":        true,
	"image/png":        true,
	"image/gif":        true,
	"image/webp":       true,
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-ms-wmv":   true,
	"video/x-flv":      true,
	"video/webm":       true,
	"video/x-matroska": true,
}

// TypeForName classifies a filename by extension. The second return value is
// false when the extension is not a recognized media type.
func TypeForName(name string) (Type, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return TypeImage, true
	case videoExtensions[ext]:
		return TypeVideo, true
	default:
		return "", false
	}
}

// AllowedExtension reports whether the filename carries a recognized
// image or video extension.
func AllowedExtension(name string) bool {
	_, ok := TypeForName(name)
	return ok
}

// AllowedMimeType reports whether a declared Content-Type is in the
// recognized image/video set. An empty declaration is allowed, since the
// extension check still applies.
func AllowedMimeType(mimeType string) bool {
	if mimeType == "" {
		return true
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return allowedMimeTypes[strings.TrimSpace(strings.ToLower(mimeType))]
}

// UniqueName assigns a server-side filename for an upload: unix-millis
// timestamp plus a 9-digit random suffix, keeping the original extension
// lowercased. Collisions within one process lifetime are ruled out by the
// random suffix; callers still guard the final rename.
func UniqueName(originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))

	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}

	return fmt.Sprintf("%d-%09d%s", time.Now().UnixMilli(), n.Int64(), ext), nil
}
