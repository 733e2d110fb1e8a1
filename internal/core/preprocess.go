package core

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Result is the outcome of pre-processing one file. Conversion is
// best-effort: on any failure the original file passes through unchanged
// and Warning records what went wrong, so fallbacks stay observable.
type Result struct {
	Path      string // file to upload, original or converted
	Name      string // filename to present to the server
	Converted bool
	Warning   error
}

// Preprocessor converts HEIC images to JPEG and re-encodes oversized
// videos before upload, shelling out to ffmpeg.
type Preprocessor struct {
	FFmpeg         string // ffmpeg binary; resolved from PATH when empty
	WorkDir        string // where converted files are written
	VideoThreshold int64  // videos above this many bytes get re-encoded
	MaxDimension   int    // cap on the long edge when re-encoding video
	VideoBitrate   string // target bitrate for re-encoded video
}

// NewPreprocessor creates a pre-processor with the default conversion
// settings, writing converted files under workDir.
func NewPreprocessor(workDir string) *Preprocessor {
	return &Preprocessor{
		WorkDir:        workDir,
		VideoThreshold: 100 * 1024 * 1024,
		MaxDimension:   1280,
		VideoBitrate:   "2500k",
	}
}

// Process runs the per-file conversion step. It never returns an error:
// a failed conversion falls back to the original bytes with a warning.
func (p *Preprocessor) Process(ctx context.Context, path string) Result {
	original := Result{Path: path, Name: filepath.Base(path)}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".heic" || ext == ".heif":
		return p.convertHEIC(ctx, path, original)
	case isVideoExt(ext):
		info, err := os.Stat(path)
		if err != nil || info.Size() <= p.VideoThreshold {
			return original
		}
		return p.transcodeVideo(ctx, path, original)
	default:
		return original
	}
}

func (p *Preprocessor) convertHEIC(ctx context.Context, path string, fallback Result) Result {
	ffmpeg, err := p.resolveFFmpeg()
	if err != nil {
		fallback.Warning = err
		return fallback
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(p.WorkDir, base+".jpg")

	cmd := exec.CommandContext(ctx, ffmpeg, "-y", "-i", path, "-q:v", "2", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		fallback.Warning = fmt.Errorf("heic conversion failed for %s: %w (%s)", path, err, firstLine(output))
		return fallback
	}

	return Result{Path: out, Name: base + ".jpg", Converted: true}
}

func (p *Preprocessor) transcodeVideo(ctx context.Context, path string, fallback Result) Result {
	ffmpeg, err := p.resolveFFmpeg()
	if err != nil {
		fallback.Warning = err
		return fallback
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(p.WorkDir, base+".mp4")

	// Cap the long edge, keep aspect ratio, even dimensions for the encoder.
	scale := fmt.Sprintf("scale='min(%d,iw)':-2", p.MaxDimension)

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-y",
		"-i", path,
		"-vf", scale,
		"-c:v", "libx264",
		"-b:v", p.VideoBitrate,
		"-c:a", "aac",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		fallback.Warning = fmt.Errorf("video re-encode failed for %s: %w (%s)", path, err, firstLine(output))
		return fallback
	}

	return Result{Path: out, Name: base + ".mp4", Converted: true}
}

func (p *Preprocessor) resolveFFmpeg() (string, error) {
	if p.FFmpeg != "" {
		if _, err := os.Stat(p.FFmpeg); err != nil {
			return "", fmt.Errorf("ffmpeg not available at %s: %w", p.FFmpeg, err)
		}
		return p.FFmpeg, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available: %w", err)
	}
	return path, nil
}

func isVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv":
		return true
	}
	return false
}

func firstLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
