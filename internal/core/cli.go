package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"keepsake/internal/media"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ParseArgs resolves command-line arguments into the list of media files to
// upload. A file argument must carry a recognized image/video extension;
// a directory argument is walked recursively and non-media entries inside
// it are skipped silently.
func ParseArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []string

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		if info.IsDir() {
			found, err := collectMediaFiles(p)
			if err != nil {
				return nil, &ValidationError{Arg: raw, Cause: err.Error()}
			}
			out = append(out, found...)
			continue
		}

		if !media.AllowedExtension(p) {
			return nil, &ValidationError{Arg: raw, Cause: "not a recognized image or video file"}
		}
		out = append(out, p)
	}

	if len(out) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no media files found"}
	}

	return out, nil
}

func collectMediaFiles(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && media.AllowedExtension(path) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
