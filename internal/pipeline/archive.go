package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// extractZip unpacks the archive at src into dest and returns the names of
// the top-level entries. Entries that would land outside dest are rejected.
// Existing files are overwritten with a warning.
func extractZip(src, dest string, logger zerolog.Logger) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var top []string
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes the target directory", f.Name)
		}

		if first := strings.SplitN(strings.TrimPrefix(f.Name, "./"), "/", 2)[0]; first != "" && !seen[first] {
			seen[first] = true
			top = append(top, first)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := extractFile(f, target, logger); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func extractFile(f *zip.File, target string, logger zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(target); err == nil {
		logger.Warn().Str("path", target).Msg("overwriting existing file")
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// saveFile writes r to path, replacing any existing file.
func saveFile(path string, r io.Reader, logger zerolog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		logger.Warn().Str("path", path).Msg("overwriting existing file")
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
