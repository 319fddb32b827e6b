package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"

	"releng-kit/internal/shell"
	"releng-kit/internal/workdir"
)

var ErrUnknownFormat = errors.New("unknown archive format")

// Format is an archive family and the tool that unpacks it
type Format struct {
	Name string
	Tool string
	Args []string // placed before the archive path
}

var (
	SevenZip = Format{Name: "7z", Tool: "7z", Args: []string{"x", "-y"}}
	Tar      = Format{Name: "tar", Tool: "tar", Args: []string{"-xf"}}
)

// DetectFormat selects the extractor by file extension: .7z and .zip go to
// 7-Zip, anything with a .tar component or .tgz goes to tar.
func DetectFormat(archivePath string) (Format, error) {
	name := strings.ToLower(filepath.Base(archivePath))
	switch {
	case strings.HasSuffix(name, ".7z"), strings.HasSuffix(name, ".zip"):
		return SevenZip, nil
	case strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar"), strings.Contains(name, ".tar."):
		return Tar, nil
	default:
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, archivePath)
	}
}

// Extractor unpacks archives with external tools
type Extractor struct {
	Runner shell.Runner
	Logger zerolog.Logger
}

// Extract unpacks archivePath into destDir. The tool runs with destDir as its
// working directory; the process directory is restored afterwards.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", archivePath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("archive %s: %w", archivePath, err)
	}
	e.checkContent(abs, format)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}

	args := append(append([]string{}, format.Args...), abs)
	return workdir.Do(destDir, func() error {
		return e.Runner.Run(ctx, shell.Command{Name: format.Tool, Args: args})
	})
}

// checkContent warns when the file's magic bytes disagree with its extension
func (e *Extractor) checkContent(path string, format Format) {
	kind, err := sniff(path)
	if err != nil || kind == "" {
		return
	}
	expected := map[string][]string{
		"7z":  {"7z", "zip"},
		"tar": {"tar", "gz", "bz2", "xz", "zst", "lz"},
	}[format.Name]
	for _, k := range expected {
		if k == kind {
			return
		}
	}
	e.Logger.Warn().Str("path", path).Str("detected", kind).Str("extractor", format.Tool).
		Msg("Archive content does not match its extension")
}

// sniff returns the filetype extension detected from the file header, or ""
func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", err
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "", err
	}
	return kind.Extension, nil
}
