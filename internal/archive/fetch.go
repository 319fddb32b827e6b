// Package archive downloads release archives and unpacks them with the
// matching external tool.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"releng-kit/internal/metrics"
)

var (
	ErrNoFileName       = errors.New("url has no file name")
	ErrBadStatus        = errors.New("unexpected http status")
	ErrChecksumMismatch = errors.New("sha256 mismatch")
	ErrDuplicateTarget  = errors.New("urls share a target file name")
)

// Download is the outcome of fetching one URL
type Download struct {
	URL     string
	Path    string
	Size    int64
	Skipped bool // target already existed
}

// Fetcher downloads files into a destination directory
type Fetcher struct {
	Fs      afero.Fs
	Client  *http.Client
	Logger  zerolog.Logger
	Workers int
	Timeout time.Duration // per download, zero for none
}

// NewFetcher creates a Fetcher on the host filesystem
func NewFetcher(logger zerolog.Logger, workers int, timeout time.Duration) *Fetcher {
	metrics.Init()
	return &Fetcher{
		Fs:      afero.NewOsFs(),
		Client:  http.DefaultClient,
		Logger:  logger,
		Workers: workers,
		Timeout: timeout,
	}
}

// TargetName derives the local file name from a URL path
func TargetName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: %s", ErrNoFileName, rawURL)
	}
	return name, nil
}

// Fetch downloads rawURL into destDir. An existing target file is left alone
// and reported as skipped. When wantSHA256 is set the downloaded content
// must match it; a mismatching download is discarded.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir, wantSHA256 string) (*Download, error) {
	name, err := TargetName(rawURL)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(destDir, name)
	dl := &Download{URL: rawURL, Path: target}

	if info, err := f.Fs.Stat(target); err == nil {
		f.Logger.Info().Str("path", target).Msg("Already downloaded, skipping")
		metrics.FetchSkippedTotal.Inc()
		dl.Skipped = true
		dl.Size = info.Size()
		return dl, nil
	}

	if err := f.Fs.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", destDir, err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	f.Logger.Info().Str("url", rawURL).Str("path", target).Msg("Downloading")

	size, sum, err := f.download(ctx, rawURL, target+".part")
	if err != nil {
		_ = f.Fs.Remove(target + ".part")
		return nil, err
	}

	if wantSHA256 != "" && !strings.EqualFold(sum, wantSHA256) {
		_ = f.Fs.Remove(target + ".part")
		return nil, fmt.Errorf("%w: %s: got %s, want %s", ErrChecksumMismatch, rawURL, sum, wantSHA256)
	}

	if err := f.Fs.Rename(target+".part", target); err != nil {
		return nil, fmt.Errorf("rename %s: %w", target, err)
	}

	metrics.FetchBytesTotal.Add(float64(size))
	f.Logger.Info().Str("path", target).Int64("size", size).Str("sha256", sum).Msg("Downloaded")

	dl.Size = size
	return dl, nil
}

// download streams the response body into partPath and returns its size and
// hex sha256
func (f *Fetcher) download(ctx context.Context, rawURL, partPath string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request %s: %w", rawURL, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("%w: %s: %s", ErrBadStatus, rawURL, resp.Status)
	}

	out, err := f.Fs.Create(partPath)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", partPath, err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", fmt.Errorf("write %s: %w", partPath, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// FetchAll downloads every URL into destDir using a bounded worker pool.
// All downloads are attempted; the returned error joins every failure.
// URLs mapping to the same target name are rejected before anything starts.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, destDir string) ([]*Download, error) {
	seen := make(map[string]string, len(urls))
	for _, u := range urls {
		name, err := TargetName(u)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both write %s", ErrDuplicateTarget, prev, u, name)
		}
		seen[name] = u
	}

	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		downloads = make([]*Download, len(urls))
	)

	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			dl, err := f.Fetch(ctx, u, destDir, "")
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			downloads[i] = dl
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("submit %s: %w", u, err))
			mu.Unlock()
		}
	}
	wg.Wait()

	return downloads, errors.Join(errs...)
}
