package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"wayfarer-hq/keeper/pkg/telemetry/tracing"
)

const defaultMaxRedirects = 10

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errRedirectBadScheme = errors.New("redirect target scheme is not http/https")
	errUnsafeEntry       = errors.New("archive entry escapes the work directory")
)

// HTTPStrategy downloads in-process and unpacks with a linked zip reader, so
// it works on hosts without curl, wget or unzip.
type HTTPStrategy struct {
	// Transport overrides http.DefaultTransport. Used by tests.
	Transport http.RoundTripper

	// MaxRedirects bounds the redirect chain. Release downloads usually
	// redirect once to a CDN. Default: 10
	MaxRedirects int
}

// Name returns "http".
func (s *HTTPStrategy) Name() string { return "http" }

// FetchAndExtract downloads req.URL to req.ArchivePath and unpacks it.
func (s *HTTPStrategy) FetchAndExtract(ctx context.Context, req Request) error {
	if err := s.download(ctx, req); err != nil {
		return atStage(StageFetch, err)
	}
	if err := ExtractZip(req.ArchivePath, req.WorkDir); err != nil {
		return atStage(StageExtract, err)
	}
	return nil
}

func (s *HTTPStrategy) download(ctx context.Context, req Request) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("only http/https URLs are allowed: %q", req.URL)
	}

	maxRedirects := s.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = defaultMaxRedirects
	}
	transport := s.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := &http.Client{
		Timeout:   req.Timeout,
		Transport: transport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "keeper")
	tracing.Inject(ctx, httpReq.Header)

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed: unexpected status %s", resp.Status)
	}

	if dir := filepath.Dir(req.ArchivePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	out, err := os.OpenFile(req.ArchivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

// ExtractZip unpacks the archive at path into dir. Entries that would land
// outside dir are rejected before anything is written for them.
func ExtractZip(path, dir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, file := range r.File {
		if err := extractEntry(file, dir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractEntry(file *zip.File, baseDir string) error {
	cleanName := filepath.Clean(file.Name)
	if cleanName == "." {
		return nil
	}
	target, err := safeJoin(baseDir, cleanName)
	if err != nil {
		return err
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(baseDir, name string) (string, error) {
	if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", errUnsafeEntry
	}
	target := filepath.Join(baseDir, name)
	rel, err := filepath.Rel(baseDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errUnsafeEntry
	}
	return target, nil
}
