// Package scoring talks to the external deleteriousness-scoring service and
// merges its per-position score tables back into call files.
package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/yumyai/varenrich/logger"
	"go.uber.org/zap"
)

// ErrNotReady means the submission is known but its result is not
// downloadable yet. It is not a failure.
var ErrNotReady = errors.New("scoring result not ready")

// Client is the contract the pipeline uses. Submit returns a submission id;
// Fetch downloads the result table of an id into out.
type Client interface {
	Submit(ctx context.Context, file string) (string, error)
	Fetch(ctx context.Context, id, out string) (string, error)
}

// HTTPClient implements Client against a CADD-style web service.
type HTTPClient struct {
	BaseURL string
	Version string
	HTTP    *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, version string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Version: version,
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// The upload response is an HTML page that links to the job.
var (
	checkLinkRegex    = regexp.MustCompile(`check_avail/([A-Za-z0-9._-]+)`)
	finishedLinkRegex = regexp.MustCompile(`static/finished/([A-Za-z0-9._-]+)\.tsv\.gz`)
)

func (c *HTTPClient) Submit(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	for _, field := range [][2]string{
		{"version", c.Version},
		{"inclAnno", "No"},
		{"submit", "Upload variants"},
	} {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return "", fmt.Errorf("submit %s: %w", file, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", file, err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit %s: status %d", file, resp.StatusCode)
	}

	for _, re := range []*regexp.Regexp{checkLinkRegex, finishedLinkRegex} {
		if m := re.FindSubmatch(page); m != nil {
			id := string(m[1])
			logger.Info("Scoring submission accepted", zap.String("file", file), zap.String("id", id))
			return id, nil
		}
	}
	return "", fmt.Errorf("submit %s: no job id in response", file)
}

func (c *HTTPClient) Fetch(ctx context.Context, id, out string) (string, error) {
	url := fmt.Sprintf("%s/static/finished/%s.tsv.gz", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrNotReady
	default:
		return "", fmt.Errorf("fetch %s: status %d", id, resp.StatusCode)
	}

	tmp := out + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	// only a complete download becomes visible under out
	if err := os.Rename(tmp, out); err != nil {
		return "", err
	}
	return out, nil
}
