package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"time"

	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/tracing"
)

// DefaultMaxDownload bounds a download when no limit is configured.
const DefaultMaxDownload = 50 << 20

// ErrTooLarge is returned when a download exceeds the configured limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// StatusError is an unexpected HTTP status from a download or upload.
type StatusError struct {
	Operation  string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Operation, e.StatusCode)
}

// Client downloads attachments and uploads files to OneDrive upload URLs.
type Client struct {
	httpClient  *http.Client
	maxDownload int64
	metrics     *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxDownload limits download size. Zero or less uses DefaultMaxDownload.
func WithMaxDownload(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxDownload = n
		}
	}
}

// WithMetrics records transfer metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    20,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: 2 * time.Minute,
		},
		maxDownload: DefaultMaxDownload,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches url. Only 200 is accepted.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.StartFileSpan(ctx, "download", hostOf(url))
	defer span.End()

	b, err := c.download(ctx, url)
	c.metrics.RecordFileTransfer("download", int64(len(b)), err)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.SetSpanOK(span)
	return b, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Operation: "download", StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > c.maxDownload {
		return nil, ErrTooLarge
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > c.maxDownload {
		return nil, ErrTooLarge
	}
	return b, nil
}

// Upload PUTs content to a OneDrive upload session URL in one range.
// 200 and 201 are accepted.
func (c *Client) Upload(ctx context.Context, uploadURL string, content []byte) error {
	ctx, span := tracing.StartFileSpan(ctx, "upload", hostOf(uploadURL))
	defer span.End()

	err := c.upload(ctx, uploadURL, content)
	c.metrics.RecordFileTransfer("upload", int64(len(content)), err)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	tracing.SetSpanOK(span)
	return nil
}

func (c *Client) upload(ctx context.Context, uploadURL string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}

	size := len(content)
	req.ContentLength = int64(size)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(size))
	req.Header.Set("Content-Range", ContentRange(size))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &StatusError{Operation: "upload", StatusCode: resp.StatusCode}
	}
	return nil
}

// ContentRange returns the Content-Range header covering a whole file of
// size bytes.
func ContentRange(size int) string {
	if size == 0 {
		return "bytes */0"
	}
	return fmt.Sprintf("bytes 0-%d/%d", size-1, size)
}

// hostOf keeps query tokens of pre-authorized URLs out of traces.
func hostOf(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
