// Package archive reads NEXRAD Level II volume scans from the public archive
// bucket over unauthenticated HTTPS.
package archive

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
)

// DefaultBaseURL is the public NOAA Level II bucket.
const DefaultBaseURL = "https://noaa-nexrad-level2.s3.amazonaws.com"

// maxScanSize bounds a single download.
const maxScanSize = 256 << 20

// Client lists and downloads scans from the archive.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// ListScans returns the scans archived for a station on a UTC day, ordered by
// scan time. Metadata objects and unrecognized names are skipped.
func (c *Client) ListScans(ctx context.Context, station string, day time.Time) ([]domain.ScanMeta, error) {
	prefix := domain.ScanPrefix(station, day)
	start := time.Now()
	defer func() { c.metrics.ArchiveDuration.WithLabelValues("list").Observe(time.Since(start).Seconds()) }()

	var scans []domain.ScanMeta
	token := ""
	for page := 1; ; page++ {
		params := url.Values{
			"list-type": {"2"},
			"prefix":    {prefix},
		}
		if token != "" {
			params.Set("continuation-token", token)
		}

		var result listBucketResult
		if err := c.get(ctx, "list", prefix, c.baseURL+"/?"+params.Encode(), func(body io.Reader) error {
			return xml.NewDecoder(body).Decode(&result)
		}); err != nil {
			return nil, err
		}

		for _, obj := range result.Contents {
			meta, ok := domain.ParseScanFile(obj.Key)
			if !ok {
				continue
			}
			meta.Path = obj.Key
			meta.Size = obj.Size
			scans = append(scans, meta)
		}
		c.logger.Debug("archive listing page", "prefix", prefix, "page", page, "objects", len(result.Contents))

		if !result.IsTruncated || result.NextContinuationToken == "" {
			break
		}
		token = result.NextContinuationToken
	}

	slices.SortFunc(scans, func(a, b domain.ScanMeta) int { return a.Time.Compare(b.Time) })
	c.metrics.ArchiveRequests.WithLabelValues("list", "success").Inc()
	return scans, nil
}

// Download fetches the raw bytes of one scan object.
func (c *Client) Download(ctx context.Context, meta domain.ScanMeta) ([]byte, error) {
	key := meta.Key().String()
	start := time.Now()
	defer func() { c.metrics.ArchiveDuration.WithLabelValues("download").Observe(time.Since(start).Seconds()) }()

	var data []byte
	err := c.get(ctx, "download", key, c.baseURL+"/"+meta.Path, func(body io.Reader) error {
		b, err := io.ReadAll(io.LimitReader(body, maxScanSize+1))
		if err != nil {
			return err
		}
		if len(b) > maxScanSize {
			return fmt.Errorf("object exceeds %d bytes", maxScanSize)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.ArchiveRequests.WithLabelValues("download", "success").Inc()
	return data, nil
}

// get issues one GET and hands a 200 body to read. Failures are returned as
// classified *domain.FetchError values.
func (c *Client) get(ctx context.Context, op, key, fullURL string, read func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(classifyTransport(ctx, op, key, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.fail(classifyStatus(op, key, resp.StatusCode, body))
	}
	body := &bodyReader{r: resp.Body}
	if err := read(body); err != nil {
		if body.err != nil || ctx.Err() != nil {
			fe := classifyTransport(ctx, op, key, err)
			fe.Err = fmt.Errorf("read body: %w", fe.Err)
			return c.fail(fe)
		}
		// The body arrived intact and failed to parse.
		return c.fail(&domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Err: fmt.Errorf("decode body: %w", err)})
	}
	return nil
}

// bodyReader records the first transport error seen while reading a body.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

func (c *Client) fail(fe *domain.FetchError) error {
	outcome := "error"
	if fe.Kind == domain.FetchNotFound {
		outcome = "not_found"
	}
	c.metrics.ArchiveRequests.WithLabelValues(fe.Op, outcome).Inc()
	c.logger.Debug("archive request failed", "op", fe.Op, "key", fe.Key, "kind", fe.Kind, "retryable", fe.Retryable, "error", fe.Err)
	return fe
}

// classifyStatus maps an HTTP status: 404 is NotFound, 5xx, 408, and 429 are
// transient, anything else is permanent.
func classifyStatus(op, key string, status int, body []byte) *domain.FetchError {
	err := fmt.Errorf("archive status %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusNotFound:
		return &domain.FetchError{Kind: domain.FetchNotFound, Op: op, Key: key, Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &domain.FetchError{Kind: domain.FetchTimeout, Op: op, Key: key, Retryable: true, Err: err}
	case status >= 500 || status == http.StatusTooManyRequests:
		return &domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Retryable: true, Err: err}
	default:
		return &domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Err: err}
	}
}

// classifyTransport maps a transport or body read error. Cancellation by the
// caller is never retryable.
func classifyTransport(ctx context.Context, op, key string, err error) *domain.FetchError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind := domain.FetchNetwork
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			kind = domain.FetchTimeout
		}
		return &domain.FetchError{Kind: kind, Op: op, Key: key, Err: ctxErr}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.FetchError{Kind: domain.FetchTimeout, Op: op, Key: key, Retryable: true, Err: err}
	}
	return &domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Retryable: true, Err: err}
}

// S3 ListObjectsV2 response types.

type listBucketResult struct {
	IsTruncated           bool        `xml:"IsTruncated"`
	NextContinuationToken string      `xml:"NextContinuationToken"`
	Contents              []objectXML `xml:"Contents"`
}

type objectXML struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}
