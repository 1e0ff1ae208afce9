package b2go

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/driftware/b2go/types"
)

// Download is an open download. Body is rate limited when the client has a
// transfer rate configured; always Close it.
type Download struct {
	Body          io.ReadCloser
	FileID        string
	FileName      string
	ContentLength int64
	ContentType   string
	ContentSHA1   string
	FileInfo      map[string]string
	// StatusCode is 200 for whole files and 206 for range requests.
	StatusCode int
}

// Close releases the connection.
func (d *Download) Close() error {
	return d.Body.Close()
}

// DownloadOption adjusts a download request.
type DownloadOption func(*downloadOptions)

type downloadOptions struct {
	rangeHeader string
}

// WithRange requests bytes first through last inclusive, as in the HTTP
// Range header.
func WithRange(first, last int64) DownloadOption {
	return func(o *downloadOptions) {
		o.rangeHeader = fmt.Sprintf("bytes=%d-%d", first, last)
	}
}

// WithRangeFrom requests all bytes from first to the end of the file.
func WithRangeFrom(first int64) DownloadOption {
	return func(o *downloadOptions) {
		o.rangeHeader = fmt.Sprintf("bytes=%d-", first)
	}
}

// DownloadFileByID fetches a file version by ID.
func (c *Client) DownloadFileByID(ctx context.Context, fileID string, opts ...DownloadOption) (*Download, error) {
	build := func(a string) string {
		return a + apiPath + "b2_download_file_by_id?fileId=" + url.QueryEscape(fileID)
	}
	return c.download(ctx, "b2_download_file_by_id", build, opts)
}

// DownloadFileByName fetches the newest visible version of a file by
// bucket and file name.
func (c *Client) DownloadFileByName(ctx context.Context, bucketName, fileName string, opts ...DownloadOption) (*Download, error) {
	build := func(a string) string {
		return a + "/file/" + url.PathEscape(bucketName) + "/" + escapeFileName(fileName)
	}
	return c.download(ctx, "b2_download_file_by_name", build, opts)
}

func (c *Client) download(ctx context.Context, op string, buildURL func(downloadBase string) string, opts []DownloadOption) (*Download, error) {
	var o downloadOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := c.tracer.Start(ctx, "b2."+op)
	defer span.End()
	start := time.Now()

	d, token, err := c.openDownload(ctx, buildURL, o)
	c.observe(op, token, start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return d, nil
}

func (c *Client) openDownload(ctx context.Context, buildURL func(string) string, o downloadOptions) (*Download, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}
	a, err := c.source.Authorization(ctx)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildURL(a.DownloadURL), nil)
	if err != nil {
		return nil, a.Token, types.TransportError(err)
	}
	req.Header.Set("Authorization", a.Token)
	if o.rangeHeader != "" {
		req.Header.Set("Range", o.rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, a.Token, types.TransportError(err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer resp.Body.Close()
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if rerr != nil {
			return nil, a.Token, types.TransportError(rerr)
		}
		return nil, a.Token, decodeDownloadError(resp.StatusCode, body)
	}

	body := resp.Body
	if c.transfers != nil {
		body = c.transfers.Reader(resp.Body)
	}
	d := &Download{
		Body:          &countingBody{inner: body, c: c},
		FileID:        resp.Header.Get("X-Bz-File-Id"),
		FileName:      unescapeHeader(resp.Header.Get("X-Bz-File-Name")),
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentSHA1:   resp.Header.Get("X-Bz-Content-Sha1"),
		FileInfo:      fileInfoFromHeaders(resp.Header),
		StatusCode:    resp.StatusCode,
	}
	return d, a.Token, nil
}

func decodeDownloadError(status int, body []byte) error {
	var payload struct {
		Status  int    `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.DecodeError(err)
	}
	return types.APIError(status, payload.Code, payload.Message)
}

func fileInfoFromHeaders(h http.Header) map[string]string {
	const prefix = "X-Bz-Info-"
	var info map[string]string
	for k, vs := range h {
		if len(vs) == 0 || !strings.HasPrefix(k, prefix) {
			continue
		}
		if info == nil {
			info = make(map[string]string)
		}
		info[strings.ToLower(strings.TrimPrefix(k, prefix))] = unescapeHeader(vs[0])
	}
	return info
}

func unescapeHeader(v string) string {
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// countingBody feeds downloaded byte counts into the metrics collector as
// the caller reads.
type countingBody struct {
	inner io.ReadCloser
	c     *Client
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	b.c.metrics.RecordDownload(int64(n))
	return n, err
}

func (b *countingBody) Close() error {
	return b.inner.Close()
}
