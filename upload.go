package b2go

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/driftware/b2go/transport"
	"github.com/driftware/b2go/types"
)

// sha1HexLen is the length of the hex digest appended after a payload when
// the checksum is computed on the fly.
const sha1HexLen = 40

// shaAtEndHeader tells the service the checksum follows the payload.
const shaAtEndHeader = "hex_digits_at_end"

// ContentTypeAuto lets the service pick a content type from the file name.
const ContentTypeAuto = "b2/x-auto"

// UploadURL is a single-bucket upload target. Tokens expire; on an
// authorization failure during upload, fetch a fresh one with GetUploadURL.
type UploadURL struct {
	BucketID           string `json:"bucketId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

// GetUploadURL obtains an upload target for a bucket. Targets must not be
// shared between goroutines; fetch one per concurrent uploader.
func (c *Client) GetUploadURL(ctx context.Context, bucketID string) (UploadURL, error) {
	body := map[string]any{"bucketId": bucketID}
	return call[UploadURL](ctx, c, "b2_get_upload_url", body)
}

// UploadFileRequest describes one file upload. ContentLength is the
// payload size in bytes and is required. An empty ContentType means
// ContentTypeAuto. An empty SHA1 makes the client compute the checksum
// while streaming and append it after the payload, avoiding a second pass
// over the data.
type UploadFileRequest struct {
	FileName      string
	ContentType   string
	ContentLength int64
	Body          io.Reader
	SHA1          string
	// FileInfo entries become X-Bz-Info-* headers. At most 10 are allowed.
	FileInfo map[string]string
}

// UploadFile sends one file to an upload target and returns the resulting
// file version. The payload is rate limited when the client has a transfer
// rate configured.
func (c *Client) UploadFile(ctx context.Context, u UploadURL, req UploadFileRequest) (File, error) {
	if req.ContentLength < 0 {
		return File{}, types.ConfigError("upload content length is required")
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentTypeAuto
	}

	body := req.Body
	total := req.ContentLength
	shaHeader := req.SHA1
	if shaHeader == "" {
		shaHeader = shaAtEndHeader
		body = newSHA1TrailerReader(body)
		total += sha1HexLen
	}
	var closeBody func()
	if c.transfers != nil {
		tr := c.transfers.Reader(body)
		body = tr
		closeBody = func() { tr.Close() }
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL, body)
	if err != nil {
		return File{}, types.TransportError(err)
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Authorization", u.AuthorizationToken)
	httpReq.Header.Set("X-Bz-File-Name", escapeFileName(req.FileName))
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Bz-Content-Sha1", shaHeader)
	for k, v := range req.FileInfo {
		httpReq.Header.Set("X-Bz-Info-"+k, url.PathEscape(v))
	}

	ctx, span := c.tracer.Start(ctx, "b2.b2_upload_file")
	defer span.End()
	start := time.Now()
	f, err := transport.DecodeOnce[File](ctx, c.exchange(httpReq))
	if closeBody != nil {
		closeBody()
	}
	c.observe("b2_upload_file", "", start, err)
	if err != nil {
		span.RecordError(err)
		return File{}, err
	}
	c.metrics.RecordUpload(req.ContentLength)
	return f, nil
}

// escapeFileName percent-encodes a file name for the X-Bz-File-Name
// header, keeping path separators readable.
func escapeFileName(name string) string {
	segs := strings.Split(name, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// sha1TrailerReader streams the wrapped payload and then its hex SHA-1
// digest, so the checksum of a one-pass source can ride at the end of the
// request body.
type sha1TrailerReader struct {
	src     io.Reader
	digest  hash.Hash
	trailer io.Reader
}

func newSHA1TrailerReader(src io.Reader) *sha1TrailerReader {
	return &sha1TrailerReader{src: src, digest: sha1.New()}
}

func (r *sha1TrailerReader) Read(p []byte) (int, error) {
	if r.trailer != nil {
		return r.trailer.Read(p)
	}
	n, err := r.src.Read(p)
	if n > 0 {
		r.digest.Write(p[:n])
	}
	if err == io.EOF {
		r.trailer = strings.NewReader(hex.EncodeToString(r.digest.Sum(nil)))
		if n > 0 {
			return n, nil
		}
		return r.trailer.Read(p)
	}
	return n, err
}
