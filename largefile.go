package b2go

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftware/b2go/transport"
	"github.com/driftware/b2go/types"
)

// UploadPartURL is an upload target for parts of one large file. Like
// UploadURL, it must not be shared between goroutines.
type UploadPartURL struct {
	FileID             string `json:"fileId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

// Part is one uploaded part of a large file.
type Part struct {
	FileID          string `json:"fileId"`
	PartNumber      int    `json:"partNumber"`
	ContentLength   int64  `json:"contentLength"`
	ContentSHA1     string `json:"contentSha1"`
	UploadTimestamp int64  `json:"uploadTimestamp"`
}

// StartLargeFile begins a large-file upload and returns the unfinished
// file, whose FileID the part operations need.
func (c *Client) StartLargeFile(ctx context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (File, error) {
	if contentType == "" {
		contentType = ContentTypeAuto
	}
	body := map[string]any{
		"bucketId":    bucketID,
		"fileName":    fileName,
		"contentType": contentType,
	}
	if len(fileInfo) > 0 {
		body["fileInfo"] = fileInfo
	}
	return call[File](ctx, c, "b2_start_large_file", body)
}

// GetUploadPartURL obtains a part upload target for an unfinished large
// file. Fetch one per concurrent uploader.
func (c *Client) GetUploadPartURL(ctx context.Context, fileID string) (UploadPartURL, error) {
	body := map[string]any{"fileId": fileID}
	return call[UploadPartURL](ctx, c, "b2_get_upload_part_url", body)
}

// UploadPart sends one part. Part numbers start at 1. An empty sha1 makes
// the client compute the checksum while streaming and append it after the
// payload.
func (c *Client) UploadPart(ctx context.Context, u UploadPartURL, partNumber int, contentLength int64, body io.Reader, sha1 string) (Part, error) {
	if partNumber < 1 {
		return Part{}, types.ConfigError("part numbers start at 1")
	}
	total := contentLength
	shaHeader := sha1
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
		return Part{}, types.TransportError(err)
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Authorization", u.AuthorizationToken)
	httpReq.Header.Set("X-Bz-Part-Number", strconv.Itoa(partNumber))
	httpReq.Header.Set("X-Bz-Content-Sha1", shaHeader)

	ctx, span := c.tracer.Start(ctx, "b2.b2_upload_part")
	defer span.End()
	start := time.Now()
	p, err := transport.DecodeOnce[Part](ctx, c.exchange(httpReq))
	if closeBody != nil {
		closeBody()
	}
	c.observe("b2_upload_part", "", start, err)
	if err != nil {
		span.RecordError(err)
		return Part{}, err
	}
	c.metrics.RecordUpload(contentLength)
	return p, nil
}

// FinishLargeFile assembles the uploaded parts into a finished file. The
// checksums must be in part order.
func (c *Client) FinishLargeFile(ctx context.Context, fileID string, partSHA1s []string) (File, error) {
	body := map[string]any{
		"fileId":        fileID,
		"partSha1Array": partSHA1s,
	}
	return call[File](ctx, c, "b2_finish_large_file", body)
}

// CanceledFile identifies a large-file upload that was abandoned.
type CanceledFile struct {
	FileID    string `json:"fileId"`
	AccountID string `json:"accountId"`
	BucketID  string `json:"bucketId"`
	FileName  string `json:"fileName"`
}

// CancelLargeFile abandons an unfinished large file and discards its
// uploaded parts.
func (c *Client) CancelLargeFile(ctx context.Context, fileID string) (CanceledFile, error) {
	body := map[string]any{"fileId": fileID}
	return call[CanceledFile](ctx, c, "b2_cancel_large_file", body)
}

// PartListing is one page of uploaded parts. A nil NextPartNumber means
// the listing is complete.
type PartListing struct {
	Parts          []Part `json:"parts"`
	NextPartNumber *int   `json:"nextPartNumber"`
}

// ListParts returns one page of the parts uploaded so far for an
// unfinished large file.
func (c *Client) ListParts(ctx context.Context, fileID string, startPartNumber, maxPartCount int) (PartListing, error) {
	body := map[string]any{"fileId": fileID}
	if startPartNumber > 0 {
		body["startPartNumber"] = startPartNumber
	}
	if maxPartCount > 0 {
		body["maxPartCount"] = maxPartCount
	}
	return call[PartListing](ctx, c, "b2_list_parts", body)
}

// UploadLargeFileRequest describes a whole large-file upload driven by the
// client. Content must support concurrent reads of disjoint sections.
type UploadLargeFileRequest struct {
	BucketID    string
	FileName    string
	ContentType string
	FileInfo    map[string]string
	Content     io.ReaderAt
	Size        int64
	// PartSize 0 uses the size the service recommends.
	PartSize int64
	// Concurrency 0 uploads 4 parts at a time.
	Concurrency int
}

// UploadLargeFile runs the whole large-file flow: start, upload parts
// concurrently, finish. Part checksums are computed while streaming and
// taken from the service's responses for the finish call. On failure the
// unfinished file is cancelled best-effort before the error is returned.
func (c *Client) UploadLargeFile(ctx context.Context, req UploadLargeFileRequest) (File, error) {
	a, err := c.source.Authorization(ctx)
	if err != nil {
		return File{}, err
	}
	partSize := req.PartSize
	if partSize <= 0 {
		partSize = a.RecommendedPartSize
	}
	if partSize < a.AbsoluteMinimumPartSize {
		partSize = a.AbsoluteMinimumPartSize
	}
	if partSize <= 0 {
		return File{}, types.ConfigError("part size could not be determined")
	}
	numParts := int((req.Size + partSize - 1) / partSize)
	if numParts < 2 {
		return File{}, types.ConfigError("content too small for a large-file upload; use UploadFile")
	}
	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}

	started, err := c.StartLargeFile(ctx, req.BucketID, req.FileName, req.ContentType, req.FileInfo)
	if err != nil {
		return File{}, err
	}
	c.logger.Debug("large file started",
		zap.String("file_id", started.FileID),
		zap.Int("parts", numParts),
		zap.Int64("part_size", partSize))

	shas := make([]string, numParts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < numParts; i++ {
		i := i
		g.Go(func() error {
			offset := int64(i) * partSize
			length := partSize
			if offset+length > req.Size {
				length = req.Size - offset
			}
			u, err := c.GetUploadPartURL(gctx, started.FileID)
			if err != nil {
				return err
			}
			section := io.NewSectionReader(req.Content, offset, length)
			p, err := c.UploadPart(gctx, u, i+1, length, section, "")
			if err != nil {
				return err
			}
			shas[i] = p.ContentSHA1
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// The parent context may already be dead; cancel on a fresh one so
		// the unfinished file does not linger.
		cancelCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, cerr := c.CancelLargeFile(cancelCtx, started.FileID); cerr != nil {
			c.logger.Warn("cancel of unfinished large file failed",
				zap.String("file_id", started.FileID), zap.Error(cerr))
		}
		return File{}, err
	}
	return c.FinishLargeFile(ctx, started.FileID, shas)
}
