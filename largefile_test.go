package b2go

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftware/b2go/testutil"
	"github.com/driftware/b2go/types"
)

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fakeLargeFile wires the whole large-file surface of the fake service and
// records what arrives.
type fakeLargeFile struct {
	mu       sync.Mutex
	parts    map[int][]byte
	finished []string
	canceled atomic.Int64
}

func setupLargeFile(t *testing.T, f *testutil.FakeAPI) *fakeLargeFile {
	t.Helper()
	state := &fakeLargeFile{parts: make(map[int][]byte)}

	f.Handle("b2_start_large_file", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BucketID    string `json:"bucketId"`
			FileName    string `json:"fileName"`
			ContentType string `json:"contentType"`
		}
		testutil.DecodeBody(t, r, &body)
		testutil.WriteJSON(t, w, http.StatusOK, File{
			FileID:      "large-1",
			FileName:    body.FileName,
			ContentType: body.ContentType,
			Action:      ActionStart,
		})
	})
	f.Handle("b2_get_upload_part_url", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, UploadPartURL{
			FileID:             "large-1",
			UploadURL:          f.URL() + "/b2api/v2/b2_upload_part",
			AuthorizationToken: "part-token",
		})
	})
	f.Handle("b2_upload_part", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "part-token", r.Header.Get("Authorization"))
		require.Equal(t, "hex_digits_at_end", r.Header.Get("X-Bz-Content-Sha1"))
		partNumber := 0
		for _, c := range r.Header.Get("X-Bz-Part-Number") {
			partNumber = partNumber*10 + int(c-'0')
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(body), 40)

		data, trailer := body[:len(body)-40], string(body[len(body)-40:])
		require.Equal(t, sha1Hex(data), trailer)

		state.mu.Lock()
		state.parts[partNumber] = data
		state.mu.Unlock()

		testutil.WriteJSON(t, w, http.StatusOK, Part{
			FileID:        "large-1",
			PartNumber:    partNumber,
			ContentLength: int64(len(data)),
			ContentSHA1:   trailer,
		})
	})
	f.Handle("b2_finish_large_file", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileID string   `json:"fileId"`
			SHA1s  []string `json:"partSha1Array"`
		}
		testutil.DecodeBody(t, r, &body)
		state.mu.Lock()
		state.finished = body.SHA1s
		state.mu.Unlock()
		testutil.WriteJSON(t, w, http.StatusOK, File{
			FileID:   body.FileID,
			FileName: "big.bin",
			Action:   ActionUpload,
		})
	})
	f.Handle("b2_cancel_large_file", func(w http.ResponseWriter, r *http.Request) {
		state.canceled.Add(1)
		testutil.WriteJSON(t, w, http.StatusOK, CanceledFile{FileID: "large-1"})
	})
	return state
}

func TestUploadLargeFile(t *testing.T) {
	f := testutil.NewFakeAPI(t)
	f.SetPartSizes(2048, 1024)
	state := setupLargeFile(t, f)

	content := make([]byte, 5000)
	_, err := rand.Read(content)
	require.NoError(t, err)

	c := newTestClient(t, f)
	file, err := c.UploadLargeFile(testutil.TestContext(t), UploadLargeFileRequest{
		BucketID:    "b1",
		FileName:    "big.bin",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		Concurrency: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "large-1", file.FileID)

	// 5000 bytes at the recommended 2048 part size makes three parts.
	state.mu.Lock()
	defer state.mu.Unlock()
	require.Len(t, state.parts, 3)

	var joined []byte
	for i := 1; i <= 3; i++ {
		joined = append(joined, state.parts[i]...)
	}
	assert.Equal(t, content, joined)

	require.Len(t, state.finished, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, sha1Hex(state.parts[i]), state.finished[i-1])
	}
	assert.Equal(t, int64(0), state.canceled.Load())
}

func TestUploadLargeFileCancelsOnFailure(t *testing.T) {
	f := testutil.NewFakeAPI(t)
	f.SetPartSizes(2048, 1024)
	state := setupLargeFile(t, f)
	f.Handle("b2_upload_part", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteAPIError(t, w, http.StatusServiceUnavailable,
			"service_unavailable", "busy")
	})

	content := make([]byte, 5000)
	c := newTestClient(t, f)
	_, err := c.UploadLargeFile(testutil.TestContext(t), UploadLargeFileRequest{
		BucketID: "b1",
		FileName: "big.bin",
		Content:  bytes.NewReader(content),
		Size:     int64(len(content)),
	})
	require.Error(t, err)
	assert.True(t, types.IsServiceUnavailable(err))
	assert.Equal(t, int64(1), state.canceled.Load())
}

func TestUploadLargeFileRejectsSmallContent(t *testing.T) {
	f := testutil.NewFakeAPI(t)
	f.SetPartSizes(2048, 1024)

	c := newTestClient(t, f)
	_, err := c.UploadLargeFile(testutil.TestContext(t), UploadLargeFileRequest{
		BucketID: "b1",
		FileName: "small.bin",
		Content:  bytes.NewReader(make([]byte, 100)),
		Size:     100,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestManualPartFlow(t *testing.T) {
	f := testutil.NewFakeAPI(t)
	f.SetPartSizes(2048, 1024)
	state := setupLargeFile(t, f)

	c := newTestClient(t, f)
	ctx := testutil.TestContext(t)

	started, err := c.StartLargeFile(ctx, "b1", "manual.bin", "", nil)
	require.NoError(t, err)
	require.Equal(t, ActionStart, started.Action)

	u, err := c.GetUploadPartURL(ctx, started.FileID)
	require.NoError(t, err)

	part := []byte("part one payload")
	p, err := c.UploadPart(ctx, u, 1, int64(len(part)), bytes.NewReader(part), "")
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(part), p.ContentSHA1)

	_, err = c.UploadPart(ctx, u, 0, 1, bytes.NewReader([]byte{0}), "")
	require.Error(t, err)

	canceled, err := c.CancelLargeFile(ctx, started.FileID)
	require.NoError(t, err)
	assert.Equal(t, "large-1", canceled.FileID)
	assert.Equal(t, int64(1), state.canceled.Load())
}
