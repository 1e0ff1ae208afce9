package b2go

import (
	"context"
)

// FileAction distinguishes what a listed entry represents.
type FileAction string

const (
	// ActionUpload is a finished file.
	ActionUpload FileAction = "upload"
	// ActionHide is a hide marker shadowing older versions.
	ActionHide FileAction = "hide"
	// ActionStart is a large file that was started but not finished.
	ActionStart FileAction = "start"
	// ActionFolder is a virtual folder produced by delimiter listings.
	ActionFolder FileAction = "folder"
)

// File is one file version as the service reports it.
type File struct {
	FileID          string            `json:"fileId"`
	FileName        string            `json:"fileName"`
	AccountID       string            `json:"accountId,omitempty"`
	BucketID        string            `json:"bucketId,omitempty"`
	ContentLength   int64             `json:"contentLength"`
	ContentType     string            `json:"contentType"`
	ContentSHA1     string            `json:"contentSha1"`
	FileInfo        map[string]string `json:"fileInfo"`
	Action          FileAction        `json:"action"`
	UploadTimestamp int64             `json:"uploadTimestamp"`
}

// GetFileInfo fetches the stored metadata of one file version.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (File, error) {
	body := map[string]any{"fileId": fileID}
	return call[File](ctx, c, "b2_get_file_info", body)
}

// ListFileNamesRequest selects a page of file names. Only BucketID is
// required. MaxFileCount 0 lets the service pick its default page size.
type ListFileNamesRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

// FileNameListing is one page of file names. A nil NextFileName means the
// listing is complete; otherwise pass it as the next StartFileName.
type FileNameListing struct {
	Files        []File  `json:"files"`
	NextFileName *string `json:"nextFileName"`
}

// ListFileNames returns one page of the newest version of each file in a
// bucket, in name order.
func (c *Client) ListFileNames(ctx context.Context, req ListFileNamesRequest) (FileNameListing, error) {
	return call[FileNameListing](ctx, c, "b2_list_file_names", req)
}

// StreamFileNames is ListFileNames decoded incrementally: each file is
// yielded as soon as its bytes arrive rather than after the whole page is
// buffered. Pagination markers are not available through a stream; use
// ListFileNames when continuing past one page.
func (c *Client) StreamFileNames(ctx context.Context, req ListFileNamesRequest) *Stream[File] {
	return newStream[File](c, "b2_list_file_names", req, 2)
}

// ListFileVersionsRequest selects a page of file versions. Only BucketID is
// required; StartFileID additionally requires StartFileName.
type ListFileVersionsRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	StartFileID   string `json:"startFileId,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

// FileVersionListing is one page of file versions. Nil next markers mean
// the listing is complete.
type FileVersionListing struct {
	Files        []File  `json:"files"`
	NextFileName *string `json:"nextFileName"`
	NextFileID   *string `json:"nextFileId"`
}

// ListFileVersions returns one page of all versions of files in a bucket,
// in name order, newest version first within a name. Hide markers and
// unfinished large files appear with their Action set accordingly.
func (c *Client) ListFileVersions(ctx context.Context, req ListFileVersionsRequest) (FileVersionListing, error) {
	return call[FileVersionListing](ctx, c, "b2_list_file_versions", req)
}

// StreamFileVersions is ListFileVersions decoded incrementally. Pagination
// markers are not available through a stream.
func (c *Client) StreamFileVersions(ctx context.Context, req ListFileVersionsRequest) *Stream[File] {
	return newStream[File](c, "b2_list_file_versions", req, 2)
}

// DeletedFile identifies a file version that was removed.
type DeletedFile struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// DeleteFileVersion removes one version of a file. Deleting the newest
// version exposes the one below it.
func (c *Client) DeleteFileVersion(ctx context.Context, fileName, fileID string) (DeletedFile, error) {
	body := map[string]any{
		"fileName": fileName,
		"fileId":   fileID,
	}
	return call[DeletedFile](ctx, c, "b2_delete_file_version", body)
}

// HideFile writes a hide marker so the file no longer appears in name
// listings. Older versions stay until lifecycle rules or explicit deletes
// remove them.
func (c *Client) HideFile(ctx context.Context, bucketID, fileName string) (File, error) {
	body := map[string]any{
		"bucketId": bucketID,
		"fileName": fileName,
	}
	return call[File](ctx, c, "b2_hide_file", body)
}
