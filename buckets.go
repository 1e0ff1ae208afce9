package b2go

import (
	"context"
)

// BucketType controls who can download from a bucket.
type BucketType string

const (
	BucketAllPublic  BucketType = "allPublic"
	BucketAllPrivate BucketType = "allPrivate"
	BucketSnapshot   BucketType = "snapshot"
)

// LifecycleRule tells the service when to hide and delete files
// automatically.
type LifecycleRule struct {
	DaysFromHidingToDeleting  *int64 `json:"daysFromHidingToDeleting"`
	DaysFromUploadingToHiding *int64 `json:"daysFromUploadingToHiding"`
	FileNamePrefix            string `json:"fileNamePrefix"`
}

// Bucket is one bucket as the service reports it.
type Bucket struct {
	AccountID      string            `json:"accountId"`
	BucketID       string            `json:"bucketId"`
	BucketName     string            `json:"bucketName"`
	BucketType     BucketType        `json:"bucketType"`
	BucketInfo     map[string]string `json:"bucketInfo"`
	LifecycleRules []LifecycleRule   `json:"lifecycleRules"`
	Revision       int64             `json:"revision"`
}

// ListBuckets streams the account's buckets. Elements arrive as they are
// decoded; close the stream if abandoning it early.
func (c *Client) ListBuckets(ctx context.Context) *Stream[Bucket] {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return failedStream[Bucket](c, "b2_list_buckets", err)
	}
	body := map[string]any{"accountId": accountID}
	// Elements live under the "buckets" wrapper, one level down.
	return newStream[Bucket](c, "b2_list_buckets", body, 2)
}

// CreateBucketRequest describes a bucket to create. BucketInfo and
// LifecycleRules may be nil.
type CreateBucketRequest struct {
	BucketName     string            `json:"bucketName"`
	BucketType     BucketType        `json:"bucketType"`
	BucketInfo     map[string]string `json:"bucketInfo,omitempty"`
	LifecycleRules []LifecycleRule   `json:"lifecycleRules,omitempty"`
}

// CreateBucket creates a bucket and returns it as the service recorded it.
func (c *Client) CreateBucket(ctx context.Context, req CreateBucketRequest) (Bucket, error) {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return Bucket{}, err
	}
	body := struct {
		AccountID string `json:"accountId"`
		CreateBucketRequest
	}{accountID, req}
	return call[Bucket](ctx, c, "b2_create_bucket", body)
}

// UpdateBucketRequest describes a bucket modification. Nil fields are left
// unchanged. IfRevisionIs, when set, makes the update conditional on the
// bucket still being at that revision.
type UpdateBucketRequest struct {
	BucketID       string            `json:"bucketId"`
	BucketType     BucketType        `json:"bucketType,omitempty"`
	BucketInfo     map[string]string `json:"bucketInfo,omitempty"`
	LifecycleRules []LifecycleRule   `json:"lifecycleRules,omitempty"`
	IfRevisionIs   *int64            `json:"ifRevisionIs,omitempty"`
}

// UpdateBucket modifies a bucket and returns the updated state.
func (c *Client) UpdateBucket(ctx context.Context, req UpdateBucketRequest) (Bucket, error) {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return Bucket{}, err
	}
	body := struct {
		AccountID string `json:"accountId"`
		UpdateBucketRequest
	}{accountID, req}
	return call[Bucket](ctx, c, "b2_update_bucket", body)
}

// DeleteBucket deletes a bucket by ID and returns its final state. The
// bucket must be empty.
func (c *Client) DeleteBucket(ctx context.Context, bucketID string) (Bucket, error) {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return Bucket{}, err
	}
	body := map[string]any{
		"accountId": accountID,
		"bucketId":  bucketID,
	}
	return call[Bucket](ctx, c, "b2_delete_bucket", body)
}

func (c *Client) accountID(ctx context.Context) (string, error) {
	a, err := c.source.Authorization(ctx)
	if err != nil {
		return "", err
	}
	return a.AccountID, nil
}
