package b2go

import (
	"context"
	"time"

	"github.com/driftware/b2go/auth"
)

// Key is one application key as listings report it. The secret is only
// ever returned at creation time, via CreatedKey.
type Key struct {
	KeyName             string            `json:"keyName"`
	ApplicationKeyID    string            `json:"applicationKeyId"`
	Capabilities        auth.Capabilities `json:"capabilities"`
	AccountID           string            `json:"accountId"`
	ExpirationTimestamp *int64            `json:"expirationTimestamp"`
	BucketID            *string           `json:"bucketId"`
	NamePrefix          *string           `json:"namePrefix"`
}

// CreatedKey is a freshly created key, including the secret. Store the
// secret now; no later call returns it.
type CreatedKey struct {
	Key
	ApplicationKey string `json:"applicationKey"`
}

// CreateKeyRequest describes a key to create. BucketID restricts the key
// to one bucket; NamePrefix further restricts it to file names under the
// prefix and requires BucketID.
type CreateKeyRequest struct {
	KeyName      string            `json:"keyName"`
	Capabilities auth.Capabilities `json:"capabilities"`
	ValidFor     time.Duration     `json:"-"`
	BucketID     string            `json:"bucketId,omitempty"`
	NamePrefix   string            `json:"namePrefix,omitempty"`
}

// CreateKey creates an application key.
func (c *Client) CreateKey(ctx context.Context, req CreateKeyRequest) (CreatedKey, error) {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return CreatedKey{}, err
	}
	body := map[string]any{
		"accountId":    accountID,
		"keyName":      req.KeyName,
		"capabilities": req.Capabilities,
	}
	if req.ValidFor > 0 {
		body["validDurationInSeconds"] = int64(req.ValidFor / time.Second)
	}
	if req.BucketID != "" {
		body["bucketId"] = req.BucketID
	}
	if req.NamePrefix != "" {
		body["namePrefix"] = req.NamePrefix
	}
	return call[CreatedKey](ctx, c, "b2_create_key", body)
}

// KeyListing is one page of application keys. A nil NextApplicationKeyID
// means the listing is complete.
type KeyListing struct {
	Keys                 []Key   `json:"keys"`
	NextApplicationKeyID *string `json:"nextApplicationKeyId"`
}

// ListKeys returns one page of the account's application keys.
// MaxKeyCount 0 lets the service pick its default page size.
func (c *Client) ListKeys(ctx context.Context, maxKeyCount int, startApplicationKeyID string) (KeyListing, error) {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return KeyListing{}, err
	}
	body := map[string]any{"accountId": accountID}
	if maxKeyCount > 0 {
		body["maxKeyCount"] = maxKeyCount
	}
	if startApplicationKeyID != "" {
		body["startApplicationKeyId"] = startApplicationKeyID
	}
	return call[KeyListing](ctx, c, "b2_list_keys", body)
}

// StreamKeys is ListKeys decoded incrementally. The pagination marker is
// not available through a stream.
func (c *Client) StreamKeys(ctx context.Context, maxKeyCount int) *Stream[Key] {
	accountID, err := c.accountID(ctx)
	if err != nil {
		return failedStream[Key](c, "b2_list_keys", err)
	}
	body := map[string]any{"accountId": accountID}
	if maxKeyCount > 0 {
		body["maxKeyCount"] = maxKeyCount
	}
	return newStream[Key](c, "b2_list_keys", body, 2)
}

// DeleteKey deletes an application key and returns its final state.
func (c *Client) DeleteKey(ctx context.Context, applicationKeyID string) (Key, error) {
	body := map[string]any{"applicationKeyId": applicationKeyID}
	return call[Key](ctx, c, "b2_delete_key", body)
}
