package auth

import (
	"encoding/base64"
	"fmt"
)

// Credentials identify an application key pair.
type Credentials struct {
	KeyID          string
	ApplicationKey string
}

// BasicAuth renders the credentials as an HTTP Basic Authorization header
// value, which is how the account-authorization endpoint expects them.
func (c Credentials) BasicAuth() string {
	raw := fmt.Sprintf("%s:%s", c.KeyID, c.ApplicationKey)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Capability names one operation class a key is allowed to perform.
type Capability string

// Capabilities a key may carry. The service may add more; unknown values
// round-trip unchanged.
const (
	CapListKeys              Capability = "listKeys"
	CapWriteKeys             Capability = "writeKeys"
	CapDeleteKeys            Capability = "deleteKeys"
	CapListBuckets           Capability = "listBuckets"
	CapWriteBuckets          Capability = "writeBuckets"
	CapDeleteBuckets         Capability = "deleteBuckets"
	CapListFiles             Capability = "listFiles"
	CapReadFiles             Capability = "readFiles"
	CapShareFiles            Capability = "shareFiles"
	CapWriteFiles            Capability = "writeFiles"
	CapDeleteFiles           Capability = "deleteFiles"
	CapReadBucketEncryption  Capability = "readBucketEncryption"
	CapWriteBucketEncryption Capability = "writeBucketEncryption"
)

// Capabilities is the set of operations a key may perform.
type Capabilities []Capability

// Has reports whether the set contains the capability.
func (cs Capabilities) Has(c Capability) bool {
	for _, have := range cs {
		if have == c {
			return true
		}
	}
	return false
}

// Allowed restricts what an authorization may touch. A nil BucketID means
// the key is not bucket-restricted.
type Allowed struct {
	Capabilities Capabilities `json:"capabilities"`
	BucketID     *string      `json:"bucketId"`
	BucketName   *string      `json:"bucketName"`
	NamePrefix   *string      `json:"namePrefix"`
}

// Authorization is the state returned by the account-authorization endpoint.
// Values are immutable once published; replace the whole struct rather than
// mutating fields.
type Authorization struct {
	AccountID               string  `json:"accountId"`
	Token                   string  `json:"authorizationToken"`
	APIURL                  string  `json:"apiUrl"`
	DownloadURL             string  `json:"downloadUrl"`
	RecommendedPartSize     int64   `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64   `json:"absoluteMinimumPartSize"`
	Allowed                 Allowed `json:"allowed"`
}
