// Package storage holds adapters for ports the core depends on but does not
// itself implement — the blob-URL signer is the one port with no dedicated
// storage system of its own (the blob store is an external collaborator), so
// it lives alongside, not inside, internal/storage/postgres.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

// HMACBlobSigner issues presigned URLs against a content-addressed blob
// store the core never talks to directly. It only ever hands out a URL and
// an expiry; actual byte transfer happens out of band between the agent and
// the blob store process. Uses the same HMAC-over-fields signing approach
// as internal/session/challenge.go's reconnect tokens.
type HMACBlobSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

// NewHMACBlobSigner builds a signer against baseURL (the blob store's public
// endpoint) using secret to authenticate presigned links for ttl.
func NewHMACBlobSigner(secret []byte, baseURL string, ttl time.Duration) *HMACBlobSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HMACBlobSigner{secret: secret, baseURL: baseURL, ttl: ttl}
}

func (s *HMACBlobSigner) sign(method, fileID string, expires time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%d", method, fileID, expires.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// PresignedPut mints a new file id and a signed upload URL for it. The
// caller is expected to PUT the raw bytes to the returned URL directly;
// contentType and size are carried in the signature so the blob store can
// reject a mismatched upload without the core being involved.
func (s *HMACBlobSigner) PresignedPut(ctx context.Context, filename, contentType string, size int64) (string, string, time.Time, error) {
	fileID := uuid.NewString()
	expires := time.Now().Add(s.ttl)
	sig := s.sign("PUT", fmt.Sprintf("%s:%s:%d", fileID, contentType, size), expires)
	url := fmt.Sprintf("%s/blobs/%s?exp=%d&sig=%s&name=%s&type=%s&size=%d",
		s.baseURL, fileID, expires.Unix(), sig, filename, contentType, size)
	return fileID, url, expires, nil
}

// PresignedGet signs a time-limited download URL for an existing file id.
func (s *HMACBlobSigner) PresignedGet(ctx context.Context, fileID string) (string, time.Time, error) {
	expires := time.Now().Add(s.ttl)
	sig := s.sign("GET", fileID, expires)
	url := fmt.Sprintf("%s/blobs/%s?exp=%d&sig=%s", s.baseURL, fileID, expires.Unix(), sig)
	return url, expires, nil
}

var _ ports.BlobSigner = (*HMACBlobSigner)(nil)
