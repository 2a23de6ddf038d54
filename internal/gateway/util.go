package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// bgCtx is used for the best-effort store writes issued from teardown and
// sweepers, which run outside any inbound request's context.
func bgCtx() context.Context { return context.Background() }

// encodeNonce renders a challenge nonce for the wire as base64, matching
// how the client is expected to sign the raw bytes it decodes from this
// string.
func encodeNonce(nonce []byte) string {
	return base64.StdEncoding.EncodeToString(nonce)
}

// decodeRaw unmarshals a stored JSON payload back into a generic value for
// re-embedding in an outbound envelope; a malformed stored payload (which
// should never happen, since it was only ever produced by json.Marshal on
// the way in) degrades to nil rather than panicking.
func decodeRaw(payload []byte) interface{} {
	if len(payload) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil
	}
	return v
}
