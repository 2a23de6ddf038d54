// Reconnect challenge–response: once an agent has registered a public key,
// a reconnect never sends the API key over the wire again. The server
// mints a one-time random challenge wrapped in a short-lived signed token
// so it needs no server-side state between issuing the challenge and
// verifying the reply, then verifies the agent's signature over the raw
// nonce against its stored public key.
package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChallengeTTL bounds how long an issued challenge remains acceptable.
const ChallengeTTL = 10 * time.Second

const nonceBytes = 32

type challengeClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// ChallengeIssuer mints and verifies reconnect challenge tokens. It holds
// no per-challenge state: the nonce and expiry round-trip inside the
// signed token itself.
type ChallengeIssuer struct {
	secret []byte
}

func NewChallengeIssuer(secret []byte) *ChallengeIssuer {
	return &ChallengeIssuer{secret: secret}
}

// Issue mints a fresh 32-byte random nonce and returns it embedded in a
// signed, short-lived JWT the client echoes back signed by its own key.
func (c *ChallengeIssuer) Issue(agentID string) (token string, nonce []byte, err error) {
	nonce = make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", nil, fmt.Errorf("generate challenge nonce: %w", err)
	}
	claims := challengeClaims{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ChallengeTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign challenge: %w", err)
	}
	return signed, nonce, nil
}

// Verify checks that token is a still-valid challenge for agentID and that
// signatureHex is a valid ed25519 signature of the embedded nonce under
// publicKeyHex.
func (c *ChallengeIssuer) Verify(token, agentID, signatureHex, publicKeyHex string) bool {
	parsed, err := jwt.ParseWithClaims(token, &challengeClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*challengeClaims)
	if !ok || claims.Subject != agentID {
		return false
	}

	nonce, err := base64.StdEncoding.DecodeString(claims.Nonce)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), nonce, sig)
}
