package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"
)

// SaltEmailActions is the signing context for verify-account and
// password-reset links.
const SaltEmailActions = "email-configuration"

// ActionCodec signs small URL-safe payloads for out-of-band email actions.
// The signing key is derived from the server secret and a salt, so action
// tokens and access/refresh tokens can never cross-validate.
type ActionCodec struct {
	key []byte
	now func() time.Time
}

func NewActionCodec(secret, salt string) *ActionCodec {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	return &ActionCodec{key: mac.Sum(nil), now: time.Now}
}

// Issue serializes and signs the payload together with the issuance instant.
// Token shape: base64url(json).base64url(unix-seconds).base64url(hmac).
func (c *ActionCodec) Issue(payload map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(c.now().Unix()))

	bodySeg := base64.RawURLEncoding.EncodeToString(body)
	tsSeg := base64.RawURLEncoding.EncodeToString(ts[:])
	signed := bodySeg + "." + tsSeg
	sig := c.sign(signed)
	return signed + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode verifies the signature and rejects tokens older than maxAge. The
// age window is fixed at the call site, independent of access-token TTLs.
func (c *ActionCodec) Decode(token string, maxAge time.Duration) (map[string]string, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, ErrActionTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, ErrActionTokenInvalid
	}
	signed := segments[0] + "." + segments[1]
	if subtle.ConstantTimeCompare(sig, c.sign(signed)) != 1 {
		return nil, ErrActionTokenInvalid
	}

	tsRaw, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil || len(tsRaw) != 8 {
		return nil, ErrActionTokenInvalid
	}
	issued := time.Unix(int64(binary.BigEndian.Uint64(tsRaw)), 0)
	if maxAge > 0 && c.now().Sub(issued) > maxAge {
		return nil, ErrActionTokenExpired
	}

	body, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, ErrActionTokenInvalid
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrActionTokenInvalid
	}
	return payload, nil
}

func (c *ActionCodec) sign(data string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
