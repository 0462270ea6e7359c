package detect

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mbd888/txinsight/internal/risk"
)

// APIPath is the detection endpoint path. It is part of every signed string.
const APIPath = "/security-api/public/app/v1/detect"

// Signature headers.
const (
	HeaderAppID     = "X-Signature-appid"
	HeaderTimestamp = "X-Signature-timestamp"
	HeaderNonce     = "X-Signature-nonce"
	HeaderSignature = "X-Signature-signature"
	ContentType     = "application/json;charset=UTF-8"
)

// Credentials is one appId/appSecret pair issued by the detection service.
type Credentials struct {
	AppID     string
	AppSecret string
}

// Valid reports whether both halves are set.
func (c Credentials) Valid() bool { return c.AppID != "" && c.AppSecret != "" }

// Keyring holds the two credential pairs. The upstream authenticates native
// transfer screening with its own pair; every other business type uses
// Default.
type Keyring struct {
	Default Credentials
	Native  Credentials
}

// For returns the pair that signs requests for business.
func (k Keyring) For(business risk.BusinessType) Credentials {
	if business == risk.NativeTransfer {
		return k.Native
	}
	return k.Default
}

// Envelope carries the authentication headers for one request.
type Envelope struct {
	AppID     string
	Timestamp int64 // ms since epoch
	Nonce     string
	Signature string // hex HMAC-SHA256
}

// Apply sets the signature headers on h.
func (e Envelope) Apply(h http.Header) {
	h.Set(HeaderAppID, e.AppID)
	h.Set(HeaderTimestamp, strconv.FormatInt(e.Timestamp, 10))
	h.Set(HeaderNonce, e.Nonce)
	h.Set(HeaderSignature, e.Signature)
}

// Signer produces request envelopes. It holds no per-request state; every
// call is signed with the timestamp and nonce it is given.
type Signer struct {
	keys Keyring
}

// NewSigner creates a signer over keys.
func NewSigner(keys Keyring) *Signer {
	return &Signer{keys: keys}
}

// Sign builds the envelope for one request. payload must be the exact body
// bytes that will be sent.
func (s *Signer) Sign(business risk.BusinessType, payload []byte, timestamp int64, nonce string) Envelope {
	creds := s.keys.For(business)
	msg := StringToSign(creds.AppID, timestamp, nonce, business, payload)

	mac := hmac.New(sha256.New, []byte(creds.AppSecret))
	mac.Write([]byte(msg))
	return Envelope{
		AppID:     creds.AppID,
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: hex.EncodeToString(mac.Sum(nil)),
	}
}

// StringToSign joins the signed fields with ";":
//
//	appId;timestamp;nonce;POST;<path>;[business=<type>;]<payload>
//
// The query segment is omitted for native transfers, which are not routed by
// query string.
func StringToSign(appID string, timestamp int64, nonce string, business risk.BusinessType, payload []byte) string {
	var b strings.Builder
	b.WriteString(appID)
	b.WriteByte(';')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte(';')
	b.WriteString(nonce)
	b.WriteByte(';')
	b.WriteString(http.MethodPost)
	b.WriteByte(';')
	b.WriteString(APIPath)
	b.WriteByte(';')
	if q := Query(business); q != "" {
		b.WriteString(q)
		b.WriteByte(';')
	}
	b.Write(payload)
	return b.String()
}

// Query returns the encoded query string for business, or "" for native
// transfers.
func Query(business risk.BusinessType) string {
	if business == risk.NativeTransfer {
		return ""
	}
	return url.Values{"business": {string(business)}}.Encode()
}
