package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const unknownSource = "unknown"

// Fingerprint identifies the caller behind an intercepted request. The IP is
// the source key; the other fields only shape the session id.
type Fingerprint struct {
	UserID    string
	Token     string
	Session   string
	IP        string
	UserAgent string
}

func (f Fingerprint) SourceID() string {
	if f.IP == "" {
		return unknownSource
	}
	return f.IP
}

// SessionID is stable for one client session and never carries the raw
// token or cookie value.
func (f Fingerprint) SessionID() string {
	var raw string
	switch {
	case f.Session != "":
		raw = "session|" + f.Session
	case f.Token != "":
		raw = "token|" + f.Token
	case f.UserID != "":
		raw = "user|" + f.UserID
	default:
		raw = "ua|" + f.IP + "|" + strings.ToLower(f.UserAgent)
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:12])
}
