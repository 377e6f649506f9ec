// Package trust derives salted request fingerprints and scores principals
// for anomalous, bot-like behaviour. Scores are advisory: callers log them
// and may escalate, the package itself never blocks a request.
package trust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strings"
	"time"
)

// Fingerprint is a salted, non-reversible signature of request metadata.
// Raw IP and user-agent values are never retained.
type Fingerprint struct {
	IPHash         string
	UAHash         string
	AcceptLanguage string
	AcceptEncoding string
	Seen           time.Time
	UAEntropy      float64
	BotUA          bool
}

var automationMarkers = []string{
	"headless",
	"phantom",
	"selenium",
	"puppeteer",
	"playwright",
}

// NewFingerprint digests the identifying request metadata with the given
// salt. The bot marker check runs against the raw user agent here, before
// it is discarded.
func NewFingerprint(r *http.Request, salt string, now time.Time) Fingerprint {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ua := r.UserAgent()
	lowered := strings.ToLower(ua)
	botUA := false
	for _, marker := range automationMarkers {
		if strings.Contains(lowered, marker) {
			botUA = true
			break
		}
	}
	return Fingerprint{
		IPHash:         digest(salt, ip),
		UAHash:         digest(salt, ua),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Seen:           now,
		UAEntropy:      Entropy(ua),
		BotUA:          botUA,
	}
}

// Entropy returns the Shannon entropy in bits of the character distribution
// of s. The empty string has zero entropy.
func Entropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, c := range s {
		freq[c]++
		total++
	}
	entropy := 0.0
	for _, n := range freq {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func digest(salt, value string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
