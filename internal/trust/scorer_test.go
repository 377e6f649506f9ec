package trust

import (
	"crypto/rand"
	"net/http/httptest"
	"testing"
	"time"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"

func browserFingerprint(ip, ua string, seen time.Time) Fingerprint {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ip + ":443"
	r.Header.Set("User-Agent", ua)
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return NewFingerprint(r, "test-salt", seen)
}

func hasReason(a Assessment, reason string) bool {
	for _, r := range a.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func TestEntropy(t *testing.T) {
	if got := Entropy(""); got != 0 {
		t.Fatalf("entropy of empty = %f, want 0", got)
	}
	if got := Entropy("aaaaaaaa"); got != 0 {
		t.Fatalf("entropy of repeated char = %f, want 0", got)
	}
	buf := make([]byte, 256)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if got := Entropy(string(buf)); got <= 4 {
		t.Fatalf("entropy of random bytes = %f, want > 4", got)
	}
	if got := Entropy(browserUA); got < lowEntropyBits {
		t.Fatalf("browser UA entropy = %f, should clear the low threshold", got)
	}
}

func TestCleanRequestScoresZero(t *testing.T) {
	scorer := NewScorer()
	got := scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, time.Now()))
	if got.Score != 0 {
		t.Fatalf("score = %d (%v), want 0", got.Score, got.Reasons)
	}
}

func TestBotUserAgentFlagged(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	fp := browserFingerprint("203.0.113.7", "Mozilla/5.0 HeadlessChrome/120.0 Safari/537.36", now)
	got := scorer.Score("u1", fp)
	if !hasReason(got, ReasonBotPattern) {
		t.Fatalf("expected %s in %v", ReasonBotPattern, got.Reasons)
	}
}

func TestMissingHeadersAndLowEntropy(t *testing.T) {
	scorer := NewScorer()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:443"
	r.Header.Set("User-Agent", "curlcurl")
	fp := NewFingerprint(r, "test-salt", time.Now())
	got := scorer.Score("u1", fp)
	if !hasReason(got, ReasonMissingHeader) {
		t.Fatalf("expected %s in %v", ReasonMissingHeader, got.Reasons)
	}
	if !hasReason(got, ReasonLowUAEntropy) {
		t.Fatalf("expected %s in %v", ReasonLowUAEntropy, got.Reasons)
	}
}

func TestIPRotation(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	scorer.Score("u1", browserFingerprint("203.0.113.1", browserUA, now.Add(-2*time.Minute)))
	scorer.Score("u1", browserFingerprint("203.0.113.2", browserUA, now.Add(-time.Minute)))
	got := scorer.Score("u1", browserFingerprint("203.0.113.3", browserUA, now))
	if !hasReason(got, ReasonIPRotation) {
		t.Fatalf("expected %s in %v", ReasonIPRotation, got.Reasons)
	}
}

func TestUASwitchingUnderSameIP(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	scorer.Score("u1", browserFingerprint("203.0.113.9", browserUA, now.Add(-3*time.Minute)))
	scorer.Score("u1", browserFingerprint("203.0.113.9", browserUA+" Chrome/123.0", now.Add(-2*time.Minute)))
	got := scorer.Score("u1", browserFingerprint("203.0.113.9", browserUA+" Edg/123.0", now))
	if !hasReason(got, ReasonUASwitching) {
		t.Fatalf("expected %s in %v", ReasonUASwitching, got.Reasons)
	}
}

func TestHighVelocity(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	for i := 0; i < 50; i++ {
		scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now.Add(-time.Duration(i)*time.Second)))
	}
	// 50 prior requests plus this one crosses the >50 threshold.
	got := scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now))
	if !hasReason(got, ReasonHighVelocity) {
		t.Fatalf("expected %s in %v", ReasonHighVelocity, got.Reasons)
	}
}

func TestVelocityBelowThreshold(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	for i := 0; i < 49; i++ {
		scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now.Add(-time.Duration(i)*time.Second)))
	}
	// Exactly 50 requests in the window, current one included: no flag.
	got := scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now))
	if hasReason(got, ReasonHighVelocity) {
		t.Fatalf("did not expect %s in %v", ReasonHighVelocity, got.Reasons)
	}
}

func TestScoreCappedAt100(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	for i := 0; i < 60; i++ {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:443"
		r.Header.Set("User-Agent", "headlessheadless")
		scorer.Score("u1", NewFingerprint(r, "test-salt", now.Add(-time.Duration(i)*time.Second)))
	}
	var last Assessment
	for _, ip := range []string{"203.0.113.11", "203.0.113.12", "203.0.113.13"} {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = ip + ":443"
		r.Header.Set("User-Agent", "headlessheadless")
		last = scorer.Score("u1", NewFingerprint(r, "test-salt", now))
	}
	if last.Score != 100 {
		t.Fatalf("score = %d (%v), want capped 100", last.Score, last.Reasons)
	}
}

func TestHistoryBounds(t *testing.T) {
	scorer := NewScorer()
	now := time.Now()
	// Entries past the retention window must be evicted.
	scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now.Add(-2*time.Hour)))
	for i := 0; i < 150; i++ {
		scorer.Score("u1", browserFingerprint("203.0.113.7", browserUA, now.Add(-time.Duration(150-i)*time.Second)))
	}
	if got := scorer.HistoryLen("u1"); got > historyCap {
		t.Fatalf("history length %d exceeds cap %d", got, historyCap)
	}
}

func TestFingerprintNeverKeepsRawValues(t *testing.T) {
	fp := browserFingerprint("203.0.113.7", browserUA, time.Now())
	if fp.IPHash == "203.0.113.7" || fp.UAHash == browserUA {
		t.Fatal("fingerprint retained raw metadata")
	}
	if len(fp.IPHash) != 64 || len(fp.UAHash) != 64 {
		t.Fatalf("expected sha256 hex digests, got %q / %q", fp.IPHash, fp.UAHash)
	}
}
