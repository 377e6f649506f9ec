package trust

import (
	"sync"
	"time"
)

// Scoring weights and thresholds.
const (
	weightLowUAEntropy = 20
	weightIPRotation   = 30
	weightUASwitching  = 25
	weightNoHeaders    = 15
	weightHighVelocity = 20
	weightBotPattern   = 40

	lowEntropyBits    = 3.0
	rotationIPs       = 3
	switchingUAs      = 3
	velocityThreshold = 50

	recentWindow  = 5 * time.Minute
	historyWindow = time.Hour
	historyCap    = 100
)

// Reason codes attached to an assessment.
const (
	ReasonLowUAEntropy  = "LOW_UA_ENTROPY"
	ReasonIPRotation    = "RAPID_IP_ROTATION"
	ReasonUASwitching   = "UA_SWITCHING"
	ReasonMissingHeader = "MISSING_HEADERS"
	ReasonHighVelocity  = "HIGH_VELOCITY"
	ReasonBotPattern    = "BOT_PATTERN_DETECTED"
)

// Assessment is the advisory result of scoring one request.
type Assessment struct {
	Score   int
	Reasons []string
}

// Scorer keeps a bounded per-principal fingerprint history in process
// memory. In a horizontally scaled deployment each instance sees only its
// own slice of traffic; the signal is advisory, so a partial view is an
// accepted limitation rather than a correctness bug.
type Scorer struct {
	mu      sync.Mutex
	history map[string][]Fingerprint
}

// NewScorer constructs an empty Scorer.
func NewScorer() *Scorer {
	return &Scorer{history: make(map[string][]Fingerprint)}
}

// Score evaluates fp against the principal's recent history, appends it,
// then prunes the history to the retention window and cap.
func (s *Scorer) Score(principalID string, fp Fingerprint) Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()

	assessment := Assessment{}
	add := func(weight int, reason string) {
		assessment.Score += weight
		assessment.Reasons = append(assessment.Reasons, reason)
	}

	if fp.UAEntropy < lowEntropyBits {
		add(weightLowUAEntropy, ReasonLowUAEntropy)
	}

	recent := s.recent(principalID, fp.Seen)

	ips := map[string]struct{}{fp.IPHash: {}}
	for _, h := range recent {
		ips[h.IPHash] = struct{}{}
	}
	if len(ips) >= rotationIPs {
		add(weightIPRotation, ReasonIPRotation)
	}

	uasForIP := map[string]struct{}{fp.UAHash: {}}
	for _, h := range s.history[principalID] {
		if h.IPHash == fp.IPHash {
			uasForIP[h.UAHash] = struct{}{}
		}
	}
	if len(uasForIP) >= switchingUAs {
		add(weightUASwitching, ReasonUASwitching)
	}

	if fp.AcceptLanguage == "" || fp.AcceptEncoding == "" {
		add(weightNoHeaders, ReasonMissingHeader)
	}

	// The in-flight request counts toward the window, same as the
	// rotation check seeding its set with the current fingerprint.
	if len(recent)+1 > velocityThreshold {
		add(weightHighVelocity, ReasonHighVelocity)
	}

	if fp.BotUA {
		add(weightBotPattern, ReasonBotPattern)
	}

	if assessment.Score > 100 {
		assessment.Score = 100
	}

	s.append(principalID, fp)
	return assessment
}

// HistoryLen reports the retained history size for a principal.
func (s *Scorer) HistoryLen(principalID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[principalID])
}

func (s *Scorer) recent(principalID string, now time.Time) []Fingerprint {
	cutoff := now.Add(-recentWindow)
	var out []Fingerprint
	for _, h := range s.history[principalID] {
		if h.Seen.After(cutoff) {
			out = append(out, h)
		}
	}
	return out
}

func (s *Scorer) append(principalID string, fp Fingerprint) {
	entries := append(s.history[principalID], fp)
	cutoff := fp.Seen.Add(-historyWindow)
	kept := entries[:0]
	for _, h := range entries {
		if h.Seen.After(cutoff) {
			kept = append(kept, h)
		}
	}
	if len(kept) > historyCap {
		kept = kept[len(kept)-historyCap:]
	}
	s.history[principalID] = kept
}
