// Package scoring computes an instant message priority from per-user learned
// state. Score is a pure function of its inputs, so two calls with the same
// message, preferences and contact importance always agree.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/inboxtriage/internal/store"
)

const (
	baseScore = 50

	contactSlope    = 6  // (importance - 5) * 6, bounded ±30 by the [0,10] domain
	platformSlope   = 20 // (weight - 0.5) * 20, bounded ±10
	keywordSlope    = 15 // (weight - 0.5) * 15 per matched keyword
	keywordCap      = 20 // keyword contribution clamped to ±20
	urgencyCap      = 25
	senderSlope     = 10 // (weight - 0.5) * 10, bounded ±5
	recencyFresh    = 15 // last interaction under 2 hours ago
	recencyRecent   = 8  // last interaction under 24 hours ago
	neutralContact  = 5.0
	neutralWeight   = 0.5
	minPriority     = 0
	maxPriority     = 100
)

// urgencyTerms maps urgency markers to their score contribution. The sum of
// matched terms is capped at urgencyCap.
var urgencyTerms = []struct {
	term  string
	score int
}{
	{"urgent", 15},
	{"asap", 15},
	{"immediately", 12},
	{"critical", 12},
	{"emergency", 10},
	{"deadline", 10},
	{"time-sensitive", 10},
	{"important", 8},
	{"priority", 8},
	{"needs attention", 8},
}

// Result is a scored priority with a confidence estimate and one explanation
// string per factor that fired.
type Result struct {
	Priority   int      `json:"priority"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors"`
}

// DefaultResult is returned by callers when scoring inputs cannot be fetched.
// Ingestion never fails because scoring state is unavailable.
func DefaultResult() Result {
	return Result{
		Priority:   baseScore,
		Confidence: 0.3,
		Factors:    []string{"default priority (error during scoring)"},
	}
}

// Score computes the priority of msg using the clock; see ScoreAt.
// prefs and ci may be nil when no learned state exists yet.
func Score(msg *store.Message, prefs *store.UserPreference, ci *store.ContactImportance) Result {
	return ScoreAt(time.Now(), msg, prefs, ci)
}

// ScoreAt is Score with an explicit "now" so recency is testable.
func ScoreAt(now time.Time, msg *store.Message, prefs *store.UserPreference, ci *store.ContactImportance) Result {
	score := float64(baseScore)
	confidence := 0.5
	var factors []string

	text := strings.ToLower(msg.Subject + " " + msg.Body)

	// Contact importance, ±30.
	if ci != nil {
		delta := (ci.ImportanceScore - neutralContact) * contactSlope
		score += delta
		if delta != 0 {
			factors = append(factors, fmt.Sprintf("contact importance %.1f (%+.0f)", ci.ImportanceScore, delta))
		}
		if ci.ImportanceScore > 7 {
			confidence += 0.2
		} else if ci.ImportanceScore < 3 {
			confidence += 0.1
		}
	}

	// Platform preference, ±10.
	if prefs != nil {
		if w, ok := prefs.PlatformWeights[msg.Platform]; ok {
			delta := (w - neutralWeight) * platformSlope
			score += delta
			if delta != 0 {
				factors = append(factors, fmt.Sprintf("platform %s weight %.2f (%+.0f)", msg.Platform, w, delta))
			}
			if w > 0.7 {
				confidence += 0.1
			}
		}
	}

	// Learned keywords, ±20 total. Summed in key order so float rounding
	// cannot make two identical calls disagree.
	if prefs != nil && len(prefs.KeywordWeights) > 0 {
		keys := make([]string, 0, len(prefs.KeywordWeights))
		for kw := range prefs.KeywordWeights {
			keys = append(keys, kw)
		}
		sort.Strings(keys)
		var kwDelta float64
		matched := 0
		for _, kw := range keys {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				kwDelta += (prefs.KeywordWeights[kw] - neutralWeight) * keywordSlope
				matched++
			}
		}
		if kwDelta > keywordCap {
			kwDelta = keywordCap
		} else if kwDelta < -keywordCap {
			kwDelta = -keywordCap
		}
		if matched > 0 {
			score += kwDelta
			factors = append(factors, fmt.Sprintf("%d learned keywords (%+.0f)", matched, kwDelta))
			confidence += 0.15
		}
	}

	// Urgency markers, up to +25.
	urgency := 0
	for _, ut := range urgencyTerms {
		if strings.Contains(text, ut.term) {
			urgency += ut.score
		}
	}
	if urgency > 0 {
		if urgency > urgencyCap {
			urgency = urgencyCap
		}
		score += float64(urgency)
		factors = append(factors, fmt.Sprintf("urgency markers (+%d)", urgency))
		confidence += 0.2
	}

	// Recency boost for an active conversation with the sender, keyed to the
	// last tracked interaction, not the message timestamp.
	if ci != nil && !ci.LastInteraction.IsZero() {
		age := now.Sub(ci.LastInteraction)
		switch {
		case age < 2*time.Hour:
			score += recencyFresh
			factors = append(factors, fmt.Sprintf("active conversation (+%d)", recencyFresh))
			confidence += 0.15
		case age < 24*time.Hour:
			score += recencyRecent
			factors = append(factors, fmt.Sprintf("recent conversation (+%d)", recencyRecent))
			confidence += 0.1
		}
	}

	// Learned sender bias, ±5. Pattern discovery keys the sender map by
	// contact id; address keys still match when no contact is linked.
	if prefs != nil {
		var (
			w  float64
			ok bool
		)
		if msg.FromContactID != "" {
			w, ok = prefs.SenderWeights[msg.FromContactID]
		}
		if !ok && msg.From != "" {
			w, ok = prefs.SenderWeights[strings.ToLower(msg.From)]
		}
		if ok {
			delta := (w - neutralWeight) * senderSlope
			score += delta
			if delta != 0 {
				factors = append(factors, fmt.Sprintf("sender bias (%+.1f)", delta))
			}
			confidence += 0.05
		}
	}

	if score < minPriority {
		score = minPriority
	} else if score > maxPriority {
		score = maxPriority
	}
	if confidence > 1 {
		confidence = 1
	} else if confidence < 0 {
		confidence = 0
	}
	if len(factors) == 0 {
		factors = append(factors, "no signals, base priority")
	}

	return Result{
		Priority:   int(score + 0.5),
		Confidence: confidence,
		Factors:    factors,
	}
}
