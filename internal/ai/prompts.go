package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxBodyChars = 2000

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatSamples(samples []MessageSample) string {
	var b strings.Builder
	for i, m := range samples {
		fmt.Fprintf(&b, "Message %d", i+1)
		if m.Sender != "" {
			fmt.Fprintf(&b, " (from %s", m.Sender)
			if m.Platform != "" {
				fmt.Fprintf(&b, " via %s", m.Platform)
			}
			b.WriteString(")")
		}
		b.WriteString(":\n")
		if m.Subject != "" {
			fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
		}
		fmt.Fprintf(&b, "%s\n\n", truncate(m.Body, maxBodyChars))
	}
	return b.String()
}

func todoPrompt(req TodoRequest) string {
	var b strings.Builder
	b.WriteString("Analyze this message and extract any action items or tasks the recipient needs to do.\n\n")
	if req.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", req.Sender)
	}
	if req.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	}
	fmt.Fprintf(&b, "Message:\n%s\n\n", truncate(req.Body, maxBodyChars))
	b.WriteString(`Respond with JSON only, no prose:
{"todos": [{"title": "short imperative task", "description": "context", "priority": 1-10, "due_date": "YYYY-MM-DD or empty", "confidence": 0.0-1.0}]}

Only include genuine action items directed at the recipient. Return {"todos": []} if there are none.`)
	return b.String()
}

func topicPrompt(req TopicRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "These are recent messages from %s. Identify the single dominant conversation topic.\n\n", req.ContactName)
	b.WriteString(formatSamples(req.Messages))
	b.WriteString(`Respond with JSON only:
{"name": "short lowercase topic name", "description": "one sentence", "category": "work|personal|finance|scheduling|other", "importance": 1-10, "keywords": ["..."], "sentiment": "positive|neutral|negative"}`)
	return b.String()
}

func goalPrompt(req GoalRequest) string {
	var b strings.Builder
	b.WriteString("Based on these recent messages, infer goals or objectives this user appears to be working toward.\n\n")
	b.WriteString(formatSamples(req.Messages))
	b.WriteString(`Respond with JSON only:
{"goals": [{"goal": "concise goal statement", "category": "work|personal|finance|health|other", "priority": 1-10, "confidence": 0.0-1.0, "keywords": ["..."], "evidence": "which messages suggest this"}]}

Only include goals with clear supporting evidence. Return {"goals": []} if nothing is evident.`)
	return b.String()
}

func patternPrompt(digest InteractionDigest) string {
	summary, _ := json.Marshal(digest)
	return fmt.Sprintf(`This is a summary of how a user interacted with their inbox over the last %d days:

%s

Infer their priority preferences. Respond with JSON only:
{"sender_weights": {"sender id": 0.0-1.0}, "keyword_weights": {"keyword": 0.0-1.0}, "platform_weights": {"platform": 0.0-1.0}, "patterns": ["one sentence per observed behavior pattern"]}

Weights above 0.5 mean more important than average, below 0.5 less. Only include entries supported by the summary.`,
		digest.WindowDays, summary)
}
