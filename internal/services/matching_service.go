package services

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
)

// Subject phrases that mark a generic application email even when the
// sender is not a known platform. These land in the "unknown" bucket.
var ApplicationSubjectPatterns = []string{
	"application received",
	"thank you for applying",
	"thanks for applying",
	"thank you for your application",
	"thank you for your interest",
	"application confirmation",
	"your application has been received",
	"application submitted",
	"job application received",
	"application status update",
	"your application to",
	"your application for",
	"interview invitation",
	"application update",
	"next steps",
}

// PlatformMatcher is the sender/subject allow-list in front of the extractor.
type PlatformMatcher struct {
	platforms []models.Platform
	phrases   []string
}

func NewPlatformMatcher() *PlatformMatcher {
	return &PlatformMatcher{platforms: models.Platforms, phrases: ApplicationSubjectPatterns}
}

// Classify decides whether a message is a candidate and which platform sent it.
// ok is false for messages that match neither a platform nor a generic phrase.
func (m *PlatformMatcher) Classify(rawSender, subject string) (platform models.Platform, ok bool) {
	// "Stripe via Greenhouse <no-reply@greenhouse.io>" -> name, address
	senderName := ""
	senderAddr := ""
	if parsed, err := mail.ParseAddress(rawSender); err == nil {
		senderName = strings.ToLower(parsed.Name)
		senderAddr = strings.ToLower(parsed.Address)
	} else {
		senderAddr = strings.ToLower(rawSender)
	}
	domain := ""
	if at := strings.LastIndex(senderAddr, "@"); at >= 0 {
		domain = senderAddr[at+1:]
	}
	subjectLower := strings.ToLower(subject)

	for _, p := range m.platforms {
		name := string(p)

		// Sender domain: "myworkday.com", "greenhouse-mail.io", "us.adp.com"
		if domain != "" && domainMentions(domain, name) {
			return p, true
		}
		// Sender display name: "Acme via Lever"
		if senderName != "" && containsWord(senderName, name) {
			return p, true
		}
		// Subject: "Your Workday application"
		if containsWord(subjectLower, name) {
			return p, true
		}
	}

	for _, phrase := range m.phrases {
		if strings.Contains(subjectLower, phrase) {
			return models.PlatformUnknown, true
		}
	}
	return "", false
}

// Query builds the provider-side search expression for the last windowDays.
func (m *PlatformMatcher) Query(windowDays int) string {
	parts := make([]string, 0, len(m.platforms)+len(m.phrases))
	for _, p := range m.platforms {
		parts = append(parts, "from:"+string(p))
	}
	for _, phrase := range m.phrases {
		parts = append(parts, `subject:"`+phrase+`"`)
	}
	return "(" + strings.Join(parts, " OR ") + ") newer_than:" + strconv.Itoa(windowDays) + "d"
}

// domainMentions matches a platform against the labels of a domain, so
// "adp" hits "us.adp.com" but not "roadpro.com", "lever" not "clever.com".
func domainMentions(domain, name string) bool {
	for _, label := range strings.FieldsFunc(domain, func(r rune) bool { return r == '.' || r == '-' }) {
		if label == name {
			return true
		}
		// "myworkday", "myworkdayjobs", "greenhouseio"
		if len(name) >= 7 && strings.Contains(label, name) {
			return true
		}
	}
	return false
}

// containsWord is a substring match bounded by non-letters on both sides.
func containsWord(haystack, word string) bool {
	for i := 0; ; {
		j := strings.Index(haystack[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isLetter(haystack[start-1])) && (end == len(haystack) || !isLetter(haystack[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
