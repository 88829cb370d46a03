package services

import (
	"strings"
	"testing"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPlatformMatcher_Classify(t *testing.T) {
	m := NewPlatformMatcher()

	tests := []struct {
		name     string
		sender   string
		subject  string
		platform models.Platform
		ok       bool
	}{
		{"workday domain", "Acme Careers <acme@myworkday.com>", "Thank you for applying", models.PlatformWorkday, true},
		{"greenhouse display name", "Stripe via Greenhouse <no-reply@stripe.com>", "Your application", models.PlatformGreenhouse, true},
		{"lever domain", "jobs@hire.lever.co", "Hello", models.PlatformLever, true},
		{"adp label", "Payroll <noreply@us.adp.com>", "Application update", models.PlatformADP, true},
		{"adp inside word is not adp", "Road Pro <hi@roadpro.com>", "Weekly deals", "", false},
		{"lever inside word is not lever", "Clever Inc <news@clever.com>", "Clever tips", "", false},
		{"workday in subject", "HR <hr@acme.com>", "Your Workday candidate account", models.PlatformWorkday, true},
		{"generic phrase", "Talent <talent@acme.com>", "Application Received - Backend Engineer", models.PlatformUnknown, true},
		{"newsletter", "Medium Daily Digest <noreply@medium.com>", "Top stories for you", "", false},
		{"unparseable sender", "not an address", "Thanks for applying!", models.PlatformUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := m.Classify(tt.sender, tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.platform, p)
		})
	}
}

func TestPlatformMatcher_Query(t *testing.T) {
	q := NewPlatformMatcher().Query(10)
	assert.True(t, strings.HasPrefix(q, "(from:workday OR "))
	assert.Contains(t, q, `subject:"thank you for applying"`)
	assert.True(t, strings.HasSuffix(q, ") newer_than:10d"))
}
