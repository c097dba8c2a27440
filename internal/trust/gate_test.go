package trust

import (
	"strings"
	"testing"
	"time"

	"github.com/inkraft/sentinel/internal/models"
)

var gateNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func accountWithTrust(score float64, ageDays int) *models.Account {
	return &models.Account{
		TrustScore: score,
		CreatedAt:  gateNow.AddDate(0, 0, -ageDays),
	}
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		name    string
		account *models.Account
		granted []Feature
		denied  []Feature
	}{
		{
			name:    "high trust old account gets everything",
			account: accountWithTrust(1.8, 120),
			granted: []Feature{FeatureLinks, FeatureCodeBlocks, FeatureRichFormatting, FeatureSkipModeration, FeatureUnlimitedReplies, FeatureEditHistory},
		},
		{
			name:    "high trust young account misses unlimited replies",
			account: accountWithTrust(1.8, 10),
			granted: []Feature{FeatureSkipModeration, FeatureLinks},
			denied:  []Feature{FeatureUnlimitedReplies},
		},
		{
			name:    "regular trust gets formatting only",
			account: accountWithTrust(1.0, 120),
			granted: []Feature{FeatureLinks, FeatureCodeBlocks, FeatureRichFormatting, FeatureEditHistory},
			denied:  []Feature{FeatureSkipModeration, FeatureUnlimitedReplies},
		},
		{
			name:    "minimum trust gets edit history only",
			account: accountWithTrust(0.5, 120),
			granted: []Feature{FeatureEditHistory},
			denied:  []Feature{FeatureLinks, FeatureCodeBlocks, FeatureRichFormatting, FeatureSkipModeration},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			granted := Features(tt.account, gateNow)
			for _, f := range tt.granted {
				if !granted[f] {
					t.Errorf("expected %s granted", f)
				}
			}
			for _, f := range tt.denied {
				if granted[f] {
					t.Errorf("expected %s denied", f)
				}
			}
		})
	}
}

func TestFeaturesVerifiedBypass(t *testing.T) {
	account := accountWithTrust(0.5, 1)
	account.Verified = true

	granted := Features(account, gateNow)
	for _, f := range []Feature{
		FeatureLinks, FeatureCodeBlocks, FeatureUnlimitedReplies,
		FeatureSkipModeration, FeatureEditHistory, FeatureRichFormatting,
	} {
		if !granted[f] {
			t.Errorf("verified account should be granted %s", f)
		}
	}
}

func TestModerationStatus(t *testing.T) {
	if got := ModerationStatus(accountWithTrust(1.8, 120), gateNow); got != models.ModerationApproved {
		t.Errorf("ModerationStatus() high trust = %v, want approved", got)
	}
	if got := ModerationStatus(accountWithTrust(1.0, 120), gateNow); got != models.ModerationPending {
		t.Errorf("ModerationStatus() regular trust = %v, want pending", got)
	}
}

func TestSanitize(t *testing.T) {
	lowTrust := accountWithTrust(0.5, 10)
	highTrust := accountWithTrust(1.8, 120)

	tests := []struct {
		name     string
		account  *models.Account
		input    string
		expected string
	}{
		{
			name:     "markdown link collapses to label",
			account:  lowTrust,
			input:    "see [the docs](https://example.com/docs) here",
			expected: "see the docs here",
		},
		{
			name:     "bare url replaced",
			account:  lowTrust,
			input:    "go to https://spam.example now",
			expected: "go to [link removed] now",
		},
		{
			name:     "fenced code replaced",
			account:  lowTrust,
			input:    "before\n```\nrm -rf /\n```\nafter",
			expected: "before\n[code removed]\nafter",
		},
		{
			name:     "inline code replaced",
			account:  lowTrust,
			input:    "run `sudo make install` now",
			expected: "run [code removed] now",
		},
		{
			name:     "plain text untouched",
			account:  lowTrust,
			input:    "nothing suspicious here",
			expected: "nothing suspicious here",
		},
		{
			name:     "trusted account keeps everything",
			account:  highTrust,
			input:    "see [docs](https://example.com) and `code`",
			expected: "see [docs](https://example.com) and `code`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Sanitize(tt.input, tt.account, gateNow)
			if result != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestSanitizeNonDestructive(t *testing.T) {
	lowTrust := accountWithTrust(0.5, 10)
	input := "intro [label](https://x.example) middle `code` outro"
	result := Sanitize(input, lowTrust, gateNow)

	for _, fragment := range []string{"intro", "middle", "outro"} {
		if !strings.Contains(result, fragment) {
			t.Errorf("Sanitize() dropped surrounding text %q: %q", fragment, result)
		}
	}
}
