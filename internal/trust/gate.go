package trust

import (
	"regexp"
	"time"

	"github.com/inkraft/sentinel/internal/models"
)

// Feature is a gated capability
type Feature string

// Gated features
const (
	FeatureLinks            Feature = "links"
	FeatureCodeBlocks       Feature = "code_blocks"
	FeatureUnlimitedReplies Feature = "unlimited_replies"
	FeatureSkipModeration   Feature = "skip_moderation"
	FeatureEditHistory      Feature = "edit_history"
	FeatureRichFormatting   Feature = "rich_formatting"
)

// Trust thresholds per capability tier
const (
	thresholdElevated = 1.5
	thresholdStandard = 1.0
	thresholdBasic    = 0.5

	// unlimited_replies additionally requires three months of account age
	repliesMinAgeDays = 90
)

// Placeholders substituted into sanitized text
const (
	linkPlaceholder = "[link removed]"
	codePlaceholder = "[code removed]"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s)<>"']+`)
	fencedCodeRe   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`[^`\n]+`")
)

// Features returns the capability set granted to an account. Verified
// accounts bypass every gate.
func Features(account *models.Account, now time.Time) map[Feature]bool {
	granted := make(map[Feature]bool)

	if account.Verified {
		for _, f := range []Feature{
			FeatureLinks, FeatureCodeBlocks, FeatureUnlimitedReplies,
			FeatureSkipModeration, FeatureEditHistory, FeatureRichFormatting,
		} {
			granted[f] = true
		}
		return granted
	}

	score := account.TrustScore

	if score >= thresholdElevated {
		granted[FeatureSkipModeration] = true
		if account.AgeDays(now) >= repliesMinAgeDays {
			granted[FeatureUnlimitedReplies] = true
		}
	}
	if score >= thresholdStandard {
		granted[FeatureLinks] = true
		granted[FeatureCodeBlocks] = true
		granted[FeatureRichFormatting] = true
	}
	if score >= thresholdBasic {
		granted[FeatureEditHistory] = true
	}

	return granted
}

// ModerationStatus returns the moderation status for new comments by
// the account: approved when the account may skip moderation, pending
// otherwise.
func ModerationStatus(account *models.Account, now time.Time) string {
	if Features(account, now)[FeatureSkipModeration] {
		return models.ModerationApproved
	}
	return models.ModerationPending
}

// Sanitize strips denied markup from text. Markdown links collapse to
// their label, bare URLs and code spans become placeholders. Text
// outside denied markup is left untouched.
func Sanitize(text string, account *models.Account, now time.Time) string {
	granted := Features(account, now)

	if !granted[FeatureCodeBlocks] {
		text = fencedCodeRe.ReplaceAllString(text, codePlaceholder)
		text = inlineCodeRe.ReplaceAllString(text, codePlaceholder)
	}

	if !granted[FeatureLinks] {
		text = markdownLinkRe.ReplaceAllString(text, "$1")
		text = bareURLRe.ReplaceAllString(text, linkPlaceholder)
	}

	return text
}
