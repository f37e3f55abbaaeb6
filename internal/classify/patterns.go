package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// sep matches the junk spammers interleave between digits to dodge naive
// matching: whitespace, punctuation, underscores, slashes, dots, dashes.
const sep = `[\s\W_*/.\-]`

// patterns holds the compiled detector regexps. Compiled once per
// Classifier and reused for every message, so they are safe and cheap under
// concurrency.
type patterns struct {
	phone          *regexp.Regexp // prefix + 8–12 digit run, separators interleaved
	phoneContext   *regexp.Regexp // contact keyword near a 5–15 digit run
	loosePhone     *regexp.Regexp // bare 5–15 digit run, for the phone+link combination
	whatsappInvite *regexp.Regexp
	telegramLink   *regexp.Regexp // captures the t.me path for the own-link exclusion
	tiktok         *regexp.Regexp
	shortLink      *regexp.Regexp
	urlToken       *regexp.Regexp // scheme-prefixed, www., or bare domain.tld
}

func compilePatterns(cfg Config) patterns {
	var p patterns

	run := fmt.Sprintf(`(?:\d%s*){%d,%d}`, sep, cfg.MinPhoneDigits, cfg.MaxPhoneDigits)
	prefix := prefixAlternation(cfg.PhonePrefixes)
	if cfg.RequirePhonePrefix && prefix != "" {
		p.phone = regexp.MustCompile(`(?i)` + prefix + sep + `*` + run)
	} else if prefix != "" {
		p.phone = regexp.MustCompile(`(?i)` + prefix + `?` + sep + `*` + run)
	} else {
		p.phone = regexp.MustCompile(`(?i)` + run)
	}

	looseRun := fmt.Sprintf(`(?:\+\d{1,4}%s*)?(?:\d%s?){5,15}`, sep, sep)
	p.loosePhone = regexp.MustCompile(looseRun)

	terms := make([]string, 0, len(cfg.ContextualTerms))
	for _, t := range cfg.ContextualTerms {
		if t != "" {
			terms = append(terms, regexp.QuoteMeta(t))
		}
	}
	if len(terms) == 0 {
		terms = []string{"phone"}
	}
	// The window after the keyword is a short non-greedy gap rather than a
	// separator class, so filler words ("call me 050...") don't break the
	// match.
	p.phoneContext = regexp.MustCompile(
		`(?i)(?:` + strings.Join(terms, "|") + `).{0,10}?` + looseRun)

	p.whatsappInvite = regexp.MustCompile(`(?i)(?:https?://)?(?:chat\.whatsapp\.com|wa\.me)/\S*|\+\w{8,}`)
	p.telegramLink = regexp.MustCompile(`(?i)(?:https?://)?t\.me/(\S+)`)
	p.tiktok = regexp.MustCompile(`(?i)(?:https?://)?(?:vm\.|www\.)?tiktok\.com/\S*`)
	p.shortLink = regexp.MustCompile(`(?i)(?:https?://)?(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co)/\S*`)

	// Bare domains need an alphabetic TLD so version strings and decimals
	// ("v2.0", "3.14") don't register as links.
	p.urlToken = regexp.MustCompile(`(?i)https?://\S+|www\.\S+|[\w\-]+(?:\.[\w\-]+)*\.[a-z]{2,}(?:/\S*)?`)

	return p
}

func prefixAlternation(prefixes []string) string {
	quoted := make([]string, 0, len(prefixes))
	for _, pre := range prefixes {
		if pre != "" {
			quoted = append(quoted, regexp.QuoteMeta(pre))
		}
	}
	if len(quoted) == 0 {
		return ""
	}
	return `(?:` + strings.Join(quoted, "|") + `)`
}
