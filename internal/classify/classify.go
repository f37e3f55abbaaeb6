// Package classify decides whether a message violates chat policy. It runs
// an ordered set of independent detectors over the text (phone numbers,
// contextual phone mentions, invite and shortener links, banned keywords,
// disallowed URLs) and reports the first one that fires.
//
// The trade-off deliberately favors recall: a false positive costs at most a
// deleted message, a false negative lets spam through. Classification is a
// total function over arbitrary text and never errors.
package classify

import (
	"strings"

	"github.com/qloooooop1/guardian/internal/normalize"
	"github.com/qloooooop1/guardian/internal/policy"
)

// Kind names the detector that fired, in priority order.
type Kind string

const (
	KindPhone           Kind = "phone"
	KindContextualPhone Kind = "contextual_phone"
	KindInviteLink      Kind = "invite_link"
	KindShortLink       Kind = "short_link"
	KindBannedKeyword   Kind = "banned_keyword"
	KindDisallowedURL   Kind = "disallowed_url"
	KindPhoneAndLink    Kind = "phone_and_link"
)

// Verdict is the classification outcome for one message.
type Verdict struct {
	Violation bool
	Kind      Kind
	Matched   string // the offending fragment, for audit and notices
}

// Config holds the tunable knobs of the phone heuristic. Phone thresholds
// shift between deployments, so digit-run bounds and the prefix set are
// configuration, not contract.
type Config struct {
	MinPhoneDigits     int      // shortest digit run treated as a phone number
	MaxPhoneDigits     int      // longest digit run the phone pattern consumes
	PhonePrefixes      []string // recognized country/operator prefixes
	RequirePhonePrefix bool     // when false, a bare digit run alone is a phone hit
	ContextualTerms    []string // phone-indicating words and glyphs
	OwnLinkUsernames   []string // t.me/<username> paths that are not invites (the chat's own links)
}

// DefaultConfig returns the production heuristic: 8–12 digit runs behind a
// recognized country prefix, and Arabic plus English contact vocabulary for
// the contextual detector. Bare digit runs without a prefix only count when
// a contact keyword or a link accompanies them.
func DefaultConfig() Config {
	return Config{
		MinPhoneDigits:     8,
		MaxPhoneDigits:     12,
		PhonePrefixes:      []string{"+966", "00966", "966"},
		RequirePhonePrefix: true,
		ContextualTerms: []string{
			"اتصل", "رقمي", "واتس", "هاتف", "موبايل", "واتساب",
			"mobile", "phone", "call", "contact", "whatsapp",
			"📞", "☎",
		},
	}
}

// Classifier evaluates messages against its compiled detector set. Safe for
// concurrent use; all state is immutable after construction.
type Classifier struct {
	cfg      Config
	patterns patterns
}

// New compiles a Classifier from the given config.
func New(cfg Config) *Classifier {
	if cfg.MinPhoneDigits <= 0 {
		cfg.MinPhoneDigits = 8
	}
	if cfg.MaxPhoneDigits < cfg.MinPhoneDigits {
		cfg.MaxPhoneDigits = cfg.MinPhoneDigits + 4
	}
	return &Classifier{cfg: cfg, patterns: compilePatterns(cfg)}
}

// detector is one entry in the ordered check table. It receives the raw and
// digit-normalized text and returns the matched fragment when it fires.
type detector struct {
	kind  Kind
	match func(c *Classifier, raw, normalized string, pol *policy.ChatPolicy) (string, bool)
}

// detectors run in priority order; the first hit decides the verdict kind.
var detectors = []detector{
	{KindPhone, (*Classifier).matchPhone},
	{KindContextualPhone, (*Classifier).matchContextualPhone},
	{KindInviteLink, (*Classifier).matchInviteLink},
	{KindShortLink, (*Classifier).matchShortLink},
	{KindBannedKeyword, (*Classifier).matchBannedTerm},
	{KindDisallowedURL, (*Classifier).matchDisallowedURL},
	{KindPhoneAndLink, (*Classifier).matchPhoneAndLink},
}

// Classify runs every detector in order and returns the verdict of the first
// one that fires. Empty or whitespace-only text is never a violation.
func (c *Classifier) Classify(text string, pol *policy.ChatPolicy) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{}
	}

	normalized := normalize.Digits(text)
	for _, d := range detectors {
		if matched, ok := d.match(c, text, normalized, pol); ok {
			return Verdict{Violation: true, Kind: d.kind, Matched: matched}
		}
	}
	return Verdict{}
}

func (c *Classifier) matchPhone(_, normalized string, _ *policy.ChatPolicy) (string, bool) {
	m := c.patterns.phone.FindString(normalized)
	return strings.TrimSpace(m), m != ""
}

func (c *Classifier) matchContextualPhone(_, normalized string, _ *policy.ChatPolicy) (string, bool) {
	m := c.patterns.phoneContext.FindString(normalized)
	return strings.TrimSpace(m), m != ""
}

func (c *Classifier) matchInviteLink(raw, _ string, _ *policy.ChatPolicy) (string, bool) {
	if m := c.patterns.whatsappInvite.FindString(raw); m != "" {
		return m, true
	}
	if m := c.patterns.tiktok.FindString(raw); m != "" {
		return m, true
	}
	// t.me links need a code check on top of the pattern: the chat's own
	// public link is not an invite. RE2 has no lookahead, so the exclusion
	// lives here instead of in the pattern.
	for _, m := range c.patterns.telegramLink.FindAllStringSubmatch(raw, -1) {
		if len(m) < 2 {
			continue
		}
		if c.isOwnUsername(m[1]) {
			continue
		}
		return m[0], true
	}
	return "", false
}

func (c *Classifier) isOwnUsername(path string) bool {
	path = strings.ToLower(strings.TrimSuffix(path, "/"))
	for _, own := range c.cfg.OwnLinkUsernames {
		if path == strings.ToLower(own) {
			return true
		}
	}
	return false
}

func (c *Classifier) matchShortLink(raw, _ string, _ *policy.ChatPolicy) (string, bool) {
	m := c.patterns.shortLink.FindString(raw)
	return m, m != ""
}

// matchBannedTerm checks the chat's banned keywords and link fragments as
// case-insensitive substrings of the whole message, which also covers every
// URL the message contains.
func (c *Classifier) matchBannedTerm(raw, _ string, pol *policy.ChatPolicy) (string, bool) {
	lower := strings.ToLower(raw)
	for _, kw := range pol.BannedKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	for _, frag := range pol.BannedLinkFragments {
		if frag != "" && strings.Contains(lower, strings.ToLower(frag)) {
			return frag, true
		}
	}
	return "", false
}

// matchDisallowedURL flags any URL-like token whose cleaned form contains no
// allow-listed domain.
func (c *Classifier) matchDisallowedURL(raw, _ string, pol *policy.ChatPolicy) (string, bool) {
	for _, token := range c.patterns.urlToken.FindAllString(raw, -1) {
		clean := strings.ToLower(strings.ReplaceAll(token, " ", ""))
		allowed := false
		for _, domain := range pol.AllowedDomains {
			if domain != "" && strings.Contains(clean, strings.ToLower(domain)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return token, true
		}
	}
	return "", false
}

// matchPhoneAndLink fires when a phone-looking digit run and a URL-like
// token coexist in one message. The combination is the highest-confidence
// contact-spam signal, so it uses the loose 5–15 digit heuristic and counts
// even when each half was individually below threshold (a short number next
// to an allow-listed link still reads as contact spam).
func (c *Classifier) matchPhoneAndLink(raw, normalized string, _ *policy.ChatPolicy) (string, bool) {
	phone := c.patterns.loosePhone.FindString(normalized)
	if phone == "" {
		return "", false
	}
	if link := c.patterns.urlToken.FindString(raw); link != "" {
		return strings.TrimSpace(phone) + " + " + link, true
	}
	return "", false
}
