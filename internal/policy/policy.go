// Package policy holds per-chat moderation configuration: the enforcement
// mode, banned keyword and link sets, the domain allow list, quiet hours and
// user exemptions. Policies are created with fixed defaults the first time a
// chat is seen and mutated only through explicit admin setters.
package policy

import (
	"time"

	"github.com/qloooooop1/guardian/internal/quiet"
)

// Mode selects the enforcement ladder applied to repeat violators.
type Mode string

const (
	ModeDeleteOnly   Mode = "delete_only"    // delete the message, nothing else
	ModeMute         Mode = "mute"           // mute on every violation
	ModeBan          Mode = "ban"            // ban on first violation
	ModeMuteThenBan  Mode = "mute_then_ban"  // mute first, ban on repeat
	ModeWarnThenMute Mode = "warn_then_mute" // warn up to the threshold, then mute
	ModeWarnThenBan  Mode = "warn_then_ban"  // warn up to the threshold, then ban
)

// ValidModes is the closed set of accepted enforcement modes.
var ValidModes = map[Mode]bool{
	ModeDeleteOnly:   true,
	ModeMute:         true,
	ModeBan:          true,
	ModeMuteThenBan:  true,
	ModeWarnThenMute: true,
	ModeWarnThenBan:  true,
}

const (
	// DefaultMuteDuration is 24 hours, in seconds.
	DefaultMuteDuration int64 = 86400

	// DefaultNotificationTTL is how long enforcement notices stay in the
	// chat before self-deleting, in seconds.
	DefaultNotificationTTL int64 = 120

	// TTLPersist is the NotificationTTL sentinel meaning notices are never
	// deleted.
	TTLPersist int64 = -1

	// DefaultResetWindow is the violation-counter reset window: a user with
	// no violations for this long starts the ladder over. Seconds (7 days).
	DefaultResetWindow int64 = 7 * 24 * 3600

	// WarnThreshold is the number of warnings after which the warn modes
	// escalate to their terminal action.
	WarnThreshold = 3
)

// DefaultAllowedDomains are the link destinations members may always share.
var DefaultAllowedDomains = []string{
	"youtube.com", "youtu.be",
	"instagram.com", "instagr.am",
	"x.com", "twitter.com",
}

// ChatPolicy is the full moderation configuration of one chat. All fields
// are JSON-serializable so the persister can store the policy as a blob.
type ChatPolicy struct {
	Mode                Mode          `json:"mode"`
	MuteDuration        int64         `json:"mute_duration"`         // seconds, >= 0
	BannedKeywords      []string      `json:"banned_keywords"`
	BannedLinkFragments []string      `json:"banned_link_fragments"`
	AllowedDomains      []string      `json:"allowed_domains"`
	QuietHours          *quiet.Window `json:"quiet_hours,omitempty"` // nil = disabled
	ExemptUserIDs       []int64       `json:"exempt_user_ids"`
	NotificationTTL     int64         `json:"notification_ttl"` // seconds, TTLPersist = never delete
	ResetWindow         int64         `json:"reset_window"`     // seconds
}

// Default returns a fresh policy with the fixed first-registration defaults:
// ban on first violation, 24h mutes, quiet hours disabled, empty keyword and
// fragment sets, the standard allow list.
func Default() *ChatPolicy {
	return &ChatPolicy{
		Mode:            ModeBan,
		MuteDuration:    DefaultMuteDuration,
		AllowedDomains:  append([]string(nil), DefaultAllowedDomains...),
		NotificationTTL: DefaultNotificationTTL,
		ResetWindow:     DefaultResetWindow,
	}
}

// Clone returns a deep copy so snapshot readers never observe a concurrent
// mutation.
func (p *ChatPolicy) Clone() *ChatPolicy {
	c := *p
	c.BannedKeywords = append([]string(nil), p.BannedKeywords...)
	c.BannedLinkFragments = append([]string(nil), p.BannedLinkFragments...)
	c.AllowedDomains = append([]string(nil), p.AllowedDomains...)
	c.ExemptUserIDs = append([]int64(nil), p.ExemptUserIDs...)
	if p.QuietHours != nil {
		w := *p.QuietHours
		c.QuietHours = &w
	}
	return &c
}

// IsExempt reports whether the user is on the chat's exemption list.
func (p *ChatPolicy) IsExempt(userID int64) bool {
	for _, id := range p.ExemptUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MuteFor returns the mute duration as a time.Duration.
func (p *ChatPolicy) MuteFor() time.Duration {
	return time.Duration(p.MuteDuration) * time.Second
}

// ResetFor returns the violation reset window as a time.Duration.
func (p *ChatPolicy) ResetFor() time.Duration {
	if p.ResetWindow <= 0 {
		return time.Duration(DefaultResetWindow) * time.Second
	}
	return time.Duration(p.ResetWindow) * time.Second
}

// NotificationTTLFor returns the notice lifetime, or 0 and false when
// notices persist.
func (p *ChatPolicy) NotificationTTLFor() (time.Duration, bool) {
	if p.NotificationTTL == TTLPersist {
		return 0, false
	}
	ttl := p.NotificationTTL
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return time.Duration(ttl) * time.Second, true
}

// normalize repairs a policy loaded from storage so invariants hold even
// when the stored blob predates a field or was hand-edited.
func (p *ChatPolicy) normalize() {
	if !ValidModes[p.Mode] {
		p.Mode = ModeBan
	}
	if p.MuteDuration < 0 {
		p.MuteDuration = DefaultMuteDuration
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = DefaultResetWindow
	}
	if p.NotificationTTL == 0 {
		p.NotificationTTL = DefaultNotificationTTL
	}
	if len(p.AllowedDomains) == 0 {
		p.AllowedDomains = append([]string(nil), DefaultAllowedDomains...)
	}
}
