// Package engine wires classification, policy and violation history into
// enforcement. HandleMessage is the single entry point: every inbound group
// message passes through the exemption gate, the quiet-hours gate, the
// classifier and the escalation ladder, and comes out as exactly one action.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qloooooop1/guardian/internal/audit"
	"github.com/qloooooop1/guardian/internal/classify"
	"github.com/qloooooop1/guardian/internal/event"
	"github.com/qloooooop1/guardian/internal/metrics"
	"github.com/qloooooop1/guardian/internal/notify"
	"github.com/qloooooop1/guardian/internal/policy"
	"github.com/qloooooop1/guardian/internal/violation"
)

// DefaultCallTimeout bounds every chat-platform API call the engine issues.
// A call past the bound is treated as failed and is not retried.
const DefaultCallTimeout = 10 * time.Second

// ChatAPI is the moderation-action collaborator: the subset of the chat
// platform the engine drives. Implemented by internal/telegram and faked in
// tests.
type ChatAPI interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	MuteUser(ctx context.Context, chatID, userID int64, until time.Time) error
	BanUser(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	IsUserAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	IsUserBanned(ctx context.Context, chatID, userID int64) (bool, error)
}

// AuditSink receives one entry per enforcement action. Implemented by
// audit.Store; nil-able via a no-op.
type AuditSink interface {
	Insert(ctx context.Context, e *audit.Entry) error
}

type nopAudit struct{}

func (nopAudit) Insert(context.Context, *audit.Entry) error { return nil }

// Engine is the moderation pipeline for all chats.
type Engine struct {
	api         ChatAPI
	policies    *policy.Store
	tracker     *violation.Tracker
	classifier  *classify.Classifier
	notifier    *notify.Manager
	sink        AuditSink
	callTimeout time.Duration
	now         func() time.Time
}

// New creates an Engine. sink may be nil when no enforcement log is
// configured.
func New(api ChatAPI, policies *policy.Store, tracker *violation.Tracker, classifier *classify.Classifier, notifier *notify.Manager, sink AuditSink) *Engine {
	if sink == nil {
		sink = nopAudit{}
	}
	return &Engine{
		api:         api,
		policies:    policies,
		tracker:     tracker,
		classifier:  classifier,
		notifier:    notifier,
		sink:        sink,
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
	}
}

// HandleMessage screens one inbound message and enforces the verdict. It
// always completes and returns the action taken; collaborator failures are
// logged and absorbed — a flaky platform API never bubbles an error to the
// transport, and the violation still counts even when enforcement fails.
func (e *Engine) HandleMessage(ctx context.Context, msg *event.InboundMessage) Action {
	pol := e.policies.Get(msg.ChatID)

	// Exemption gate: owners, admins and whitelisted users short-circuit
	// before classification so admin links never pollute the tracker.
	if e.isExempt(ctx, msg, pol) {
		metrics.MessagesTotal.WithLabelValues("exempt").Inc()
		return Action{Kind: ActionNone}
	}

	// Quiet-hours gate: a separate enforcement path. The message is removed
	// outright, the classifier never runs and the ladder is untouched.
	if pol.QuietHours != nil && pol.QuietHours.Contains(e.now()) {
		e.deleteMessage(ctx, msg)
		metrics.MessagesTotal.WithLabelValues("quiet_deleted").Inc()
		return Action{Kind: ActionDelete}
	}

	verdict := e.classifier.Classify(msg.Text, pol)
	if !verdict.Violation {
		metrics.MessagesTotal.WithLabelValues("clean").Inc()
		return Action{Kind: ActionNone}
	}
	metrics.MessagesTotal.WithLabelValues("violation").Inc()
	metrics.ViolationsTotal.WithLabelValues(string(verdict.Kind)).Inc()

	violations := e.tracker.RecordViolation(msg.ChatID, msg.UserID, e.now(), pol.ResetFor())
	warnings := 0
	if rec, ok := e.tracker.Get(msg.ChatID, msg.UserID); ok {
		warnings = rec.WarningCount
	}

	action := Decide(pol, violations, warnings)
	switch action.Kind {
	case ActionWarn:
		warnings = e.tracker.RecordWarning(msg.ChatID, msg.UserID)
	case ActionBan:
		// Ban is terminal for escalation purposes: the record clears now,
		// so a user unbanned and re-added later starts the ladder fresh.
		// This holds even if the ban call below fails — the violation
		// happened regardless of enforcement success.
		e.tracker.Reset(msg.ChatID, msg.UserID)
	}

	log.Printf("[engine] event=%s chat=%d user=%d kind=%s matched=%q violations=%d action=%s",
		msg.EventID, msg.ChatID, msg.UserID, verdict.Kind, verdict.Matched, violations, action.Kind)

	e.enforce(ctx, msg, verdict, action, warnings)
	metrics.ActionsTotal.WithLabelValues(string(action.Kind)).Inc()

	e.record(ctx, msg, verdict, action)
	return action
}

// isExempt applies the pre-classification exemption check. The transport
// flag is trusted when set; otherwise the platform is probed, failing
// closed (not exempt) so an API outage cannot disable moderation.
func (e *Engine) isExempt(ctx context.Context, msg *event.InboundMessage, pol *policy.ChatPolicy) bool {
	if msg.UserIsAdmin || pol.IsExempt(msg.UserID) {
		return true
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	admin, err := e.api.IsUserAdmin(callCtx, msg.ChatID, msg.UserID)
	if err != nil {
		log.Printf("[engine] admin probe chat=%d user=%d: %v", msg.ChatID, msg.UserID, err)
		metrics.CollaboratorErrors.WithLabelValues("is_admin").Inc()
		return false
	}
	return admin
}

// enforce issues the platform calls for an action. Every non-None action
// deletes the triggering message first; mute/ban follow. Failures are
// logged, counted and otherwise ignored — if enforcement fails the message
// is still deleted when possible, and if deletion also fails nothing else
// happens.
func (e *Engine) enforce(ctx context.Context, msg *event.InboundMessage, verdict classify.Verdict, action Action, warnings int) {
	e.deleteMessage(ctx, msg)

	switch action.Kind {
	case ActionMute:
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		if err := e.api.MuteUser(callCtx, msg.ChatID, msg.UserID, e.now().Add(action.MuteDuration)); err != nil {
			log.Printf("[engine] mute chat=%d user=%d: %v", msg.ChatID, msg.UserID, err)
			metrics.CollaboratorErrors.WithLabelValues("mute").Inc()
		}
		cancel()

	case ActionBan:
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		banned, err := e.api.IsUserBanned(callCtx, msg.ChatID, msg.UserID)
		cancel()
		if err != nil {
			log.Printf("[engine] ban-status probe chat=%d user=%d: %v", msg.ChatID, msg.UserID, err)
			metrics.CollaboratorErrors.WithLabelValues("is_banned").Inc()
			banned = false
		}
		if !banned {
			callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
			if err := e.api.BanUser(callCtx, msg.ChatID, msg.UserID); err != nil {
				log.Printf("[engine] ban chat=%d user=%d: %v", msg.ChatID, msg.UserID, err)
				metrics.CollaboratorErrors.WithLabelValues("ban").Inc()
			}
			cancel()
		}
	}

	e.notice(ctx, msg, verdict, action, warnings)
}

func (e *Engine) deleteMessage(ctx context.Context, msg *event.InboundMessage) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	if err := e.api.DeleteMessage(callCtx, msg.ChatID, msg.MessageID); err != nil {
		log.Printf("[engine] delete chat=%d msg=%d: %v", msg.ChatID, msg.MessageID, err)
		metrics.CollaboratorErrors.WithLabelValues("delete").Inc()
	}
}

// notice posts the enforcement notice with the chat's notification TTL.
func (e *Engine) notice(ctx context.Context, msg *event.InboundMessage, verdict classify.Verdict, action Action, warnings int) {
	pol := e.policies.Get(msg.ChatID)
	ttl, expires := pol.NotificationTTLFor()

	text := noticeText(msg.UserID, verdict, action, warnings)
	if text == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	if _, err := e.notifier.Post(callCtx, msg.ChatID, text, ttl, expires); err != nil {
		log.Printf("[engine] notice chat=%d: %v", msg.ChatID, err)
		metrics.CollaboratorErrors.WithLabelValues("send").Inc()
	}
}

func noticeText(userID int64, verdict classify.Verdict, action Action, warnings int) string {
	mention := fmt.Sprintf("<a href=\"tg://user?id=%d\">member</a>", userID)
	switch action.Kind {
	case ActionDelete:
		return fmt.Sprintf("🗑️ Removed a message from %s\nReason: %s", mention, reasonText(verdict.Kind))
	case ActionWarn:
		return fmt.Sprintf("⚠️ Warning %d/%d for %s\nReason: %s\nFurther violations escalate.",
			warnings, policy.WarnThreshold, mention, reasonText(verdict.Kind))
	case ActionMute:
		return fmt.Sprintf("🔇 Muted %s for %s\nReason: %s",
			mention, action.MuteDuration, reasonText(verdict.Kind))
	case ActionBan:
		return fmt.Sprintf("🚫 Banned %s permanently\nReason: %s\n🛡️ This group is protected.",
			mention, reasonText(verdict.Kind))
	}
	return ""
}

func reasonText(kind classify.Kind) string {
	switch kind {
	case classify.KindPhone, classify.KindContextualPhone:
		return "sharing phone numbers"
	case classify.KindInviteLink:
		return "posting invite links"
	case classify.KindShortLink:
		return "posting shortened links"
	case classify.KindBannedKeyword:
		return "banned keyword"
	case classify.KindDisallowedURL:
		return "posting disallowed links"
	case classify.KindPhoneAndLink:
		return "contact-info spam"
	}
	return "policy violation"
}

// record writes the enforcement-log row. Best-effort: the log is for
// moderator review, not correctness.
func (e *Engine) record(ctx context.Context, msg *event.InboundMessage, verdict classify.Verdict, action Action) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	err := e.sink.Insert(callCtx, &audit.Entry{
		EventID: msg.EventID,
		ChatID:  msg.ChatID,
		UserID:  msg.UserID,
		Kind:    string(verdict.Kind),
		Matched: verdict.Matched,
		Action:  string(action.Kind),
	})
	if err != nil {
		log.Printf("[engine] audit chat=%d user=%d: %v", msg.ChatID, msg.UserID, err)
	}
}
