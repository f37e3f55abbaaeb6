package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qloooooop1/guardian/internal/classify"
	"github.com/qloooooop1/guardian/internal/event"
	"github.com/qloooooop1/guardian/internal/notify"
	"github.com/qloooooop1/guardian/internal/policy"
	"github.com/qloooooop1/guardian/internal/quiet"
	"github.com/qloooooop1/guardian/internal/violation"
)

// fakeAPI records every platform call the engine makes.
type fakeAPI struct {
	mu       sync.Mutex
	deleted  []int64 // message IDs
	muted    []int64 // user IDs
	banned   []int64 // user IDs
	sent     []string
	admins   map[int64]bool
	isBanned map[int64]bool

	deleteErr error
	banErr    error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{admins: map[int64]bool{}, isBanned: map[int64]bool{}}
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) MuteUser(_ context.Context, _, userID int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, userID)
	return nil
}

func (f *fakeAPI) BanUser(_ context.Context, _, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banErr != nil {
		return f.banErr
	}
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakeAPI) SendMessage(_ context.Context, _ int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return int64(len(f.sent)), nil
}

func (f *fakeAPI) IsUserAdmin(_ context.Context, _, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[userID], nil
}

func (f *fakeAPI) IsUserBanned(_ context.Context, _, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isBanned[userID], nil
}

type testEnv struct {
	api      *fakeAPI
	policies *policy.Store
	tracker  *violation.Tracker
	engine   *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := newFakeAPI()
	policies := policy.NewStore(nil)
	tracker := violation.NewTracker()
	classifier := classify.New(classify.DefaultConfig())
	notifier := notify.NewManager(api)
	t.Cleanup(notifier.Stop)

	eng := New(api, policies, tracker, classifier, notifier, nil)
	return &testEnv{api: api, policies: policies, tracker: tracker, engine: eng}
}

func msg(chatID, userID, messageID int64, text string) *event.InboundMessage {
	return &event.InboundMessage{
		EventID:   "ev-1",
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Text:      text,
		Ts:        time.Now().Unix(),
	}
}

// Default mode is Ban: contextual phone spam from a regular member gets the
// message deleted, the user banned, and a ban notice posted.
func TestHandleMessage_BanModeEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action := env.engine.HandleMessage(ctx, msg(1, 100, 555, "call me 0501234567"))
	if action.Kind != ActionBan {
		t.Fatalf("action = %s, want ban", action.Kind)
	}
	if len(env.api.deleted) != 1 || env.api.deleted[0] != 555 {
		t.Errorf("deleted = %v, want [555]", env.api.deleted)
	}
	if len(env.api.banned) != 1 || env.api.banned[0] != 100 {
		t.Errorf("banned = %v, want [100]", env.api.banned)
	}
	if len(env.api.sent) != 1 {
		t.Errorf("notices = %v, want one ban notice", env.api.sent)
	}
}

func TestHandleMessage_AllowedLinkNoAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action := env.engine.HandleMessage(ctx, msg(1, 100, 1, "check this out https://youtube.com/xyz"))
	if action.Kind != ActionNone {
		t.Fatalf("action = %s, want none", action.Kind)
	}
	if len(env.api.deleted) != 0 || len(env.api.banned) != 0 || len(env.api.sent) != 0 {
		t.Errorf("platform calls made for a clean message: %+v", env.api)
	}
}

func TestHandleMessage_ExemptShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Transport-flagged admin.
	m := msg(1, 100, 1, "+966501234567")
	m.UserIsAdmin = true
	if action := env.engine.HandleMessage(ctx, m); action.Kind != ActionNone {
		t.Errorf("admin action = %s, want none", action.Kind)
	}

	// Platform-probed admin.
	env.api.admins[200] = true
	if action := env.engine.HandleMessage(ctx, msg(1, 200, 2, "+966501234567")); action.Kind != ActionNone {
		t.Errorf("probed admin action = %s, want none", action.Kind)
	}

	// Explicitly exempted user.
	if err := env.policies.ExemptUser(ctx, 1, 300); err != nil {
		t.Fatalf("ExemptUser: %v", err)
	}
	if action := env.engine.HandleMessage(ctx, msg(1, 300, 3, "+966501234567")); action.Kind != ActionNone {
		t.Errorf("exempt action = %s, want none", action.Kind)
	}

	// None of the above may touch the tracker.
	for _, user := range []int64{100, 200, 300} {
		if _, ok := env.tracker.Get(1, user); ok {
			t.Errorf("tracker polluted for exempt user %d", user)
		}
	}
}

func TestHandleMessage_MuteThenBanLadder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.policies.SetMode(ctx, 1, policy.ModeMuteThenBan); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	if action := env.engine.HandleMessage(ctx, msg(1, 100, 1, "+966501234567")); action.Kind != ActionMute {
		t.Fatalf("violation #1 action = %s, want mute", action.Kind)
	}
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 2, "+966501234567")); action.Kind != ActionBan {
		t.Fatalf("violation #2 action = %s, want ban", action.Kind)
	}

	// The ban cleared the record: a re-added user starts fresh at Mute.
	if _, ok := env.tracker.Get(1, 100); ok {
		t.Fatal("tracker record survived the ban")
	}
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 3, "+966501234567")); action.Kind != ActionMute {
		t.Fatalf("violation #3 (fresh) action = %s, want mute", action.Kind)
	}
}

func TestHandleMessage_WarnThenBanLadder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.policies.SetMode(ctx, 1, policy.ModeWarnThenBan); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	for i := 1; i <= 2; i++ {
		if action := env.engine.HandleMessage(ctx, msg(1, 100, int64(i), "+966501234567")); action.Kind != ActionWarn {
			t.Fatalf("violation #%d action = %s, want warn", i, action.Kind)
		}
	}
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 3, "+966501234567")); action.Kind != ActionBan {
		t.Fatalf("violation #3 action = %s, want ban", action.Kind)
	}
}

func TestHandleMessage_WarnThenMuteLadder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.policies.SetMode(ctx, 1, policy.ModeWarnThenMute); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	for i := 1; i <= 2; i++ {
		action := env.engine.HandleMessage(ctx, msg(1, 100, int64(i), "+966501234567"))
		if action.Kind != ActionWarn {
			t.Fatalf("violation #%d action = %s, want warn", i, action.Kind)
		}
	}
	// Warnings delete the message but never mute or ban.
	if len(env.api.muted) != 0 || len(env.api.banned) != 0 {
		t.Fatalf("warn phase called mute/ban: muted=%v banned=%v", env.api.muted, env.api.banned)
	}
	if len(env.api.deleted) != 2 {
		t.Fatalf("warn phase deleted %d messages, want 2", len(env.api.deleted))
	}

	action := env.engine.HandleMessage(ctx, msg(1, 100, 3, "+966501234567"))
	if action.Kind != ActionMute {
		t.Fatalf("violation #3 action = %s, want mute", action.Kind)
	}
	if len(env.api.muted) != 1 || env.api.muted[0] != 100 {
		t.Errorf("muted = %v, want [100]", env.api.muted)
	}
}

func TestHandleMessage_ResetWindowForgives(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.policies.SetMode(ctx, 1, policy.ModeMuteThenBan); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.engine.now = func() time.Time { return now }

	if action := env.engine.HandleMessage(ctx, msg(1, 100, 1, "+966501234567")); action.Kind != ActionMute {
		t.Fatalf("violation #1 action = %s, want mute", action.Kind)
	}

	// Eight days later the window has elapsed: treated as violation #1.
	now = now.Add(8 * 24 * time.Hour)
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 2, "+966501234567")); action.Kind != ActionMute {
		t.Fatalf("post-window action = %s, want mute (fresh ladder)", action.Kind)
	}
}

func TestHandleMessage_QuietHoursSeparatePath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w, _ := quiet.NewWindow("22:00", "06:00")
	if err := env.policies.SetQuietHours(ctx, 1, w); err != nil {
		t.Fatalf("SetQuietHours: %v", err)
	}
	env.engine.now = func() time.Time {
		return time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	}

	// A perfectly clean message is removed during quiet hours.
	action := env.engine.HandleMessage(ctx, msg(1, 100, 7, "good night everyone"))
	if action.Kind != ActionDelete {
		t.Fatalf("quiet action = %s, want delete", action.Kind)
	}
	if len(env.api.deleted) != 1 || env.api.deleted[0] != 7 {
		t.Errorf("deleted = %v, want [7]", env.api.deleted)
	}
	// Quiet deletions never touch the ladder.
	if _, ok := env.tracker.Get(1, 100); ok {
		t.Error("quiet deletion incremented the violation tracker")
	}

	// Outside the window the same message flows normally.
	env.engine.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 8, "good afternoon")); action.Kind != ActionNone {
		t.Errorf("daytime action = %s, want none", action.Kind)
	}
}

func TestHandleMessage_AlreadyBannedSkipsBanCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.api.isBanned[100] = true

	action := env.engine.HandleMessage(ctx, msg(1, 100, 1, "+966501234567"))
	if action.Kind != ActionBan {
		t.Fatalf("action = %s, want ban", action.Kind)
	}
	if len(env.api.banned) != 0 {
		t.Errorf("ban call issued for already-banned user: %v", env.api.banned)
	}
	// The message is still deleted and the notice still posted.
	if len(env.api.deleted) != 1 {
		t.Errorf("deleted = %v, want one deletion", env.api.deleted)
	}
}

func TestHandleMessage_CollaboratorFailureStillCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.policies.SetMode(ctx, 1, policy.ModeMuteThenBan); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	env.api.deleteErr = errors.New("message not found")
	env.api.banErr = errors.New("not enough rights")

	// Enforcement fails but HandleMessage completes and the counter moved.
	action := env.engine.HandleMessage(ctx, msg(1, 100, 1, "+966501234567"))
	if action.Kind != ActionMute {
		t.Fatalf("action = %s, want mute", action.Kind)
	}
	rec, ok := env.tracker.Get(1, 100)
	if !ok || rec.ViolationCount != 1 {
		t.Errorf("tracker record = %+v ok=%v, want count 1", rec, ok)
	}

	// Second violation still escalates to ban even though the ban call
	// fails; the record clears because the ban decision stood.
	if action := env.engine.HandleMessage(ctx, msg(1, 100, 2, "+966501234567")); action.Kind != ActionBan {
		t.Fatalf("action = %s, want ban", action.Kind)
	}
	if _, ok := env.tracker.Get(1, 100); ok {
		t.Error("tracker record survived a failed ban")
	}
}
