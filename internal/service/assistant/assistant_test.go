package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"motivechat/internal/apperr"
	"motivechat/internal/config"
	"motivechat/internal/service/ai"
	"motivechat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(openTestDB(t), "sqlite3", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateUserThenVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct{ username, password string }{
		{"ann", "p@ss1"},
		{"  bob  ", " spaced password "},
		{"zoë", strings.Repeat("x", maxPasswordBytes)},
	}
	for _, tc := range cases {
		user, err := svc.CreateUser(ctx, tc.username, tc.password)
		if err != nil {
			t.Fatalf("create %q: %v", tc.username, err)
		}
		if user.PasswordHash == tc.password {
			t.Fatalf("password stored in plaintext")
		}
		got, err := svc.VerifyCredentials(ctx, tc.username, tc.password)
		if err != nil {
			t.Fatalf("verify %q: %v", tc.username, err)
		}
		if got.ID != user.ID || got.Username != strings.TrimSpace(tc.username) {
			t.Fatalf("verify returned %+v, want id %d", got, user.ID)
		}
		if _, err := svc.VerifyCredentials(ctx, tc.username, tc.password+"!"); !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials for wrong password, got %v", err)
		}
	}

	if _, err := svc.VerifyCredentials(ctx, "nobody", "p@ss1"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestVerifyRejectsPasswordExtendedPastBcryptLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	password := strings.Repeat("x", maxPasswordBytes)
	if _, err := svc.CreateUser(ctx, "zoe", password); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, suffix := range []string{"y", "anything-else", strings.Repeat("x", 10)} {
		user, err := svc.VerifyCredentials(ctx, "zoe", password+suffix)
		if !errors.Is(err, apperr.ErrInvalidCredentials) || user != nil {
			t.Fatalf("suffix %q: expected invalid credentials, got user=%v err=%v", suffix, user, err)
		}
	}
	if _, err := svc.VerifyCredentials(ctx, "zoe", password); err != nil {
		t.Fatalf("exact password must still verify: %v", err)
	}
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateUser(ctx, "ann", "first"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, password := range []string{"first", "second", "third-one"} {
		if _, err := svc.CreateUser(ctx, "ann", password); !errors.Is(err, apperr.ErrDuplicateUsername) {
			t.Fatalf("expected duplicate username, got %v", err)
		}
	}
	if _, err := svc.VerifyCredentials(ctx, "ann", "second"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("duplicate signup must not change the password")
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	invalid := []struct{ username, password string }{
		{"", "pw"},
		{"ab", "pw"},
		{strings.Repeat("u", maxUsernameChars+1), "pw"},
		{"carol", ""},
		{"carol", strings.Repeat("p", maxPasswordBytes+1)},
	}
	for _, tc := range invalid {
		if _, err := svc.CreateUser(ctx, tc.username, tc.password); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %q/%d bytes, got %v", tc.username, len(tc.password), err)
		}
	}
}

func TestAppendExchangeTimestampsStrictlyIncrease(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, "ann", "pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	var prev time.Time
	for i := 0; i < 5; i++ {
		msg, err := svc.AppendExchange(ctx, user.ID, fmt.Sprintf("m%d", i), "r")
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if !msg.Timestamp.After(prev) {
			t.Fatalf("timestamp %v not after %v", msg.Timestamp, prev)
		}
		prev = msg.Timestamp
	}

	// a clock step backwards must not reorder history
	svc.now = func() time.Time { return frozen.Add(-time.Hour) }
	msg, err := svc.AppendExchange(ctx, user.ID, "late", "r")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !msg.Timestamp.After(prev) {
		t.Fatalf("timestamp went backwards: %v <= %v", msg.Timestamp, prev)
	}
}

func TestListHistoryChronologicalAndLimited(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ann, _ := svc.CreateUser(ctx, "ann", "pw")
	bob, _ := svc.CreateUser(ctx, "bob", "pw")

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := svc.AppendExchange(ctx, ann.ID, fmt.Sprintf("m%d", i), fmt.Sprintf("r%d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := svc.AppendExchange(ctx, bob.ID, "other", "reply"); err != nil {
		t.Fatalf("append bob: %v", err)
	}

	all, err := svc.ListHistory(ctx, ann.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d messages, got %d", n, len(all))
	}
	for i, m := range all {
		if m.Message != fmt.Sprintf("m%d", i) || m.Response == "" {
			t.Fatalf("message %d out of order: %+v", i, m)
		}
	}

	recent, err := svc.ListHistory(ctx, ann.ID, 3)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(recent) != 3 || recent[0].Message != "m4" || recent[2].Message != "m6" {
		t.Fatalf("unexpected limited history: %+v", recent)
	}

	empty, err := svc.ListHistory(ctx, 9999, 0)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestConverseStoresExchange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user, _ := svc.CreateUser(ctx, "ann", "pw")

	var gotPersona string
	responder := ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		gotPersona = persona
		return "You can do it: " + prompt, nil
	})
	conv := NewConversation(svc, responder, 20)

	msg, err := conv.Converse(ctx, user.ID, "  I feel stuck  ")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if msg.Message != "I feel stuck" || msg.Response != "You can do it: I feel stuck" {
		t.Fatalf("unexpected exchange %+v", msg)
	}
	if gotPersona != MotivationalPersona {
		t.Fatalf("persona not sent")
	}
	history, _ := svc.ListHistory(ctx, user.ID, 0)
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("exchange not persisted: %+v", history)
	}
}

func TestConverseRejectsInvalidMessage(t *testing.T) {
	svc := newTestService(t)
	user, _ := svc.CreateUser(context.Background(), "ann", "pw")
	var calls atomic.Int32
	conv := NewConversation(svc, ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		calls.Add(1)
		return "ok", nil
	}), 5)

	for _, message := range []string{"", "   \n\t", "too long message"} {
		if _, err := conv.Converse(context.Background(), user.ID, message); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", message, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("responder must not be called for invalid input")
	}
}

func TestConverseGatewayFailureStoresNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user, _ := svc.CreateUser(ctx, "ann", "pw")

	failures := []struct {
		err  error
		want error
	}{
		{errors.New("upstream 500"), apperr.ErrGatewayUnavailable},
		{context.DeadlineExceeded, apperr.ErrGatewayTimeout},
	}
	for _, f := range failures {
		conv := NewConversation(svc, ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
			return "", f.err
		}), 0)
		if _, err := conv.Converse(ctx, user.ID, "hello"); !errors.Is(err, f.want) {
			t.Fatalf("expected %v, got %v", f.want, err)
		}
	}
	history, err := svc.ListHistory(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed exchanges must not be stored, got %d", len(history))
	}
}

func TestConversePersistsAfterClientCancel(t *testing.T) {
	svc := newTestService(t)
	user, _ := svc.CreateUser(context.Background(), "ann", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	conv := NewConversation(svc, ai.ResponderFunc(func(rctx context.Context, prompt, persona string) (string, error) {
		cancel()
		if rctx.Err() != nil {
			return "", rctx.Err()
		}
		return "still here", nil
	}), 0)

	msg, err := conv.Converse(ctx, user.ID, "hello")
	if err != nil {
		t.Fatalf("converse after cancel: %v", err)
	}
	history, _ := svc.ListHistory(context.Background(), user.ID, 0)
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("exchange not persisted after client cancel")
	}
}

func TestConverseUnknownUserIsUnauthorized(t *testing.T) {
	svc := newTestService(t)
	var calls atomic.Int32
	conv := NewConversation(svc, ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		calls.Add(1)
		return "ok", nil
	}), 0)

	_, err := conv.Converse(context.Background(), 4242, "hello")
	if !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected invalid token for unknown user, got %v", err)
	}
	if apperr.Retryable(err) {
		t.Fatalf("unknown user must not be reported as retryable")
	}
	if calls.Load() != 0 {
		t.Fatalf("responder called for unknown user")
	}
	var count int
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}

func TestConverseConcurrentSameUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, "ann", "pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	conv := NewConversation(svc, ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return "reply to " + prompt, nil
	}), 0)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := conv.Converse(ctx, user.ID, fmt.Sprintf("m%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent converse: %v", err)
	}

	history, err := svc.ListHistory(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != n {
		t.Fatalf("expected %d records, got %d", n, len(history))
	}
	seen := make(map[string]bool, n)
	for i, m := range history {
		if m.Response != "reply to "+m.Message {
			t.Fatalf("torn record %+v", m)
		}
		if seen[m.Message] {
			t.Fatalf("duplicate record %q", m.Message)
		}
		seen[m.Message] = true
		if i > 0 && !m.Timestamp.After(history[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d: %v <= %v", i, m.Timestamp, history[i-1].Timestamp)
		}
		if i > 0 && m.ID <= history[i-1].ID {
			t.Fatalf("history order differs from acceptance order at %d", i)
		}
	}
}
