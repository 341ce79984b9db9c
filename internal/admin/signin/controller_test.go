package signin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubVerifier struct {
	mu      sync.Mutex
	calls   []Credentials
	session *Session
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *stubVerifier) SignInWithPassword(_ context.Context, creds Credentials) (*Session, error) {
	s.mu.Lock()
	s.calls = append(s.calls, creds)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.session, s.err
}

func (s *stubVerifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type effectsRecorder struct {
	mu            sync.Mutex
	notifications []Notification
	paths         []string
}

func (r *effectsRecorder) effects() Effects {
	return Effects{
		Notifier: NotifierFunc(func(_ context.Context, n Notification) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notifications = append(r.notifications, n)
		}),
		Navigator: NavigatorFunc(func(_ context.Context, path string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.paths = append(r.paths, path)
		}),
	}
}

func TestSubmitPassesInputsVerbatim(t *testing.T) {
	verifier := &stubVerifier{session: &Session{UserID: "u-1"}}
	c := NewController(verifier)
	c.SetEmail(" Admin@Example.com ")
	c.SetPassword("  pa ss  ")

	rec := &effectsRecorder{}
	if _, err := c.Submit(context.Background(), rec.effects()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if verifier.callCount() != 1 {
		t.Fatalf("expected exactly one verification call, got %d", verifier.callCount())
	}
	got := verifier.calls[0]
	if got.Email != " Admin@Example.com " || got.Password != "  pa ss  " {
		t.Fatalf("credentials were altered: %#v", got)
	}
}

func TestSubmitSuccessNotifiesAndNavigatesOnce(t *testing.T) {
	verifier := &stubVerifier{session: &Session{UserID: "u-1", Email: "admin@example.com"}}
	c := NewController(verifier)
	c.SetEmail("admin@example.com")
	c.SetPassword("secret")

	rec := &effectsRecorder{}
	res, err := c.Submit(context.Background(), rec.effects())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() || res.Failure != nil {
		t.Fatalf("expected success result, got %#v", res)
	}
	if len(rec.paths) != 1 || rec.paths[0] != "/" {
		t.Fatalf("expected one navigation to /, got %v", rec.paths)
	}
	if len(rec.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(rec.notifications))
	}
	n := rec.notifications[0]
	if n.Title != "Login berhasil" || n.Description != "Anda berhasil masuk ke sistem" || n.Variant != VariantDefault {
		t.Fatalf("unexpected success notification %#v", n)
	}
	if c.Busy() {
		t.Fatalf("busy flag should be reset")
	}
}

func TestSubmitFailureNotifiesWithBackendMessage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	verifier := &stubVerifier{err: errors.New("Invalid login credentials")}
	c := NewController(verifier, WithLogger(zap.New(core)))
	c.SetEmail("admin@example.com")
	c.SetPassword("wrong")

	rec := &effectsRecorder{}
	res, err := c.Submit(context.Background(), rec.effects())
	if err != nil {
		t.Fatalf("verification errors must not escape Submit: %v", err)
	}
	if res.OK() || res.Failure == nil {
		t.Fatalf("expected failure result, got %#v", res)
	}
	if res.Failure.Message != "Invalid login credentials" {
		t.Fatalf("unexpected failure message %q", res.Failure.Message)
	}
	if len(rec.paths) != 0 {
		t.Fatalf("failure must not navigate, got %v", rec.paths)
	}
	if len(rec.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(rec.notifications))
	}
	n := rec.notifications[0]
	if n.Title != "Login gagal" || n.Description != "Invalid login credentials" || n.Variant != VariantDestructive {
		t.Fatalf("unexpected failure notification %#v", n)
	}
	if logs.FilterMessage("error signing in").Len() != 1 {
		t.Fatalf("expected failure to be logged once, got %v", logs.All())
	}
}

type displayErr struct{}

func (displayErr) Error() string          { return "identity: backend error (400)" }
func (displayErr) DisplayMessage() string { return "Email not confirmed" }

func TestFailureMessageResolution(t *testing.T) {
	msgs := DefaultMessages()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"display message", displayErr{}, "Email not confirmed"},
		{"wrapped display message", errors.Join(errors.New("outer"), displayErr{}), "Email not confirmed"},
		{"deadline", context.DeadlineExceeded, msgs.Timeout},
		{"canceled", context.Canceled, msgs.Canceled},
		{"plain", errors.New("boom"), "boom"},
		{"blank", errors.New("   "), msgs.Unknown},
		{"existing failure", &Failure{Message: "already shaped"}, "already shaped"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := failureFor(tc.err, msgs)
			if got.Message != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got.Message)
			}
		})
	}
}

func TestBusyWhileOutstanding(t *testing.T) {
	verifier := &stubVerifier{
		session: &Session{UserID: "u-1"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewController(verifier)
	c.SetEmail("admin@example.com")
	c.SetPassword("secret")

	if c.State() != StateIdle {
		t.Fatalf("expected idle initial state")
	}

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Submit(context.Background(), Effects{})
		done <- res
	}()

	<-verifier.entered
	if !c.Busy() || c.State() != StateSubmitting {
		t.Fatalf("expected submitting state while call is outstanding")
	}

	if _, err := c.Submit(context.Background(), Effects{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for re-entrant submit, got %v", err)
	}

	close(verifier.release)
	res := <-done
	if !res.OK() {
		t.Fatalf("expected success, got %#v", res)
	}
	if c.Busy() || c.State() != StateIdle {
		t.Fatalf("expected idle after settlement")
	}
	if verifier.callCount() != 1 {
		t.Fatalf("re-entrant submit must not reach the verifier, got %d calls", verifier.callCount())
	}
}

func TestBusyResetsAfterRepeatedFailures(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("service unavailable")}
	c := NewController(verifier)
	c.SetEmail("admin@example.com")
	c.SetPassword("secret")

	for i := 0; i < 5; i++ {
		res, err := c.Submit(context.Background(), Effects{})
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if res.Failure == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
		if c.Busy() {
			t.Fatalf("attempt %d: busy flag not reset", i)
		}
	}
	if verifier.callCount() != 5 {
		t.Fatalf("expected 5 calls, got %d", verifier.callCount())
	}
}

func TestSubmitTimesOutHungVerifier(t *testing.T) {
	verifier := &stubVerifier{release: make(chan struct{})}
	t.Cleanup(func() { close(verifier.release) })

	c := NewController(verifier, WithTimeout(20*time.Millisecond))
	rec := &effectsRecorder{}
	res, err := c.Submit(context.Background(), rec.effects())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure == nil || res.Failure.Message != DefaultMessages().Timeout {
		t.Fatalf("expected timeout failure, got %#v", res.Failure)
	}
	if !errors.Is(res.Failure, context.DeadlineExceeded) {
		t.Fatalf("failure should wrap the deadline error")
	}
	if c.Busy() {
		t.Fatalf("busy flag should reset after timeout")
	}
}

func TestSubmitNilSessionIsFailure(t *testing.T) {
	c := NewController(&stubVerifier{})
	rec := &effectsRecorder{}
	res, err := c.Submit(context.Background(), rec.effects())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure == nil || len(rec.paths) != 0 {
		t.Fatalf("expected failure without navigation")
	}
}

func TestSubmitRecoversVerifierPanic(t *testing.T) {
	c := NewController(VerifierFunc(func(context.Context, Credentials) (*Session, error) {
		panic("backend exploded")
	}))
	res, err := c.Submit(context.Background(), Effects{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure == nil {
		t.Fatalf("expected failure after panic")
	}
	if c.Busy() {
		t.Fatalf("busy flag should reset after panic")
	}
}

func TestSubmitUsesPerSubmissionMessages(t *testing.T) {
	c := NewController(&stubVerifier{session: &Session{UserID: "u-1"}}, WithHomePath("/home"))
	rec := &effectsRecorder{}
	fx := rec.effects()
	fx.Messages = &Messages{SuccessTitle: "Signed in"}

	if _, err := c.Submit(context.Background(), fx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.notifications[0].Title != "Signed in" {
		t.Fatalf("expected override title, got %q", rec.notifications[0].Title)
	}
	if rec.notifications[0].Description != "Anda berhasil masuk ke sistem" {
		t.Fatalf("unset fields should fall back to defaults")
	}
	if rec.paths[0] != "/home" {
		t.Fatalf("expected custom home path, got %v", rec.paths)
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ok := NewController(&stubVerifier{session: &Session{UserID: "u-1"}}, WithMetrics(metrics))
	bad := NewController(&stubVerifier{err: errors.New("nope")}, WithMetrics(metrics))

	_, _ = ok.Submit(context.Background(), Effects{})
	_, _ = bad.Submit(context.Background(), Effects{})
	_, _ = bad.Submit(context.Background(), Effects{})

	if got := promtest.ToFloat64(metrics.attempts.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := promtest.ToFloat64(metrics.attempts.WithLabelValues(outcomeFailure)); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
}
