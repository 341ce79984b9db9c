package signin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single verification call.
	DefaultTimeout = 15 * time.Second
	// DefaultHomePath is where a successful sign-in navigates.
	DefaultHomePath = "/"
)

var tracer = otel.Tracer("doughstock.app/optimizer-admin/internal/admin/signin")

// Option customises a Controller.
type Option func(*Controller)

// WithTimeout bounds each verification call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMessages replaces the default notification texts.
func WithMessages(m Messages) Option {
	return func(c *Controller) {
		c.messages = m.withDefaults()
	}
}

// WithHomePath overrides the route a successful sign-in navigates to.
func WithHomePath(path string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(path) != "" {
			c.homePath = path
		}
	}
}

// WithMetrics records attempt outcomes.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns the state of one sign-in screen: the email and password inputs
// and the busy flag. It is safe for concurrent use.
type Controller struct {
	verifier Verifier
	logger   *zap.Logger
	timeout  time.Duration
	messages Messages
	homePath string
	metrics  *Metrics
	now      func() time.Time

	mu         sync.Mutex
	email      string
	password   string
	busy       bool
	lastActive time.Time
}

// NewController constructs a Controller in the idle state with empty inputs.
func NewController(verifier Verifier, opts ...Option) *Controller {
	if verifier == nil {
		panic("signin: verifier is required")
	}
	c := &Controller{
		verifier: verifier,
		logger:   zap.NewNop(),
		timeout:  DefaultTimeout,
		messages: DefaultMessages(),
		homePath: DefaultHomePath,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.lastActive = c.now()
	return c
}

// SetEmail replaces the email input.
func (c *Controller) SetEmail(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email = v
	c.lastActive = c.now()
}

// SetPassword replaces the password input.
func (c *Controller) SetPassword(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = v
	c.lastActive = c.now()
}

// Email returns the current email input.
func (c *Controller) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

// Password returns the current password input.
func (c *Controller) Password() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password
}

// Busy reports whether a verification call is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// State returns the lifecycle state derived from the busy flag.
func (c *Controller) State() State {
	if c.Busy() {
		return StateSubmitting
	}
	return StateIdle
}

// Submit runs one sign-in attempt with the current inputs. The verifier is called
// exactly once; success notifies and navigates home, failure notifies with the
// backend message and logs. Verification errors are reported through Result and
// never returned. ErrBusy is returned, without calling the verifier, when another
// submission is still outstanding.
func (c *Controller) Submit(ctx context.Context, fx Effects) (Result, error) {
	creds, ok := c.begin()
	if !ok {
		c.metrics.observeRejected()
		return Result{}, ErrBusy
	}
	defer c.finish()

	messages := c.messages
	if fx.Messages != nil {
		messages = fx.Messages.withDefaults()
	}

	attempt := ulid.Make().String()
	logger := c.logger.With(zap.String("attempt_id", attempt))

	ctx, span := tracer.Start(ctx, "signin.verify", trace.WithAttributes(
		attribute.String("signin.attempt_id", attempt),
	))
	defer span.End()

	start := c.now()
	session, err := c.verify(ctx, creds)
	elapsed := c.now().Sub(start)
	if err == nil && session == nil {
		err = errors.New("signin: verifier returned no session")
	}

	if err != nil {
		failure := failureFor(err, messages)
		span.RecordError(err)
		span.SetStatus(codes.Error, failure.Message)
		c.metrics.observe(outcomeFailure, elapsed)

		notify(ctx, fx.Notifier, Notification{
			Title:       messages.FailureTitle,
			Description: failure.Message,
			Variant:     VariantDestructive,
		})
		logger.Warn("error signing in",
			zap.String("message", failure.Message),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Result{Failure: failure}, nil
	}

	span.SetStatus(codes.Ok, "")
	c.metrics.observe(outcomeSuccess, elapsed)
	notify(ctx, fx.Notifier, Notification{
		Title:       messages.SuccessTitle,
		Description: messages.SuccessDescription,
		Variant:     VariantDefault,
	})
	if fx.Navigator != nil {
		fx.Navigator.Navigate(ctx, c.homePath)
	}
	logger.Info("signed in", zap.String("user_id", session.UserID), zap.Duration("elapsed", elapsed))
	return Result{Session: session}, nil
}

func (c *Controller) begin() (Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return Credentials{}, false
	}
	c.busy = true
	c.lastActive = c.now()
	return Credentials{Email: c.email, Password: c.password}, true
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.lastActive = c.now()
}

// idleFor reports how long the controller has been untouched. Busy controllers are never idle.
func (c *Controller) idleFor(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, false
	}
	return now.Sub(c.lastActive), true
}

type verifyOutcome struct {
	session *Session
	err     error
}

// verify runs the backend call as a separate task and waits on either its
// completion or the context, so a verifier that ignores cancellation cannot pin
// the form in the submitting state past the timeout.
func (c *Controller) verify(ctx context.Context, creds Credentials) (*Session, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan verifyOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- verifyOutcome{err: fmt.Errorf("signin: verifier panic: %v", rec)}
			}
		}()
		session, err := c.verifier.SignInWithPassword(ctx, creds)
		done <- verifyOutcome{session: session, err: err}
	}()

	select {
	case out := <-done:
		return out.session, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type displayMessager interface {
	DisplayMessage() string
}

func failureFor(err error, messages Messages) *Failure {
	var existing *Failure
	if errors.As(err, &existing) && strings.TrimSpace(existing.Message) != "" {
		return existing
	}

	var message string
	var displayer displayMessager
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = messages.Timeout
	case errors.Is(err, context.Canceled):
		message = messages.Canceled
	case errors.As(err, &displayer):
		message = displayer.DisplayMessage()
	default:
		message = err.Error()
	}
	if strings.TrimSpace(message) == "" {
		message = messages.Unknown
	}
	return &Failure{Message: message, Err: err}
}

func notify(ctx context.Context, n Notifier, msg Notification) {
	if n == nil {
		return
	}
	n.Notify(ctx, msg)
}
