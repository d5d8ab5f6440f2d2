// Package confirm implements the operator confirmation round: a mutating
// command describes its consequence, then blocks until the one operator
// allowed to answer confirms, cancels, or the round times out.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownRound = errors.New("no pending confirmation with this id")
var ErrWrongOperator = errors.New("only the operator who issued the command can answer")

type Outcome int

const (
	Confirmed Outcome = iota
	Cancelled
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type Signal int

const (
	SignalConfirm Signal = iota
	SignalCancel
)

func ParseSignal(s string) (Signal, error) {
	switch s {
	case "confirm", "yes", "✅":
		return SignalConfirm, nil
	case "cancel", "no", "❌":
		return SignalCancel, nil
	}
	return 0, fmt.Errorf("unknown confirmation signal %q", s)
}

// Prompt is what the operator is shown. Answer by signalling ID.
type Prompt struct {
	ID       string    `json:"id"`
	Operator string    `json:"operator"`
	Message  string    `json:"message"`
	Expires  time.Time `json:"expires"`
}

// Prompter delivers a prompt to the operator.
type Prompter interface {
	Prompt(ctx context.Context, p Prompt) error
}

type PrompterFunc func(ctx context.Context, p Prompt) error

func (f PrompterFunc) Prompt(ctx context.Context, p Prompt) error { return f(ctx, p) }

type round struct {
	prompt  Prompt
	signals chan Signal
}

type Manager struct {
	Timeout time.Duration

	prompter Prompter
	log      *zap.Logger

	// tests swap these
	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	mu     sync.Mutex
	rounds map[string]*round
}

func NewManager(timeout time.Duration, prompter Prompter, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		Timeout:  timeout,
		prompter: prompter,
		log:      log,
		after:    time.After,
		now:      time.Now,
		rounds:   make(map[string]*round),
	}
}

// Confirm opens a fresh round and waits for its outcome. A cancelled ctx
// resolves the round as Cancelled. An error means the prompt could not be
// delivered; the round is then treated as cancelled.
func (m *Manager) Confirm(ctx context.Context, operator, message string) (Outcome, error) {
	id := uuid.NewString()
	p := Prompt{ID: id, Operator: operator, Message: message, Expires: m.now().Add(m.Timeout)}
	r := &round{prompt: p, signals: make(chan Signal, 1)}

	m.mu.Lock()
	m.rounds[id] = r
	m.mu.Unlock()
	defer m.forget(id)

	log := m.log.With(zap.String("round", id), zap.String("operator", operator))

	if err := m.prompter.Prompt(ctx, p); err != nil {
		log.Warn("confirmation prompt not delivered", zap.Error(err))
		return Cancelled, fmt.Errorf("confirm: deliver prompt: %w", err)
	}
	log.Debug("awaiting confirmation")

	var out Outcome
	select {
	case s := <-r.signals:
		out = Cancelled
		if s == SignalConfirm {
			out = Confirmed
		}
	case <-m.after(m.Timeout):
		out = TimedOut
	case <-ctx.Done():
		out = Cancelled
	}
	log.Info("confirmation resolved", zap.Stringer("outcome", out))
	return out, nil
}

// Signal answers round id on behalf of user. Signals from anyone but the
// round's operator are refused and the round keeps waiting. Only the first
// accepted signal counts.
func (m *Manager) Signal(id, user string, s Signal) error {
	m.mu.Lock()
	r, ok := m.rounds[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownRound
	}
	if r.prompt.Operator != user {
		m.log.Info("ignored confirmation from non-operator", zap.String("round", id), zap.String("user", user))
		return ErrWrongOperator
	}
	select {
	case r.signals <- s:
	default:
		// already answered
	}
	return nil
}

// Pending lists the open rounds operator can answer, oldest first. An empty
// operator lists every open round.
func (m *Manager) Pending(operator string) []Prompt {
	m.mu.Lock()
	out := make([]Prompt, 0, len(m.rounds))
	for _, r := range m.rounds {
		if operator == "" || r.prompt.Operator == operator {
			out = append(out, r.prompt)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Prompt) int {
		if c := a.Expires.Compare(b.Expires); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.rounds, id)
	m.mu.Unlock()
}
