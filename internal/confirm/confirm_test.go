package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture hands every delivered prompt to the test.
func capture() (Prompter, <-chan Prompt) {
	ch := make(chan Prompt, 4)
	return PrompterFunc(func(_ context.Context, p Prompt) error {
		ch <- p
		return nil
	}), ch
}

func recvPrompt(t *testing.T, ch <-chan Prompt) Prompt {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for prompt")
		return Prompt{}
	}
}

type result struct {
	out Outcome
	err error
}

func start(ctx context.Context, m *Manager, operator string) <-chan result {
	done := make(chan result, 1)
	go func() {
		out, err := m.Confirm(ctx, operator, "move the queue?")
		done <- result{out, err}
	}()
	return done
}

func recvResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for outcome")
		return result{}
	}
}

func TestConfirm_ConfirmAndCancel(t *testing.T) {
	cases := []struct {
		name   string
		signal Signal
		want   Outcome
	}{
		{name: "confirm", signal: SignalConfirm, want: Confirmed},
		{name: "cancel", signal: SignalCancel, want: Cancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prompter, prompts := capture()
			m := NewManager(time.Minute, prompter, nil)

			done := start(context.Background(), m, "op")
			p := recvPrompt(t, prompts)
			assert.Equal(t, "op", p.Operator)
			assert.Equal(t, "move the queue?", p.Message)

			require.NoError(t, m.Signal(p.ID, "op", tc.signal))
			r := recvResult(t, done)
			require.NoError(t, r.err)
			assert.Equal(t, tc.want, r.out)
			assert.Empty(t, m.Pending(""))
		})
	}
}

func TestConfirm_OnlyOperatorCanAnswer(t *testing.T) {
	prompter, prompts := capture()
	m := NewManager(time.Minute, prompter, nil)

	done := start(context.Background(), m, "op")
	p := recvPrompt(t, prompts)

	assert.ErrorIs(t, m.Signal(p.ID, "someone-else", SignalConfirm), ErrWrongOperator)
	select {
	case <-done:
		t.Fatalf("round resolved by a non-operator")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.Signal(p.ID, "op", SignalCancel))
	assert.Equal(t, Cancelled, recvResult(t, done).out)
}

func TestConfirm_FirstSignalWins(t *testing.T) {
	prompter, prompts := capture()
	m := NewManager(time.Minute, prompter, nil)

	done := start(context.Background(), m, "op")
	p := recvPrompt(t, prompts)

	require.NoError(t, m.Signal(p.ID, "op", SignalCancel))
	_ = m.Signal(p.ID, "op", SignalConfirm) // may already be gone
	assert.Equal(t, Cancelled, recvResult(t, done).out)
}

func TestConfirm_TimesOut(t *testing.T) {
	prompter, prompts := capture()
	m := NewManager(20*time.Second, prompter, nil)

	fire := make(chan time.Time)
	var asked time.Duration
	m.after = func(d time.Duration) <-chan time.Time {
		asked = d
		return fire
	}

	done := start(context.Background(), m, "op")
	p := recvPrompt(t, prompts)
	close(fire)

	r := recvResult(t, done)
	assert.Equal(t, TimedOut, r.out)
	assert.Equal(t, 20*time.Second, asked)
	assert.ErrorIs(t, m.Signal(p.ID, "op", SignalConfirm), ErrUnknownRound)
}

func TestConfirm_ContextCancelled(t *testing.T) {
	prompter, prompts := capture()
	m := NewManager(time.Minute, prompter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, m, "op")
	recvPrompt(t, prompts)
	cancel()

	assert.Equal(t, Cancelled, recvResult(t, done).out)
}

func TestConfirm_PromptFailure(t *testing.T) {
	m := NewManager(time.Minute, PrompterFunc(func(context.Context, Prompt) error {
		return errors.New("operator offline")
	}), nil)

	out, err := m.Confirm(context.Background(), "op", "msg")
	assert.Error(t, err)
	assert.Equal(t, Cancelled, out)
	assert.Empty(t, m.Pending(""))
}

func TestPending_ListsOpenRoundsPerOperator(t *testing.T) {
	prompter, prompts := capture()
	m := NewManager(time.Minute, prompter, nil)

	first := start(context.Background(), m, "op")
	p1 := recvPrompt(t, prompts)
	other := start(context.Background(), m, "other")
	p2 := recvPrompt(t, prompts)

	assert.Equal(t, []Prompt{p1}, m.Pending("op"))
	assert.Equal(t, []Prompt{p2}, m.Pending("other"))
	assert.Empty(t, m.Pending("nobody"))
	assert.Len(t, m.Pending(""), 2)

	require.NoError(t, m.Signal(p1.ID, "op", SignalConfirm))
	assert.Equal(t, Confirmed, recvResult(t, first).out)
	assert.Empty(t, m.Pending("op"))

	require.NoError(t, m.Signal(p2.ID, "other", SignalCancel))
	assert.Equal(t, Cancelled, recvResult(t, other).out)
	assert.Empty(t, m.Pending(""))
}

func TestSignal_UnknownRound(t *testing.T) {
	m := NewManager(time.Minute, PrompterFunc(func(context.Context, Prompt) error { return nil }), nil)
	assert.ErrorIs(t, m.Signal("nope", "op", SignalConfirm), ErrUnknownRound)
}

func TestParseSignal(t *testing.T) {
	s, err := ParseSignal("confirm")
	require.NoError(t, err)
	assert.Equal(t, SignalConfirm, s)
	s, err = ParseSignal("❌")
	require.NoError(t, err)
	assert.Equal(t, SignalCancel, s)
	_, err = ParseSignal("maybe")
	assert.Error(t, err)
}
