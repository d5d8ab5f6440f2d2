package engine

import "fmt"

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhasePresenting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "Not Started"
	case PhasePresenting:
		return "In Progress"
	case PhaseDone:
		return "Done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Cursor marks a room's progress. The zero value is NotStarted.
type Cursor struct {
	phase Phase
	index int
}

func NotStarted() Cursor { return Cursor{phase: PhaseNotStarted} }

func Presenting(i int) Cursor { return Cursor{phase: PhasePresenting, index: i} }

func Done() Cursor { return Cursor{phase: PhaseDone} }

// CursorAt converts the wire integer (-1, an index, or n) for a room of n
// teams.
func CursorAt(current, n int) (Cursor, error) {
	switch {
	case current == -1:
		return NotStarted(), nil
	case current >= 0 && current < n:
		return Presenting(current), nil
	case current == n:
		return Done(), nil
	}
	return Cursor{}, fmt.Errorf("current %d out of range [-1, %d]", current, n)
}

func (c Cursor) Phase() Phase { return c.phase }

// Index returns the index of the presenting team.
func (c Cursor) Index() (int, bool) {
	if c.phase != PhasePresenting {
		return 0, false
	}
	return c.index, true
}

// Int is the wire form of c for a room of n teams.
func (c Cursor) Int(n int) int {
	switch c.phase {
	case PhasePresenting:
		return c.index
	case PhaseDone:
		return n
	}
	return -1
}

func (c Cursor) advance(n int) Cursor {
	next := c.Int(n) + 1
	if next >= n {
		return Done()
	}
	return Presenting(next)
}
