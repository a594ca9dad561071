// Package history stores the attempts made during one flow run.
//
// Position 0 holds the seed attempt decoded from the run input; positions
// 1..N hold one attempt list per declared step, in declaration order. Each
// list is append-only and ordered by round, so the last element is always the
// position's final attempt.
package history

import (
	"errors"
	"fmt"

	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// Errors for history operations.
var (
	ErrPositionOutOfRange = errors.New("history position out of range")
	ErrRoundOutOfOrder    = errors.New("attempt round out of order")
	ErrPositionMismatch   = errors.New("attempt position does not match")
	ErrSeedPosition       = errors.New("seed position is immutable")
)

// Reader is the read-only view of a history handed to step input builders.
type Reader interface {
	// Len returns the number of positions, including the seed.
	Len() int

	// Attempts returns a copy of the attempts recorded at position.
	Attempts(position int) []Attempt

	// Final returns the last attempt at position, false when none exist.
	Final(position int) (Attempt, bool)

	// Seed returns the position 0 attempt.
	Seed() Attempt
}

// History is the position-indexed, round-indexed attempt record of a run.
// It is owned by a single run and is not safe for concurrent mutation.
type History struct {
	positions [][]Attempt
}

// New creates a history with the seed at position 0 and steps empty
// positions after it, so Len() == steps+1 from the start.
func New(seed Attempt, steps int) *History {
	if steps < 0 {
		steps = 0
	}
	seed.Position = 0
	seed.Round = 0
	positions := make([][]Attempt, steps+1)
	positions[0] = []Attempt{seed}
	for i := 1; i <= steps; i++ {
		positions[i] = []Attempt{}
	}
	return &History{positions: positions}
}

// Len returns the number of positions, including the seed.
func (h *History) Len() int {
	return len(h.positions)
}

// Append records attempt at position. The attempt's round must equal the
// number of attempts already recorded there.
func (h *History) Append(position int, attempt Attempt) error {
	if position == 0 {
		return ErrSeedPosition
	}
	if err := h.check(position); err != nil {
		return err
	}
	if attempt.Position != position {
		return fmt.Errorf("%w: attempt for %d appended at %d", ErrPositionMismatch, attempt.Position, position)
	}
	if want := len(h.positions[position]); attempt.Round != want {
		return fmt.Errorf("%w: position %d expects round %d, got %d", ErrRoundOutOfOrder, position, want, attempt.Round)
	}
	h.positions[position] = append(h.positions[position], attempt)
	return nil
}

// Attempts returns a copy of the attempts recorded at position, or nil when
// position is out of range.
func (h *History) Attempts(position int) []Attempt {
	if h.check(position) != nil {
		return nil
	}
	out := make([]Attempt, len(h.positions[position]))
	copy(out, h.positions[position])
	return out
}

// Final returns the last attempt at position.
func (h *History) Final(position int) (Attempt, bool) {
	if h.check(position) != nil {
		return Attempt{}, false
	}
	attempts := h.positions[position]
	if len(attempts) == 0 {
		return Attempt{}, false
	}
	return attempts[len(attempts)-1], true
}

// Seed returns the position 0 attempt.
func (h *History) Seed() Attempt {
	return h.positions[0][0]
}

// Finals returns the final attempt of every position that has one, in
// position order.
func (h *History) Finals() []Attempt {
	finals := make([]Attempt, 0, len(h.positions))
	for i := range h.positions {
		if final, ok := h.Final(i); ok {
			finals = append(finals, final)
		}
	}
	return finals
}

// All returns a deep copy of the nested attempt lists.
func (h *History) All() [][]Attempt {
	out := make([][]Attempt, len(h.positions))
	for i := range h.positions {
		out[i] = h.Attempts(i)
	}
	return out
}

// FinalOnly returns the nested lists pruned to each position's final attempt.
// Positions without attempts stay empty.
func (h *History) FinalOnly() [][]Attempt {
	out := make([][]Attempt, len(h.positions))
	for i := range h.positions {
		if final, ok := h.Final(i); ok {
			out[i] = []Attempt{final}
		} else {
			out[i] = []Attempt{}
		}
	}
	return out
}

func (h *History) check(position int) error {
	if position < 0 || position >= len(h.positions) {
		return fmt.Errorf("%w: %d (len %d)", ErrPositionOutOfRange, position, len(h.positions))
	}
	return nil
}

// OutputAt returns the final output at position downcast to T.
func OutputAt[T registry.Output](r Reader, position int) (T, error) {
	var zero T
	final, ok := r.Final(position)
	if !ok {
		return zero, fmt.Errorf("%w: no attempts at position %d", ErrPositionOutOfRange, position)
	}
	return registry.As[T](final.Output)
}

var _ Reader = (*History)(nil)
