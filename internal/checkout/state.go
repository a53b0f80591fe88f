package checkout

import "fmt"

type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StatePersisting         State = "persisting"
	StateAdjustingInventory State = "adjusting_inventory"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Persisting may complete directly when the idempotency key already names a
// recorded sale; inventory was adjusted by the attempt that recorded it.
var transitions = map[State][]State{
	StateIdle:               {StateValidating},
	StateValidating:         {StatePersisting, StateFailed},
	StatePersisting:         {StateAdjustingInventory, StateCompleted, StateFailed},
	StateAdjustingInventory: {StateCompleted, StateFailed},
}

type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("checkout: illegal transition %s -> %s", e.From, e.To)
}

// machine tracks one checkout attempt. Completed and failed are terminal.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StateIdle, history: []State{StateIdle}}
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return &IllegalTransitionError{From: m.current, To: next}
}

// fail moves to failed and returns err so call sites can `return m.fail(err)`.
func (m *machine) fail(err error) error {
	if terr := m.to(StateFailed); terr != nil {
		return terr
	}
	return err
}

func (m *machine) States() []State {
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}
