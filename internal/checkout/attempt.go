package checkout

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

type State string

const (
	StateIdle          State = "IDLE"
	StateValidating    State = "VALIDATING"
	StateFailed        State = "FAILED"
	StateOnlinePending State = "ONLINE_PENDING"
	StateGatewayOpen   State = "GATEWAY_OPEN"
	StateVerifying     State = "VERIFYING"
	StateCODSubmitting State = "COD_SUBMITTING"
	StateSucceeded     State = "SUCCEEDED"
)

var ErrInvalidTransition = errors.New("invalid checkout state transition")

// validTransitions defines allowed state transitions
var validTransitions = map[State][]State{
	StateIdle:          {StateValidating},
	StateValidating:    {StateFailed, StateOnlinePending, StateCODSubmitting},
	StateOnlinePending: {StateGatewayOpen, StateFailed},
	StateGatewayOpen:   {StateVerifying, StateFailed},
	StateVerifying:     {StateSucceeded, StateFailed},
	StateCODSubmitting: {StateSucceeded, StateFailed},
	StateFailed:        {StateValidating}, // retry
	StateSucceeded:     {},                // terminal state
}

// Transition is one recorded state change
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// GatewaySession is what the UI needs to open the gateway widget
type GatewaySession struct {
	Key         string `json:"key"`
	OrderID     string `json:"gatewayOrderId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Name        string `json:"prefillName"`
	Email       string `json:"prefillEmail"`
	Phone       string `json:"prefillPhone"`
}

// Attempt is one run through the checkout state machine
type Attempt struct {
	ID       string          `json:"id"`
	State    State           `json:"state"`
	Method   payment.Method  `json:"method,omitempty"`
	Snapshot Snapshot        `json:"snapshot"`
	Draft    Draft           `json:"draft"`
	Gateway  *GatewaySession `json:"gateway,omitempty"`
	Order    *order.Order    `json:"order,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	// Silent marks a failure caused by the user, e.g. dismissing the gateway
	Silent  bool         `json:"silent,omitempty"`
	History []Transition `json:"history"`
}

func newAttempt(id string) *Attempt {
	return &Attempt{ID: id, State: StateIdle}
}

// CanTransitionTo checks if the attempt can move to the target state
func (a *Attempt) CanTransitionTo(target State) bool {
	return slices.Contains(validTransitions[a.State], target)
}

func (a *Attempt) transition(target State, at time.Time) error {
	if !a.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, a.State, target)
	}
	a.History = append(a.History, Transition{From: a.State, To: target, At: at})
	a.State = target
	return nil
}

func (a *Attempt) fail(reason string, at time.Time) error {
	if err := a.transition(StateFailed, at); err != nil {
		return err
	}
	a.Reason = reason
	return nil
}

// Busy reports whether the attempt is in flight; the submit control stays
// disabled while it is.
func (a *Attempt) Busy() bool {
	switch a.State {
	case StateValidating, StateOnlinePending, StateGatewayOpen, StateVerifying, StateCODSubmitting:
		return true
	}
	return false
}

// Terminal reports whether the attempt reached SUCCEEDED or FAILED
func (a *Attempt) Terminal() bool {
	return a.State == StateSucceeded || a.State == StateFailed
}

func (a *Attempt) clone() Attempt {
	c := *a
	c.History = slices.Clone(a.History)
	c.Snapshot.Items = slices.Clone(a.Snapshot.Items)
	if a.Gateway != nil {
		g := *a.Gateway
		c.Gateway = &g
	}
	if a.Order != nil {
		o := *a.Order
		o.Items = slices.Clone(a.Order.Items)
		c.Order = &o
	}
	return c
}
