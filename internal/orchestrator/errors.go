package orchestrator

import (
	"errors"
	"fmt"
)

// FaultKind classifies errors that abort a run or reject a flow.
type FaultKind string

const (
	// FaultDecode covers unregistered tools, decoder failures and checks
	// applied to the wrong output type.
	FaultDecode FaultKind = "decode"

	// FaultConfiguration covers invalid flow and step definitions.
	FaultConfiguration FaultKind = "configuration"

	// FaultInput covers a missing run input and input builder failures.
	FaultInput FaultKind = "input"
)

// Sentinels matched by errors.Is against a *FlowError of the same kind.
var (
	ErrDecodeFault   = errors.New("decode fault")
	ErrConfiguration = errors.New("configuration fault")
	ErrInputFault    = errors.New("input fault")
)

// InvocationFaultID is the id of the critical issue recorded when a
// collaborator or local function call fails.
const InvocationFaultID = "invocation-fault"

var (
	errNilRunInput  = errors.New("run input is required")
	errNilStepInput = errors.New("input builder returned nil input")
	errNilResponse  = errors.New("collaborator returned no response")
)

// FlowError is a fatal flow error with its location in the run.
type FlowError struct {
	Kind     FaultKind
	Position int
	ToolID   string
	Round    int
	Err      error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.ToolID == "" {
		return fmt.Sprintf("%s fault: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s fault at position %d (%s, round %d): %v", e.Kind, e.Position, e.ToolID, e.Round, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *FlowError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k FaultKind) sentinel() error {
	switch k {
	case FaultDecode:
		return ErrDecodeFault
	case FaultConfiguration:
		return ErrConfiguration
	case FaultInput:
		return ErrInputFault
	default:
		return nil
	}
}

// FaultKindOf returns the kind of the first *FlowError in err's chain.
func FaultKindOf(err error) (FaultKind, bool) {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Kind, true
	}
	return "", false
}

func configError(position int, toolID string, err error) *FlowError {
	return &FlowError{Kind: FaultConfiguration, Position: position, ToolID: toolID, Err: err}
}
