package action

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax marks action references that are not well formed.
	ErrSyntax = errors.New("invalid action syntax")
	// ErrNullByte marks action references containing a NUL byte.
	ErrNullByte = errors.New("action source contains null bytes")
	// ErrUnsupportedAction marks well formed references of the wrong shape.
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrUnsupportedArgument marks arguments that are not number or string literals.
	ErrUnsupportedArgument = errors.New("unsupported action argument")
	// ErrActionNotFound is returned when a provider or function is not registered.
	ErrActionNotFound = errors.New("action does not exist")
	// ErrActionInvalid is returned when a registered action cannot be invoked.
	ErrActionInvalid = errors.New("action is not valid")
)

// SyntaxError locates a syntax problem in an action reference.
type SyntaxError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid action syntax in %q at offset %d: %s", e.Source, e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// UnsupportedActionError is returned when the reference is neither
// "module.function" nor a keyword-only call of "module.function".
type UnsupportedActionError struct {
	Action string
	Reason string
}

func (e *UnsupportedActionError) Error() string {
	msg := fmt.Sprintf("the action %q does not seem valid: it has to be either a callable name or a callable call", e.Action)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *UnsupportedActionError) Unwrap() error { return ErrUnsupportedAction }

// UnsupportedArgumentError names the argument whose value is not a number
// or string literal. Kind is a best-effort description of what was given.
type UnsupportedArgumentError struct {
	Action string
	Key    string
	Kind   string
}

func (e *UnsupportedArgumentError) Error() string {
	return fmt.Sprintf("the action %q relies on the argument %q whose type isn't supported: only numbers and strings are (%s given)",
		e.Action, e.Key, e.Kind)
}

func (e *UnsupportedArgumentError) Unwrap() error { return ErrUnsupportedArgument }
