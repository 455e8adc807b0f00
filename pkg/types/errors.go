package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents an error code.
type ErrorCode string

// Error codes.
const (
	// S0xxx: Parser/Syntax errors
	ErrStringNotClosed   ErrorCode = "S0101"
	ErrNumberOutOfRange  ErrorCode = "S0102"
	ErrUnsupportedEscape ErrorCode = "S0103"
	ErrUnexpectedEnd     ErrorCode = "S0104"
	ErrTemplateNotClosed ErrorCode = "S0105"
	ErrSyntaxError       ErrorCode = "S0201"
	ErrExpectedToken     ErrorCode = "S0202"
	ErrUnknownStartRule  ErrorCode = "S0203"

	// T1xxx: Type errors
	ErrInvalidOperand ErrorCode = "T1003"

	// D1xxx: Evaluation errors
	ErrNotCallable    ErrorCode = "D1002"
	ErrTraversal      ErrorCode = "D1010"
	ErrInvocation     ErrorCode = "D1020"
	ErrFetch          ErrorCode = "D1030"
	ErrUnpack         ErrorCode = "D1040"
	ErrStackOverflow  ErrorCode = "D3020"
	ErrInvalidProgram ErrorCode = "D3030"

	// U1xxx: Reference errors
	ErrUndefinedReference ErrorCode = "U1001"
)

// State is the scope information captured when evaluation fails. It lets an
// error-formatting layer explain the failure after the fact.
type State struct {
	Globals Tree // builtins
	Object  Tree // innermost scope source: lambda parameters or object literal
	Parent  Tree // the rest of the scope chain
}

// Context is attached to evaluation errors.
type Context struct {
	Code  *Node // the node that failed
	State State
}

// Error represents a structured error.
type Error struct {
	Code     ErrorCode
	Message  string
	Position int
	Token    string
	Err      error

	Location *Location
	Context  *Context
}

// NewError creates a new error.
func NewError(code ErrorCode, message string, position int) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Position: position,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Location != nil {
		return fmt.Sprintf("%s at %s: %s", e.Code, e.Location, e.Message)
	}
	if e.Position >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Code, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithToken adds token information to the error.
func (e *Error) WithToken(token string) *Error {
	e.Token = token
	return e
}

// WithCause wraps another error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithLocation sets the location unless one is already present.
func (e *Error) WithLocation(loc *Location) *Error {
	if e.Location == nil && loc != nil {
		e.Location = loc
		e.Position = loc.Start.Offset
	}
	return e
}

// WithContext sets the evaluation context unless one is already present.
func (e *Error) WithContext(ctx *Context) *Error {
	if e.Context == nil {
		e.Context = ctx
	}
	return e
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
