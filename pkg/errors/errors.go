package errors

import (
	goerrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/buger/goterm"
)

// ContextError is an error that has information on what caused it.
type ContextError interface {
	Cause() error
	Context() string

	Error() string
}

// A FriendlyError is an error that can be directly printed to the operator
// without any other context.
type FriendlyError interface {
	FriendlyMessage() string
	Error() string
}

type contextErrorImpl struct {
	err     error
	context string
}

func (err contextErrorImpl) Context() string {
	return err.context
}

func (err contextErrorImpl) Error() string {
	// If one of our children is a friendly error, print that.
	if friendlyMsg, ok := getFriendlyMessage(err); ok {
		return friendlyMsg
	}
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextErrorImpl) Cause() error {
	return err.err
}

// Unwrap lets the standard library's errors.Is and errors.As see through the
// context, e.g. to detect os.ErrNotExist.
func (err contextErrorImpl) Unwrap() error {
	return err.err
}

type friendlyErrorImpl struct {
	message string
}

func (err friendlyErrorImpl) Error() string {
	return err.message
}

func (err friendlyErrorImpl) FriendlyMessage() string {
	return err.message
}

// WithContext returns an error that can be unwrapped by `Cause`.
func WithContext(context string, err error) error {
	return contextErrorImpl{err, context}
}

// Cause returns the cause of the given error if it's defined.
func Cause(err error) (error, bool) { // nolint: golint, staticcheck, stylecheck
	errWithContext, ok := err.(ContextError)
	if !ok {
		return nil, false
	}
	return errWithContext.Cause(), true
}

// RootCause returns the root cause of the given error.
func RootCause(err error) error {
	for {
		cause, ok := Cause(err)
		if !ok {
			return err
		}
		err = cause
	}
}

// New returns a new Go error. It is provided so that callers don't have to
// import both the Go "errors" package and this package.
func New(f string, args ...interface{}) error {
	return fmt.Errorf(f, args...)
}

// NewFriendlyError returns a new user friendly error that can be retrieved by
// GetPrintableMessage.
func NewFriendlyError(f string, args ...interface{}) error {
	return friendlyErrorImpl{fmt.Sprintf(f, args...)}
}

// GetPrintableMessage returns a user friendly error to print to the operator.
// If any error in the error chain has a user friendly error message, it prints
// that. Otherwise, it prints the errors' generic message.
func GetPrintableMessage(err error) string {
	if friendlyMsg, ok := getFriendlyMessage(err); ok {
		return friendlyMsg
	}
	return err.Error()
}

func getFriendlyMessage(err error) (string, bool) {
	friendlyError, ok := err.(FriendlyError)
	if ok {
		return friendlyError.FriendlyMessage(), true
	}

	cause, ok := next(err)
	if !ok {
		return "", false
	}
	return getFriendlyMessage(cause)
}

// next steps one level down the error chain, following both our own context
// errors and errors wrapped with fmt.Errorf("%w").
func next(err error) (error, bool) {
	if cause, ok := Cause(err); ok {
		return cause, cause != nil
	}
	if cause := goerrors.Unwrap(err); cause != nil {
		return cause, true
	}
	return nil, false
}

// PrintFatalError writes the fatal banner followed by the printable message.
func PrintFatalError(w io.Writer, err error) {
	fmt.Fprintln(w, goterm.Color("FATAL ERROR:", goterm.RED))
	fmt.Fprintln(w, GetPrintableMessage(err))
}

// HandleFatalError prints err and exits with the code mapped from its Kind.
func HandleFatalError(err error) {
	PrintFatalError(os.Stderr, err)
	os.Exit(ExitCode(err))
}
