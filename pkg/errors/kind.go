package errors

// Kind is a stable category for a failure. The command layer branches on Kind
// to pick an exit code; callers should never match on error strings.
type Kind string

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = ""

	// DependencyMissing means a primitive the tool relies on is not linked
	// into the binary.
	DependencyMissing Kind = "DependencyMissing"

	// KeyNotFound means issuance was attempted before key provisioning.
	KeyNotFound Kind = "KeyNotFound"

	// InvalidArguments covers missing or malformed command input.
	InvalidArguments Kind = "InvalidArguments"

	// IOFailure covers filesystem errors and unreadable key or config files.
	IOFailure Kind = "IOFailure"

	// SignatureFailure covers key generation and signing errors.
	SignatureFailure Kind = "SignatureFailure"
)

var exitCodes = map[Kind]int{
	InvalidArguments:  2,
	KeyNotFound:       3,
	DependencyMissing: 4,
	IOFailure:         5,
	SignatureFailure:  6,
}

type kindErrorImpl struct {
	kind Kind
	err  error
}

// Error is transparent so that attaching a Kind never changes what the
// operator sees.
func (err kindErrorImpl) Error() string {
	return err.err.Error()
}

func (err kindErrorImpl) Context() string {
	return string(err.kind)
}

func (err kindErrorImpl) Cause() error {
	return err.err
}

func (err kindErrorImpl) Unwrap() error {
	return err.err
}

// WithKind classifies err. It returns nil if err is nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return kindErrorImpl{kind: kind, err: err}
}

// KindOf returns the outermost Kind attached to err, or KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if kindErr, ok := err.(kindErrorImpl); ok {
			return kindErr.kind
		}
		cause, ok := next(err)
		if !ok {
			break
		}
		err = cause
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to the process exit status. A nil error is success and
// unclassified errors exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return 1
}
