// Package apperr defines the error taxonomy shared by the resizer core and the
// HTTP layer. Core packages wrap their sentinel errors in an *Error carrying a
// Kind so the route layer can map failures to status codes without knowing
// which package produced them.
package apperr

import "errors"

// Kind categorizes a failure.
type Kind int

const (
	// KindUnknown is any error that was not classified by the core.
	KindUnknown Kind = iota
	// KindInvalidInput covers missing or malformed uploads, bad dimensions,
	// unsupported formats and oversized requests.
	KindInvalidInput
	// KindUnreadableImage means the bytes could not be decoded as an image.
	KindUnreadableImage
	// KindNotFound means a scratch file does not exist (or already expired).
	KindNotFound
	// KindStorage covers scratch directory write failures.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnreadableImage:
		return "unreadable_image"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Err is the wrapped cause, usually one of the
// sentinel errors exported by the core packages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput wraps err as a KindInvalidInput error.
func InvalidInput(msg string, err error) error {
	return &Error{Kind: KindInvalidInput, Message: msg, Err: err}
}

// UnreadableImage wraps err as a KindUnreadableImage error.
func UnreadableImage(msg string, err error) error {
	return &Error{Kind: KindUnreadableImage, Message: msg, Err: err}
}

// NotFound wraps err as a KindNotFound error.
func NotFound(msg string, err error) error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

// Storage wraps err as a KindStorage error.
func Storage(msg string, err error) error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
