package greeting

import "errors"

// Provider-level errors. They never leave the resolver.
var (
	// ErrUnsupported means a provider does not offer the requested category.
	ErrUnsupported = errors.New("category not supported by provider")
	// ErrNetwork covers transport failures, bad status codes and pages
	// missing their root or content region.
	ErrNetwork = errors.New("provider network error")
	// ErrEmptyResult means the page parsed but held no qualifying image.
	ErrEmptyResult = errors.New("provider returned no images")
)

// ErrUnavailable is returned by the resolver once every provider and the
// baseline fallback have failed.
var ErrUnavailable = errors.New("no provider available")

// Store precondition and uniqueness errors.
var (
	ErrAlreadySubscribed = errors.New("recipient already subscribed")
	ErrNotSubscribed     = errors.New("recipient not subscribed")
	ErrDuplicateBirthday = errors.New("birthday already registered")
)

// Class groups errors by how callers must react to them.
type Class string

// Error classes.
const (
	ClassNone        Class = ""
	ClassTransient   Class = "transient"
	ClassUnsupported Class = "unsupported"
	ClassUnavailable Class = "unavailable"
	ClassConflict    Class = "conflict"
	ClassFatal       Class = "fatal"
)

// Classify maps err onto the error taxonomy. Unknown errors are fatal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnavailable):
		return ClassUnavailable
	case errors.Is(err, ErrUnsupported):
		return ClassUnsupported
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrEmptyResult):
		return ClassTransient
	case errors.Is(err, ErrAlreadySubscribed),
		errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrDuplicateBirthday):
		return ClassConflict
	default:
		return ClassFatal
	}
}
