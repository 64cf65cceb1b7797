package domain

import (
	"errors"
	"fmt"
)

// FailureKind tags an API failure so callers can match on it explicitly
// instead of inspecting wrapped causes.
type FailureKind int

const (
	// FailureIO covers transport and non-auth HTTP errors.
	FailureIO FailureKind = iota
	// FailureLogin covers HTTP 401 and 404. Gitlab answers 404 for both
	// "not found" and "forbidden", so 404 must be treated as auth.
	FailureLogin
	// FailureParse covers malformed response bodies.
	FailureParse
	// FailureResolution means no host/project path could be guessed.
	FailureResolution
)

func (k FailureKind) String() string {
	switch k {
	case FailureIO:
		return "io"
	case FailureLogin:
		return "login"
	case FailureParse:
		return "parse"
	case FailureResolution:
		return "resolution"
	default:
		return "unknown"
	}
}

// Failure is the typed error produced by the gitlab transport. URL is
// already redacted and safe to log.
type Failure struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s failure for %s: %v", f.Kind, f.URL, f.Err)
	}
	return fmt.Sprintf("%s failure for %s", f.Kind, f.URL)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err with a kind and the (redacted) URL it occurred on.
func NewFailure(kind FailureKind, url string, err error) *Failure {
	return &Failure{Kind: kind, URL: url, Err: err}
}

// KindOf extracts the failure kind from err. The second return is false
// when err carries no Failure anywhere in its chain.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsLoginFailure reports whether err is classified as an auth failure.
func IsLoginFailure(err error) bool {
	k, ok := KindOf(err)
	return ok && k == FailureLogin
}

// IsIOFailure reports whether err is classified as a transport failure.
func IsIOFailure(err error) bool {
	k, ok := KindOf(err)
	return ok && k == FailureIO
}
