package wordpress

import (
	"errors"
	"fmt"
)

// Failure kinds. Every *Error unwraps to exactly one of them.
var (
	ErrAuth        = errors.New("wordpress: authentication failed")
	ErrPostList    = errors.New("wordpress: post list failed")
	ErrPostLookup  = errors.New("wordpress: post lookup failed")
	ErrPostCreate  = errors.New("wordpress: post create failed")
	ErrPostEdit    = errors.New("wordpress: post edit failed")
	ErrPostDelete  = errors.New("wordpress: post delete failed")
	ErrMediaCreate = errors.New("wordpress: media create failed")
)

// Error describes a failed CMS call.
type Error struct {
	Kind       error
	Op         string
	PostID     int64
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Op)
	if e.PostID != 0 {
		msg += fmt.Sprintf(" post=%d", e.PostID)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
