package domain

import (
	"errors"
	"fmt"
)

// Result codes shared by the session and the bus boundary.
const (
	CodeTimeout       = "Timeout"
	CodeNoData        = "NoData"
	CodeNoFace        = "NoFace"
	CodeMultipleFaces = "MultipleFaces"
	CodeTooDark       = "TooDark"
	CodeUnknownUser   = "UnknownUser"
	CodeOther         = "Other"
)

type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		if e.Code == CodeOther {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError carrying the same code, so copies made with
// WithError still satisfy errors.Is against the predefined values.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *AuthError) WithError(err error) *AuthError {
	return &AuthError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Pre-defined errors
var (
	ErrTimeout = &AuthError{
		Code:    CodeTimeout,
		Message: "Timeout waiting for face!",
	}

	ErrNoData = &AuthError{
		Code:    CodeNoData,
		Message: "No models enrolled!",
	}

	ErrNoFace = &AuthError{
		Code:    CodeNoFace,
		Message: "No face detected!",
	}

	ErrMultipleFaces = &AuthError{
		Code:    CodeMultipleFaces,
		Message: "Multiple faces detected!",
	}

	ErrTooDark = &AuthError{
		Code:    CodeTooDark,
		Message: "Frame too dark!",
	}

	ErrUnknownUser = &AuthError{
		Code:    CodeUnknownUser,
		Message: "Unknown user!",
	}

	ErrOther = &AuthError{
		Code:    CodeOther,
		Message: "Unexpected error",
	}

	ErrModelMismatch = errors.New("embeddings produced by different models")
)

// Other wraps an uncategorized failure. Errors that already belong to the
// taxonomy are returned unchanged.
func Other(err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return ErrOther.WithError(err)
}

// CodeOf reports the taxonomy code of err, or CodeOther for foreign errors.
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeOther
}

// ResultSuccess is the only result string that grants access.
const ResultSuccess = "Success"

// Result renders an authentication outcome as the string sent over the bus:
// "Success" for nil, the code for taxonomy errors and the cause text for
// uncategorized failures.
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var ae *AuthError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	if ae.Code != CodeOther {
		return ae.Code
	}
	if ae.Err != nil {
		return ae.Err.Error()
	}
	return ae.Message
}

var byCode = map[string]*AuthError{
	CodeTimeout:       ErrTimeout,
	CodeNoData:        ErrNoData,
	CodeNoFace:        ErrNoFace,
	CodeMultipleFaces: ErrMultipleFaces,
	CodeTooDark:       ErrTooDark,
	CodeUnknownUser:   ErrUnknownUser,
}

// ParseResult is the inverse of Result. Unknown strings become Other errors
// carrying the text as their cause.
func ParseResult(result string) error {
	if result == ResultSuccess {
		return nil
	}
	if e, ok := byCode[result]; ok {
		return e
	}
	return ErrOther.WithError(errors.New(result))
}
