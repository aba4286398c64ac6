package safecore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConfig     = errors.New("config error")
	ErrInputParse = errors.New("input parse error")
	ErrEncoding   = errors.New("encoding error")
	ErrSigning    = errors.New("signing error")
	ErrNonceRace  = errors.New("nonce race")
	ErrSubmission = errors.New("submission error")
	ErrTimeout    = errors.New("timeout")
)

// ErrorKind is the coarse class recorded on a SubmissionResult.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindConfig     ErrorKind = "config"
	KindInputParse ErrorKind = "input_parse"
	KindEncoding   ErrorKind = "encoding"
	KindSigning    ErrorKind = "signing"
	KindNonceRace  ErrorKind = "nonce_race"
	KindSubmission ErrorKind = "submission"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindUnknown    ErrorKind = "unknown"
)

// KindOf maps an error to its kind. A nonce race is checked before the
// submission error it also wraps.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNonceRace):
		return KindNonceRace
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrSigning):
		return KindSigning
	case errors.Is(err, ErrSubmission):
		return KindSubmission
	case errors.Is(err, ErrInputParse):
		return KindInputParse
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// callError wraps err from a bounded chain call, turning an expired deadline into ErrTimeout.
func callError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSubmission, op, err)
}
