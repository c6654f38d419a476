package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic         = errors.New("protocol: bad magic")
	ErrUnknownCategory  = errors.New("protocol: unknown category")
	ErrUnknownType      = errors.New("protocol: unknown type")
	ErrTruncatedPayload = errors.New("protocol: truncated payload")
	ErrFrameTooLarge    = errors.New("protocol: frame too large")
	ErrInvalidLength    = errors.New("protocol: invalid total_length")
	ErrFieldTooLarge    = errors.New("protocol: field too large")
	ErrEncoderFinished  = errors.New("protocol: encoder already finished")
)

// DecodeError carries header context for a failed frame decode.
type DecodeError struct {
	Category Category
	Type     Type
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (category=%s type=%d)", e.Err, e.Category, uint32(e.Type))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the stream can continue past err. Only an unknown
// type inside a known category qualifies: the frame is already delimited and the
// stream is still in sync.
func Recoverable(err error) bool {
	return err != nil && errors.Is(err, ErrUnknownType)
}

// Fatal reports whether err invalidates the connection's stream state.
func Fatal(err error) bool {
	return err != nil && !Recoverable(err)
}

// Kind names the protocol sentinel err matches, for log fields and metric
// labels. Unmatched errors report "other".
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBadMagic):
		return "bad_magic"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrTruncatedPayload):
		return "truncated_payload"
	case errors.Is(err, ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrFieldTooLarge):
		return "field_too_large"
	default:
		return "other"
	}
}
