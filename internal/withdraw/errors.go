package withdraw

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this package wraps exactly one of
// them; StatusFor maps the class to the status word sent to the host.
var (
	ErrMalformedInput   = errors.New("malformed input")
	ErrInvalidScript    = errors.New("invalid redeemer script")
	ErrAddressMismatch  = errors.New("redeemer address does not belong to the signing key")
	ErrUserDenied       = errors.New("withdrawal rejected by user")
	ErrTransportFailure = errors.New("chunk transport failure")
	ErrSigningFailed    = errors.New("signing failed")
	ErrBadState         = errors.New("bad state")
)

// Detail errors.
var (
	ErrShortChunk  = fmt.Errorf("%w: chunk shorter than requested field", ErrTransportFailure)
	ErrNullRoot    = fmt.Errorf("%w: null data root", ErrBadState)
	ErrInvalidArgs = fmt.Errorf("%w: invalid arguments", ErrBadState)
)

// StatusWord is the two-byte APDU-style status returned to the host.
type StatusWord uint16

// Status words.
const (
	SWOK              StatusWord = 0x9000
	SWWrongDataLength StatusWord = 0x6700
	SWDeny            StatusWord = 0x6985
	SWBadState        StatusWord = 0xB007
)

// String formats the status word as four hex digits.
func (s StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(s))
}

// Bytes returns the big-endian encoding of the status word.
func (s StatusWord) Bytes() [2]byte {
	return [2]byte{byte(s >> 8), byte(s)}
}

// StatusFor maps an error to its status word. nil maps to SWOK and any
// unclassified error to SWBadState.
func StatusFor(err error) StatusWord {
	switch {
	case err == nil:
		return SWOK
	case errors.Is(err, ErrMalformedInput):
		return SWWrongDataLength
	case errors.Is(err, ErrInvalidScript),
		errors.Is(err, ErrAddressMismatch),
		errors.Is(err, ErrUserDenied):
		return SWDeny
	default:
		return SWBadState
	}
}

// Class returns a short label of the error class for logs and metrics.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrInvalidScript):
		return "invalid_script"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrUserDenied):
		return "user_denied"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrSigningFailed):
		return "signing_failed"
	default:
		return "bad_state"
	}
}
