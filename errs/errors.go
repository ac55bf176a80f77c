// Package errs defines the tagged error kinds shared across the driver.
//
// Every fallible operation in this module returns a plain error; callers
// that need to branch on the failure kind use errors.Is / errors.As against
// the sentinels and types below, the way controller.go's isDeviceBusyError
// inspects an error rather than introducing a panic path.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories spec'd for the driver.
type Kind int

const (
	KindTimeout Kind = iota
	KindHardwareHung
	KindOutOfTlbs
	KindArcMessageFailed
	KindInvalidAddress
	KindUnsupportedOperation
	KindTopologyError
	KindHarvestingInvalid
	KindMutexOwnerDead
	KindIoError
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindHardwareHung:
		return "HardwareHung"
	case KindOutOfTlbs:
		return "OutOfTlbs"
	case KindArcMessageFailed:
		return "ArcMessageFailed"
	case KindInvalidAddress:
		return "InvalidAddress"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	case KindTopologyError:
		return "TopologyError"
	case KindHarvestingInvalid:
		return "HarvestingInvalid"
	case KindMutexOwnerDead:
		return "MutexOwnerDead"
	case KindIoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the tagged error value every package returns for spec'd failure
// kinds. It wraps an optional underlying cause.
type Error struct {
	Kind   Kind
	Msg    string
	Status uint8 // set only for KindArcMessageFailed: the raw status byte
	Cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindArcMessageFailed {
		return fmt.Sprintf("%s: %s (status=0x%02x)", e.Kind, e.Msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errs.Timeout) match any *Error of that Kind,
// ignoring message/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func ArcFailed(status uint8) error {
	return &Error{Kind: KindArcMessageFailed, Msg: "ARC message failed", Status: status}
}

// ArcUnknownMessage reports the ARC firmware's distinguished 0xFF status:
// the message code itself was not recognized, as opposed to a firmware-side
// processing failure (any other status >= ArcResponseOkLimit).
func ArcUnknownMessage(status uint8) error {
	return &Error{Kind: KindArcMessageFailed, Msg: "message code not recognized by ARC firmware", Status: status}
}

// ArcResponseOkLimit is the status-byte threshold below which an ARC
// message response is OK (spec.md §4.4): status in [0, ArcResponseOkLimit)
// is success, 0xFF is "unknown message", anything else in between is a
// firmware-reported failure.
const ArcResponseOkLimit = 0x80

// ArcResponseUnknownStatus is the ARC firmware's "message code not
// recognized" status byte.
const ArcResponseUnknownStatus = 0xFF

// Sentinels usable with errors.Is(err, errs.Timeout), matching on Kind only.
var (
	Timeout              = &Error{Kind: KindTimeout}
	HardwareHung         = &Error{Kind: KindHardwareHung}
	OutOfTlbs            = &Error{Kind: KindOutOfTlbs}
	InvalidAddress       = &Error{Kind: KindInvalidAddress}
	UnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	TopologyError        = &Error{Kind: KindTopologyError}
	HarvestingInvalid    = &Error{Kind: KindHarvestingInvalid}
	MutexOwnerDead       = &Error{Kind: KindMutexOwnerDead}
	IoError              = &Error{Kind: KindIoError}
)

// KindOf extracts the Kind from err, if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
