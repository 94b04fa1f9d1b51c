// Package damsonerr implements the flat error taxonomy of spec.md §7.
// Every fatal condition named anywhere in the loader is one of these
// codes; there is no recovery beyond the one caller-supplied callback.
package damsonerr

import "fmt"

// Code is one entry of the flat taxonomy in spec.md §7.
type Code int

const (
	ConfigMissing Code = iota
	ConfigMalformed
	BootFileMissing
	BootFileTooLarge
	BootSend
	SocketCreate
	SocketBind
	BadIP
	SdpSend
	SdpRecv
	SdpTimeout
	DebugRecv
	LoadFileOpen
	StartAppOnMonitor
	VirtualPortRange
	CoreIDRange
	OutOfCores
	MappingHashOverflow
	InterruptHashOverflow
	RoutingTableOverflow
	DtcmTooBig
	ValidationMismatch
)

var names = map[Code]string{
	ConfigMissing:         "ConfigMissing",
	ConfigMalformed:       "ConfigMalformed",
	BootFileMissing:       "BootFileMissing",
	BootFileTooLarge:      "BootFileTooLarge",
	BootSend:              "BootSend",
	SocketCreate:          "SocketCreate",
	SocketBind:            "SocketBind",
	BadIP:                 "BadIP",
	SdpSend:               "SdpSend",
	SdpRecv:               "SdpRecv",
	SdpTimeout:            "SdpTimeout",
	DebugRecv:             "DebugRecv",
	LoadFileOpen:          "LoadFileOpen",
	StartAppOnMonitor:     "StartAppOnMonitor",
	VirtualPortRange:      "VirtualPortRange",
	CoreIDRange:           "CoreIDRange",
	OutOfCores:            "OutOfCores",
	MappingHashOverflow:   "MappingHashOverflow",
	InterruptHashOverflow: "InterruptHashOverflow",
	RoutingTableOverflow:  "RoutingTableOverflow",
	DtcmTooBig:            "DtcmTooBig",
	ValidationMismatch:    "ValidationMismatch",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error wraps a taxonomy Code with contextual detail. It implements the
// standard error interface and supports errors.Is/As via Code().
type Error struct {
	code   Code
	detail string
	cause  error
}

// New builds an Error with a formatted detail message.
func New(code Code, format string, args ...any) *Error {
	return &Error{code: code, detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{code: code, detail: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the taxonomy code this error carries.
func (e *Error) Code() Code { return e.code }

// CodeOf extracts the taxonomy code from err, if it is (or wraps) a
// *damsonerr.Error. The second return is false for any other error.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if ok := asError(err, &de); ok {
		return de.code, true
	}
	return 0, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
