// Package apdu defines the primitive application-layer PDU types of
// spec.md §6.3 and the Abort/Reject/Error taxonomy of §7 as first-class
// Go values, after the teacher's SDOAbortCode. Abort and Reject are
// structs holding a typed-integer reason (plus a vendor code), with an
// Error()/Description() method pair and a reason-to-string map; Error is
// a (class, code) struct with an Error() method only.
package apdu

import "fmt"

// PDUType is the 4-bit PDU-type carried in the first APDU octet.
type PDUType byte

const (
	PDUConfirmedRequest PDUType = 0x0
	PDUUnconfirmedRequest PDUType = 0x1
	PDUSimpleACK          PDUType = 0x2
	PDUComplexACK         PDUType = 0x3
	PDUSegmentACK         PDUType = 0x4
	PDUError              PDUType = 0x5
	PDUReject             PDUType = 0x6
	PDUAbort              PDUType = 0x7
)

// AbortReason enumerates the Abort taxonomy of §7: fatal for one
// transaction.
type AbortReason uint8

const (
	AbortBufferOverflow AbortReason = iota
	AbortInvalidApduInThisState
	AbortPreemptedByHigherPriorityTask
	AbortSegmentationNotSupported
	AbortSecurityError
	AbortInsufficientSecurity
	AbortWindowSizeOutOfRange
	AbortApplicationExceededReplyTime
	AbortOutOfResources
	AbortTsmTimeout
	AbortApduTooLong
	AbortOther
	AbortProprietary
)

var abortDescriptions = map[AbortReason]string{
	AbortBufferOverflow:                "buffer overflow",
	AbortInvalidApduInThisState:        "invalid APDU in this state",
	AbortPreemptedByHigherPriorityTask: "preempted by higher priority task",
	AbortSegmentationNotSupported:      "segmentation not supported",
	AbortSecurityError:                 "security error",
	AbortInsufficientSecurity:          "insufficient security",
	AbortWindowSizeOutOfRange:          "window size out of range",
	AbortApplicationExceededReplyTime:  "application exceeded reply time",
	AbortOutOfResources:                "out of resources",
	AbortTsmTimeout:                    "transaction timed out",
	AbortApduTooLong:                   "apdu too long",
	AbortOther:                         "other",
	AbortProprietary:                   "proprietary",
}

// Abort is a fatal-for-one-transaction error. Code carries a vendor code
// when Reason is AbortProprietary.
type Abort struct {
	Reason AbortReason
	Code   uint16
}

func (a Abort) Error() string { return "abort: " + a.Description() }

func (a Abort) Description() string {
	if a.Reason == AbortProprietary {
		return fmt.Sprintf("proprietary(%d)", a.Code)
	}
	if d, ok := abortDescriptions[a.Reason]; ok {
		return d
	}
	return abortDescriptions[AbortOther]
}

// RejectReason enumerates the Reject taxonomy of §7: the peer's request
// was malformed.
type RejectReason uint8

const (
	RejectBufferOverflow RejectReason = iota
	RejectInconsistentParameters
	RejectInvalidParameterDataType
	RejectInvalidTag
	RejectMissingRequiredParameter
	RejectParameterOutOfRange
	RejectTooManyArguments
	RejectUndefinedEnumeration
	RejectUnrecognizedService
	RejectInvalidDataEncoding
	RejectOther
	RejectProprietary
)

var rejectDescriptions = map[RejectReason]string{
	RejectBufferOverflow:           "buffer overflow",
	RejectInconsistentParameters:   "inconsistent parameters",
	RejectInvalidParameterDataType: "invalid parameter data type",
	RejectInvalidTag:               "invalid tag",
	RejectMissingRequiredParameter: "missing required parameter",
	RejectParameterOutOfRange:      "parameter out of range",
	RejectTooManyArguments:         "too many arguments",
	RejectUndefinedEnumeration:     "undefined enumeration",
	RejectUnrecognizedService:      "unrecognized service",
	RejectInvalidDataEncoding:      "invalid data encoding",
	RejectOther:                    "other",
	RejectProprietary:              "proprietary",
}

// Reject is returned when a peer's confirmed request is well-formed
// enough to parse the service choice but malformed beyond that.
type Reject struct {
	Reason RejectReason
	Code   uint16
}

func (r Reject) Error() string { return "reject: " + r.Description() }

func (r Reject) Description() string {
	if r.Reason == RejectProprietary {
		return fmt.Sprintf("proprietary(%d)", r.Code)
	}
	if d, ok := rejectDescriptions[r.Reason]; ok {
		return d
	}
	return rejectDescriptions[RejectOther]
}

// ErrorClass is the first half of the (class, code) tuple a well-formed
// but denied request is answered with.
type ErrorClass uint8

const (
	ErrorClassDevice ErrorClass = iota
	ErrorClassObject
	ErrorClassProperty
	ErrorClassResources
	ErrorClassSecurity
	ErrorClassServices
	ErrorClassVT
	ErrorClassCommunication
)

// ErrorCode is the second half of the tuple. Unknown codes must be
// treated as (Services, Other) per §7.
type ErrorCode uint16

const (
	ErrorCodeOther ErrorCode = 0
)

// Error pairs an ErrorClass and ErrorCode, §7's "Error — peer's request
// was well-formed but denied".
type Error struct {
	Class ErrorClass
	Code  ErrorCode
}

func (e Error) Error() string {
	return fmt.Sprintf("error: class=%d code=%d", e.Class, e.Code)
}

// UnknownError normalizes an unrecognized (class, code) pair to
// (Services, Other), as §7 requires.
func UnknownError() Error {
	return Error{Class: ErrorClassServices, Code: ErrorCodeOther}
}
