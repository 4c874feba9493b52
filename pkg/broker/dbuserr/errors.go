// Package dbuserr carries the broker's method-error taxonomy: a small set of
// error codes, each bound one-to-one to the D-Bus wire error name it is
// reported under. Handlers return a *Error instead of a bare error so the
// router can turn any failure into an `error` message without a second
// classification step.
package dbuserr

import "fmt"

// Code identifies the kind of failure a bus method produced.
type Code int

const (
	AccessDenied Code = iota + 1
	Failed
	InvalidArgs
	UnknownMethod
	UnknownInterface
	UnknownProperty
	PropertyReadOnly
	ServiceUnknown
	ServiceNotFound
	NameHasNoOwner
	MatchRuleInvalid
	MatchRuleNotFound
)

// wireName is the org.freedesktop.DBus.Error.* string sent on the wire; it is
// part of the external contract and must never change independently of Code.
func (c Code) wireName() string {
	switch c {
	case AccessDenied:
		return "org.freedesktop.DBus.Error.AccessDenied"
	case Failed:
		return "org.freedesktop.DBus.Error.Failed"
	case InvalidArgs:
		return "org.freedesktop.DBus.Error.InvalidArgs"
	case UnknownMethod:
		return "org.freedesktop.DBus.Error.UnknownMethod"
	case UnknownInterface:
		return "org.freedesktop.DBus.Error.UnknownInterface"
	case UnknownProperty:
		return "org.freedesktop.DBus.Error.UnknownProperty"
	case PropertyReadOnly:
		return "org.freedesktop.DBus.Error.PropertyReadOnly"
	case ServiceUnknown:
		return "org.freedesktop.DBus.Error.ServiceUnknown"
	case ServiceNotFound:
		return "org.freedesktop.DBus.Error.ServiceNotFound"
	case NameHasNoOwner:
		return "org.freedesktop.DBus.Error.NameHasNoOwner"
	case MatchRuleInvalid:
		return "org.freedesktop.DBus.Error.MatchRuleInvalid"
	case MatchRuleNotFound:
		return "org.freedesktop.DBus.Error.MatchRuleNotFound"
	default:
		return "org.freedesktop.DBus.Error.Failed"
	}
}

// Error is a bus method failure: a code (for programmatic dispatch) paired
// with a human-readable message (for the error reply's single string
// argument, the D-Bus convention for method errors).
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code.wireName(), e.Message)
}

// WireName returns the org.freedesktop.DBus.Error.* string for the reply.
func (e *Error) WireName() string {
	return e.Code.wireName()
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewAccessDenied(format string, args ...any) *Error {
	return New(AccessDenied, format, args...)
}

func NewFailed(format string, args ...any) *Error {
	return New(Failed, format, args...)
}

func NewInvalidArgs(format string, args ...any) *Error {
	return New(InvalidArgs, format, args...)
}

func NewUnknownMethod(iface, member string) *Error {
	return New(UnknownMethod, "No such method %q on interface %q", member, iface)
}

func NewUnknownInterface(iface string) *Error {
	return New(UnknownInterface, "No such interface %q", iface)
}

func NewUnknownProperty(iface, name string) *Error {
	return New(UnknownProperty, "No such property %q on interface %q", name, iface)
}

func NewPropertyReadOnly(name string) *Error {
	return New(PropertyReadOnly, "Property %q is read-only", name)
}

func NewServiceUnknown(name string) *Error {
	return New(ServiceUnknown, "The name %s is not registered", name)
}

func NewServiceNotFound(name string) *Error {
	return New(ServiceNotFound, "The name %s was not provided by any .service files", name)
}

func NewNameHasNoOwner(name string) *Error {
	return New(NameHasNoOwner, "Could not get owner of name %q: no such name", name)
}

func NewMatchRuleInvalid(reason string) *Error {
	return New(MatchRuleInvalid, "Unable to parse match rule: %s", reason)
}

func NewMatchRuleNotFound() *Error {
	return New(MatchRuleNotFound, "The given match rule wasn't found and can't be removed")
}

// Is reports whether err is a *Error of the given code, for callers that
// only care about classification (e.g. tests).
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
