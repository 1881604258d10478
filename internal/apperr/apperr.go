// Package apperr provides typed application error kinds so the HTTP
// admission layer can map any error returned by the core to the right
// envelope code by a type switch instead of string matching.
package apperr

import "fmt"

type Kind string

const (
	KindUnsupportedPlugin  Kind = "unsupported_plugin_type"
	KindInvalidConfig      Kind = "invalid_config"
	KindNotFound           Kind = "not_found"
	KindAlreadyRunning     Kind = "already_running"
	KindPersistenceFailure Kind = "persistence_failure"
)

// Envelope codes. Some kinds carry more than one code depending on the
// calling operation (e.g. not-found on start vs. on fetch).
const (
	CodeSuccess               = 10000
	CodeNotFoundOnStart       = 10001
	CodePersistenceReadFail   = 10003
	CodePersistenceWriteFail  = 10005
	CodeUnsupportedPluginType = 10006
	CodeAlreadyRunningUpdate  = 10008
	CodeNotFoundOnFetch       = 10200
	CodePersistenceAfterStart = 10109
	CodeInvalidConfig         = 400
)

// Error is a typed application error carrying the kind and the envelope
// code the HTTP layer surfaces as err_no. Code is used as given; there
// is no per-kind default for a zero Code.
type Error struct {
	Kind Kind
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code int, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

func NotFound(msg string, code int) *Error {
	return New(KindNotFound, code, msg)
}

func UnsupportedPlugin(name string) *Error {
	return New(KindUnsupportedPlugin, CodeUnsupportedPluginType, fmt.Sprintf("unsupported plugin type %q", name))
}

func InvalidConfig(msg string) *Error {
	return New(KindInvalidConfig, CodeInvalidConfig, msg)
}

func PersistenceRead(err error) *Error {
	return Wrap(KindPersistenceFailure, CodePersistenceReadFail, "catalog read failed", err)
}

func PersistenceWrite(err error) *Error {
	return Wrap(KindPersistenceFailure, CodePersistenceWriteFail, "catalog write failed", err)
}

func PersistenceAfterStart(err error) *Error {
	return Wrap(KindPersistenceFailure, CodePersistenceAfterStart, "catalog status write failed after dispatch", err)
}
