package domain

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so callers can report them without a stack trace.
type Kind string

const (
	KindUnsupportedFormat      Kind = "UNSUPPORTED_FORMAT"
	KindDuplicateCollection    Kind = "DUPLICATE_COLLECTION"
	KindCollectionNotFound     Kind = "COLLECTION_NOT_FOUND"
	KindSchemaNotFound         Kind = "SCHEMA_NOT_FOUND"
	KindInvalidBackend         Kind = "INVALID_BACKEND"
	KindUnknownPrompt          Kind = "UNKNOWN_PROMPT"
	KindInvalidTemplateFormat  Kind = "INVALID_TEMPLATE_FORMAT"
	KindMissingTextKey         Kind = "MISSING_TEXT_KEY"
	KindInvalidPromptReference Kind = "INVALID_PROMPT_REFERENCE"
	KindInvalidArgument        Kind = "INVALID_ARGUMENT"
	KindBackend                Kind = "BACKEND_ERROR"
	KindModelService           Kind = "MODEL_SERVICE_ERROR"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrUnsupportedFormat      = &Error{Kind: KindUnsupportedFormat}
	ErrDuplicateCollection    = &Error{Kind: KindDuplicateCollection}
	ErrCollectionNotFound     = &Error{Kind: KindCollectionNotFound}
	ErrSchemaNotFound         = &Error{Kind: KindSchemaNotFound}
	ErrInvalidBackend         = &Error{Kind: KindInvalidBackend}
	ErrUnknownPrompt          = &Error{Kind: KindUnknownPrompt}
	ErrInvalidTemplateFormat  = &Error{Kind: KindInvalidTemplateFormat}
	ErrMissingTextKey         = &Error{Kind: KindMissingTextKey}
	ErrInvalidPromptReference = &Error{Kind: KindInvalidPromptReference}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument}
	ErrBackend                = &Error{Kind: KindBackend}
	ErrModelService           = &Error{Kind: KindModelService}
)

// Error is a typed pipeline error. Param names the offending value
// (collection, prompt, file, backend) so the message stays diagnosable.
type Error struct {
	Kind    Kind
	Param   string
	Message string
	Err     error
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, param, msg string, cause error) *Error {
	return &Error{Kind: kind, Param: param, Message: msg, Err: cause}
}

// Errorf builds an *Error with a formatted message and no cause.
func Errorf(kind Kind, param, format string, args ...any) *Error {
	return &Error{Kind: kind, Param: param, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Param != "" {
		msg += fmt.Sprintf(" (%q)", e.Param)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrCollectionNotFound) works
// for any collection.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// BackendError wraps a vector store failure. Typed errors pass through unchanged.
func BackendError(param string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return NewError(KindBackend, param, "vector store request failed", err)
}

// ModelServiceError wraps a language model or embedding service failure.
func ModelServiceError(param string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return NewError(KindModelService, param, "model service request failed", err)
}
