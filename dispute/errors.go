package dispute

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation signals a required domain field is missing or out of vocabulary.
	ErrValidation = errors.New("dispute: validation failed")
	// ErrNotFound signals the record is absent or belongs to another owner.
	ErrNotFound = errors.New("dispute: not found")
	// ErrConflict signals an explicitly proposed case number is already taken.
	ErrConflict = errors.New("dispute: conflict")
	// ErrAllocationExhausted signals repeated case-number collisions.
	ErrAllocationExhausted = errors.New("dispute: case number allocation exhausted")

	// ErrNoRecord is returned by Gateway reads that match no row.
	ErrNoRecord = errors.New("dispute: no record")
	// ErrDuplicateCaseNumber is returned by Gateway writes rejected by the case-number index.
	ErrDuplicateCaseNumber = errors.New("dispute: duplicate case number")
)

// Machine-readable codes carried by *Error.
const (
	CodeOwnerRequired       = "OWNER_REQUIRED"
	CodeInvalidField        = "INVALID_FIELD"
	CodeCaseNotFound        = "DISPUTE_CASE_NOT_FOUND"
	CodeTaskNotFound        = "DISPUTE_TASK_NOT_FOUND"
	CodeNoteNotFound        = "DISPUTE_NOTE_NOT_FOUND"
	CodeEvidenceNotFound    = "DISPUTE_EVIDENCE_NOT_FOUND"
	CodeCaseNumberConflict  = "CASE_NUMBER_CONFLICT"
	CodeCaseNumberExhausted = "CASE_NUMBER_EXHAUSTED"
)

// Error is a domain failure. Kind is one of the Err* sentinels above and is
// matched by errors.Is.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(field, message string) *Error {
	return &Error{Kind: ErrValidation, Code: CodeInvalidField, Message: field + " " + message}
}

func notFound(code, what, id string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: fmt.Sprintf("%s %s not found", what, id)}
}

// CodeOf returns the machine-readable code of a domain error, or "" otherwise.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HTTPStatus maps an error to the status the request layer should answer with.
// Not-found never distinguishes "absent" from "owned by someone else".
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
