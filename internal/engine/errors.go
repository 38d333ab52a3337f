package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes registry and refresh errors.
type ErrorCode string

const (
	// CodeIdentifierExists: a definition with this identifier is already registered.
	CodeIdentifierExists ErrorCode = "IDENTIFIER_EXISTS"

	// CodeSourceTargetMustDiffer: source and target are the same collection.
	CodeSourceTargetMustDiffer ErrorCode = "SOURCE_TARGET_MUST_DIFFER"

	// CodeSyncNeedsContent: the definition has no stage-1 fields.
	CodeSyncNeedsContent ErrorCode = "SYNC_NEEDS_CONTENT"

	// CodeDuplicateSyncForPair: another definition already covers this (source, target) pair.
	CodeDuplicateSyncForPair ErrorCode = "DUPLICATE_SYNC_FOR_PAIR"

	// CodeRefreshCannotTargetSource: a refresh binding triggers on the definition's own source.
	CodeRefreshCannotTargetSource ErrorCode = "REFRESH_CANNOT_TARGET_SOURCE"

	// CodeRefreshNeedsExistingIdentifier: a refresh binding names an unknown definition.
	CodeRefreshNeedsExistingIdentifier ErrorCode = "REFRESH_NEEDS_EXISTING_IDENTIFIER"

	// CodeNotFound: refresh or deregistration names an unknown definition.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInvalidArgument: a definition or binding is structurally incomplete
	// (missing collection, nil field function, duplicate field name).
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error is returned synchronously by Register, RegisterRefreshBinding,
// Deregister, RefreshManually and RefreshAll.
//
// Errors compare equal under errors.Is when their codes match, so callers can
// test against the sentinels:
//
//	if errors.Is(err, engine.ErrIdentifierExists) { ... }
type Error struct {
	Code ErrorCode

	// ID is the definition identifier the call referenced.
	ID string

	Message string
}

// Sentinels for errors.Is.
var (
	ErrIdentifierExists               = &Error{Code: CodeIdentifierExists}
	ErrSourceTargetMustDiffer         = &Error{Code: CodeSourceTargetMustDiffer}
	ErrSyncNeedsContent               = &Error{Code: CodeSyncNeedsContent}
	ErrDuplicateSyncForPair           = &Error{Code: CodeDuplicateSyncForPair}
	ErrRefreshCannotTargetSource      = &Error{Code: CodeRefreshCannotTargetSource}
	ErrRefreshNeedsExistingIdentifier = &Error{Code: CodeRefreshNeedsExistingIdentifier}
	ErrNotFound                       = &Error{Code: CodeNotFound}
	ErrInvalidArgument                = &Error{Code: CodeInvalidArgument}
)

func newError(code ErrorCode, id, format string, args ...any) *Error {
	return &Error{Code: code, ID: id, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Stage names the pipeline stage a ComputeError came from.
type Stage string

const (
	StageSync     Stage = "sync"
	StagePostSync Stage = "postSync"
)

// ComputeError is a failed field function. It aborts the write of one
// document only.
type ComputeError struct {
	DefinitionID string
	DocumentID   string
	Stage        Stage
	Field        string
	Err          error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %s/%s: %s field %q: %v", e.DefinitionID, e.DocumentID, e.Stage, e.Field, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// IsComputeError returns true if the error is (or wraps) a ComputeError.
func IsComputeError(err error) bool {
	var ce *ComputeError
	return errors.As(err, &ce)
}

// CycleError reports that a flow tried to write the same output for the same
// document twice while something else kept changing the target in between.
// The write is skipped.
type CycleError struct {
	FlowToken    string
	DefinitionID string
	DocumentID   string
	OutputHash   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("flow %s: %s/%s oscillates (output %s written twice)",
		e.FlowToken, e.DefinitionID, e.DocumentID, shortHash(e.OutputHash))
}

// IsCycleError returns true if the error is (or wraps) a CycleError.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
