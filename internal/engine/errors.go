package engine

import (
	"errors"
	"fmt"
)

// ErrNothingToUndo is returned by Undo on an empty undo stack.
var ErrNothingToUndo = errors.New("engine: nothing to undo")

// ErrNothingToRedo is returned by Redo on an empty redo stack.
var ErrNothingToRedo = errors.New("engine: nothing to redo")

// EngineError represents an internal condition fatal to one transaction.
// User-input errors, spill conflicts, and bridge failures never produce
// an EngineError: they are recovered into cell content. Only logic errors
// (resume with an unknown id, an operation the store cannot apply)
// surface here, and they must never corrupt the grid.
type EngineError struct {
	Code EngineErrorCode
	Txn  TxnID
	Msg  string
}

// EngineErrorCode categorizes engine errors.
type EngineErrorCode string

const (
	// ErrCodeUnknownTxn indicates an async result arrived for a
	// transaction that is not awaiting one.
	ErrCodeUnknownTxn EngineErrorCode = "UNKNOWN_TRANSACTION"

	// ErrCodeApplyFailed indicates the store rejected an operation.
	ErrCodeApplyFailed EngineErrorCode = "APPLY_FAILED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Txn != "" {
		return fmt.Sprintf("%s: %s (txn=%s)", e.Code, e.Msg, e.Txn)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// IsUnknownTxn reports whether err is an unknown-transaction error.
// Uses errors.As to handle wrapped errors.
func IsUnknownTxn(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeUnknownTxn
	}
	return false
}

// IsApplyFailed reports whether err records a store rejection.
func IsApplyFailed(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeApplyFailed
	}
	return false
}
