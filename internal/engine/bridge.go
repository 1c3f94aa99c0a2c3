package engine

import (
	"fmt"

	"github.com/roach88/tabula/internal/grid"
)

// EvalError is a user-visible evaluation failure: malformed code, a bad
// reference, a circular read. It becomes cell content, never an engine
// failure.
type EvalError struct {
	Code grid.ErrorCode
	Msg  string
	Line int // 1-based source line, 0 if unknown
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Code, e.Msg, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// CellAccessor is the callback surface a formula evaluator reads cells
// through. Every read is recorded into the running code cell's
// cells-accessed set, which is what drives recomputation later; reads
// that touch a cell currently being evaluated fail with a circular
// reference.
type CellAccessor interface {
	// Values resolves ref (A1 style, possibly sheet-qualified or a table
	// name) and returns the referenced cells' display values row-major.
	Values(ref string) ([][]grid.CellValue, error)

	// Value is the single-cell convenience form of Values.
	Value(ref string) (grid.CellValue, error)
}

// FormulaEvaluator evaluates built-in formula code synchronously. The
// formula grammar itself lives outside this module; the engine only
// needs the value, and the read set it captures through the accessor.
//
// Injected at engine construction; the engine never reaches into ambient
// state to find an evaluator.
type FormulaEvaluator interface {
	Evaluate(code string, pos grid.SheetPos, cells CellAccessor) (grid.Value, error)
}

// RunRequest is the outbound message to an external script interpreter
// or database connector. The transaction id is the correlation key the
// collaborator must echo back.
type RunRequest struct {
	TransactionID TxnID         `json:"transaction_id"`
	Pos           grid.SheetPos `json:"position"`
	Language      grid.Language `json:"language"`
	Code          string        `json:"code"`
}

// RunResult is the inbound message resuming a suspended transaction:
// either a value (an array becomes a data table) or a structured error,
// plus captured output and the cell rectangles the run read.
type RunResult struct {
	Value         grid.Value       `json:"value"`
	Err           *grid.RunError   `json:"err,omitempty"`
	StdOut        string           `json:"std_out,omitempty"`
	StdErr        string           `json:"std_err,omitempty"`
	CellsAccessed []grid.SheetRect `json:"cells_accessed,omitempty"`
}

// CodeRunner dispatches asynchronous code execution to an external
// collaborator. Dispatch must not block: it hands the request off and
// returns. The collaborator later calls Engine.CompleteAsync with the
// same transaction id.
//
// A non-nil error means the collaborator cannot accept the request at
// all (interpreter not loaded, connector down); the engine then records
// an error result synchronously with no suspension.
type CodeRunner interface {
	Dispatch(req RunRequest) error
}
