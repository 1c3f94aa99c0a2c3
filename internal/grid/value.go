package grid

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ValueKind tags the concrete type of a CellValue.
type ValueKind string

const (
	KindBlank    ValueKind = "blank"
	KindText     ValueKind = "text"
	KindNumber   ValueKind = "number"
	KindLogical  ValueKind = "logical"
	KindError    ValueKind = "error"
	KindInstant  ValueKind = "instant"
	KindDuration ValueKind = "duration"
	KindCode     ValueKind = "code"
)

// CellValue is a sealed interface over the cell value variants.
// Only the types in this file implement it. Equality is value-based:
// use Equal rather than == so time values compare correctly.
type CellValue interface {
	Kind() ValueKind
	cellValue() // sealed
}

// Blank is the value of a cell that has never been written, or was cleared.
type Blank struct{}

func (Blank) Kind() ValueKind { return KindBlank }
func (Blank) cellValue()      {}

// Text is a string cell value.
type Text string

func (Text) Kind() ValueKind { return KindText }
func (Text) cellValue()      {}

// Number is a numeric cell value.
type Number float64

func (Number) Kind() ValueKind { return KindNumber }
func (Number) cellValue()      {}

// Logical is a boolean cell value.
type Logical bool

func (Logical) Kind() ValueKind { return KindLogical }
func (Logical) cellValue()      {}

// ErrorCode categorizes cell-level errors, using the familiar display forms.
type ErrorCode string

const (
	ErrCodeRef      ErrorCode = "#REF!"
	ErrCodeValue    ErrorCode = "#VALUE!"
	ErrCodeDiv0     ErrorCode = "#DIV/0!"
	ErrCodeName     ErrorCode = "#NAME?"
	ErrCodeSpill    ErrorCode = "#SPILL!"
	ErrCodeCircular ErrorCode = "#CIRCULAR!"
	ErrCodeRun      ErrorCode = "#ERROR!"
)

// ErrorValue is an error cell value. Never fatal to the engine: evaluation
// failures become ErrorValues visible in the grid.
type ErrorValue struct {
	Code ErrorCode `json:"code"`
	Msg  string    `json:"msg,omitempty"`
}

func (ErrorValue) Kind() ValueKind { return KindError }
func (ErrorValue) cellValue()      {}

func (e ErrorValue) String() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Msg)
}

// TimeGrain distinguishes date-only, time-only, and full timestamps.
type TimeGrain string

const (
	GrainDate     TimeGrain = "date"
	GrainTime     TimeGrain = "time"
	GrainDateTime TimeGrain = "datetime"
)

// Instant is a calendar/clock cell value at one of three grains.
type Instant struct {
	When  time.Time `json:"when"`
	Grain TimeGrain `json:"grain"`
}

func (Instant) Kind() ValueKind { return KindInstant }
func (Instant) cellValue()      {}

// Duration is an elapsed-time cell value.
type Duration time.Duration

func (Duration) Kind() ValueKind { return KindDuration }
func (Duration) cellValue()      {}

// CodeCell is the value at a data table's anchor: the code declaration
// itself rather than a computed output. The table holds the output.
type CodeCell struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
}

func (CodeCell) Kind() ValueKind { return KindCode }
func (CodeCell) cellValue()      {}

// IsBlank reports whether v is nil or Blank.
func IsBlank(v CellValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Blank)
	return ok
}

// Equal reports value equality between two cell values.
func Equal(a, b CellValue) bool {
	if a == nil {
		a = Blank{}
	}
	if b == nil {
		b = Blank{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if ai, ok := a.(Instant); ok {
		bi := b.(Instant)
		return ai.Grain == bi.Grain && ai.When.Equal(bi.When)
	}
	return a == b
}

// kindRank orders kinds for cross-kind comparison: blanks sort first,
// then numbers, text, logicals, temporal values, errors, code.
var kindRank = map[ValueKind]int{
	KindBlank:    0,
	KindNumber:   1,
	KindText:     2,
	KindLogical:  3,
	KindInstant:  4,
	KindDuration: 5,
	KindError:    6,
	KindCode:     7,
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

// Compare returns -1, 0, or 1 ordering a relative to b. Ordering is total:
// values of different kinds order by kind rank, text orders by Unicode
// collation rather than raw byte order.
func Compare(a, b CellValue) int {
	if a == nil {
		a = Blank{}
	}
	if b == nil {
		b = Blank{}
	}
	if ra, rb := kindRank[a.Kind()], kindRank[b.Kind()]; ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Blank:
		return 0
	case Number:
		bv := b.(Number)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case Text:
		collatorMu.Lock()
		defer collatorMu.Unlock()
		return collator.CompareString(string(av), string(b.(Text)))
	case Logical:
		bv := b.(Logical)
		switch {
		case !bool(av) && bool(bv):
			return -1
		case bool(av) && !bool(bv):
			return 1
		}
		return 0
	case Instant:
		return av.When.Compare(b.(Instant).When)
	case Duration:
		bv := b.(Duration)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case ErrorValue:
		bv := b.(ErrorValue)
		switch {
		case av.Code < bv.Code:
			return -1
		case av.Code > bv.Code:
			return 1
		case av.Msg < bv.Msg:
			return -1
		case av.Msg > bv.Msg:
			return 1
		}
		return 0
	case CodeCell:
		bv := b.(CodeCell)
		switch {
		case av.Language < bv.Language:
			return -1
		case av.Language > bv.Language:
			return 1
		case av.Code < bv.Code:
			return -1
		case av.Code > bv.Code:
			return 1
		}
		return 0
	}
	return 0
}

// valueEnvelope is the wire form of a CellValue: a kind tag plus payload.
type valueEnvelope struct {
	Kind ValueKind       `json:"kind"`
	V    json.RawMessage `json:"v,omitempty"`
}

// MarshalCellValue serializes v deterministically.
func MarshalCellValue(v CellValue) ([]byte, error) {
	if v == nil {
		v = Blank{}
	}
	env := valueEnvelope{Kind: v.Kind()}
	if _, blank := v.(Blank); !blank {
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s value: %w", v.Kind(), err)
		}
		env.V = payload
	}
	return json.Marshal(env)
}

// UnmarshalCellValue is the inverse of MarshalCellValue.
func UnmarshalCellValue(data []byte) (CellValue, error) {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal cell value envelope: %w", err)
	}
	var v CellValue
	var err error
	switch env.Kind {
	case KindBlank, "":
		return Blank{}, nil
	case KindText:
		var t Text
		err = json.Unmarshal(env.V, &t)
		v = t
	case KindNumber:
		var n Number
		err = json.Unmarshal(env.V, &n)
		v = n
	case KindLogical:
		var l Logical
		err = json.Unmarshal(env.V, &l)
		v = l
	case KindError:
		var e ErrorValue
		err = json.Unmarshal(env.V, &e)
		v = e
	case KindInstant:
		var i Instant
		err = json.Unmarshal(env.V, &i)
		v = i
	case KindDuration:
		var d Duration
		err = json.Unmarshal(env.V, &d)
		v = d
	case KindCode:
		var c CodeCell
		err = json.Unmarshal(env.V, &c)
		v = c
	default:
		return nil, fmt.Errorf("unknown cell value kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", env.Kind, err)
	}
	return v, nil
}

// MarshalCellMatrix serializes a row-major matrix of cell values.
func MarshalCellMatrix(cells [][]CellValue) ([]byte, error) {
	rows := make([]json.RawMessage, len(cells))
	for y, row := range cells {
		cols := make([]json.RawMessage, len(row))
		for x, v := range row {
			raw, err := MarshalCellValue(v)
			if err != nil {
				return nil, err
			}
			cols[x] = raw
		}
		rowRaw, err := json.Marshal(cols)
		if err != nil {
			return nil, err
		}
		rows[y] = rowRaw
	}
	return json.Marshal(rows)
}

// UnmarshalCellMatrix is the inverse of MarshalCellMatrix.
func UnmarshalCellMatrix(data []byte) ([][]CellValue, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal cell matrix: %w", err)
	}
	cells := make([][]CellValue, len(rows))
	for y, row := range rows {
		cells[y] = make([]CellValue, len(row))
		for x, raw := range row {
			v, err := UnmarshalCellValue(raw)
			if err != nil {
				return nil, err
			}
			cells[y][x] = v
		}
	}
	return cells, nil
}
