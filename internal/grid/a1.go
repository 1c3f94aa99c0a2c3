package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// RefContext is what the A1 resolver needs to turn a textual reference
// into sheet coordinates: the sheet the code lives on, plus the grid's
// sheet names and table names.
type RefContext struct {
	DefaultSheet SheetID
	SheetsByName map[string]SheetID
	TablesByName map[string]SheetRect
}

// RefError reports an unresolvable reference. Evaluation surfaces it to
// the user as a #REF! or #NAME? cell error rather than failing the engine.
type RefError struct {
	Ref  string
	Code ErrorCode
	Msg  string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, e.Ref)
}

// CellError converts the resolution failure to its cell value form.
func (e *RefError) CellError() ErrorValue {
	return ErrorValue{Code: e.Code, Msg: e.Msg}
}

// ParseA1 resolves an A1-style reference against ctx. Accepted forms:
//
//	A1            single cell on the default sheet
//	$B$2          absolute markers are accepted and ignored
//	A1:C3         rectangular range
//	Sheet2!A1     sheet-qualified
//	'My Sheet'!A1:B2
//	SalesTable    a named data table's occupied rectangle
//
// Display coordinates are 1-based; cell A1 is position (0, 0).
func ParseA1(ref string, ctx RefContext) (SheetRect, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SheetRect{}, &RefError{Ref: ref, Code: ErrCodeRef, Msg: "empty reference"}
	}

	sheet := ctx.DefaultSheet
	body := ref
	if name, rest, ok := splitSheetName(ref); ok {
		id, found := ctx.SheetsByName[name]
		if !found {
			return SheetRect{}, &RefError{Ref: ref, Code: ErrCodeRef, Msg: fmt.Sprintf("unknown sheet %q", name)}
		}
		sheet = id
		body = rest
	}

	if lo, hi, ok := strings.Cut(body, ":"); ok {
		a, errA := parseCellRef(lo)
		b, errB := parseCellRef(hi)
		if errA == nil && errB == nil {
			return SheetRect{Sheet: sheet, Rect: NewRect(a, b)}, nil
		}
		return SheetRect{}, &RefError{Ref: ref, Code: ErrCodeRef, Msg: "malformed range"}
	}

	if p, err := parseCellRef(body); err == nil {
		return SheetRect{Sheet: sheet, Rect: SingleRect(p)}, nil
	}

	// Not cell-shaped: try a named table.
	if body == ref {
		if sr, ok := ctx.TablesByName[ref]; ok {
			return sr, nil
		}
	}
	return SheetRect{}, &RefError{Ref: ref, Code: ErrCodeName, Msg: "unrecognized reference"}
}

// splitSheetName peels a leading sheet qualifier off a reference.
// Handles both bare (Sheet2!) and quoted ('My Sheet'!) forms.
func splitSheetName(ref string) (name, rest string, ok bool) {
	if strings.HasPrefix(ref, "'") {
		end := strings.Index(ref[1:], "'")
		if end < 0 || len(ref) <= end+2 || ref[end+2] != '!' {
			return "", "", false
		}
		return ref[1 : end+1], ref[end+3:], true
	}
	if i := strings.IndexByte(ref, '!'); i > 0 {
		return ref[:i], ref[i+1:], true
	}
	return "", "", false
}

// parseCellRef parses a single cell reference like "A1" or "$AB$12".
func parseCellRef(s string) (Pos, error) {
	s = strings.TrimPrefix(s, "$")
	i := 0
	for i < len(s) && isColLetter(s[i]) {
		i++
	}
	if i == 0 {
		return Pos{}, fmt.Errorf("no column letters in %q", s)
	}
	col, err := ParseColumnName(s[:i])
	if err != nil {
		return Pos{}, err
	}
	rowPart := strings.TrimPrefix(s[i:], "$")
	if rowPart == "" {
		return Pos{}, fmt.Errorf("no row digits in %q", s)
	}
	row, err := strconv.ParseInt(rowPart, 10, 64)
	if err != nil || row < 1 {
		return Pos{}, fmt.Errorf("bad row in %q", s)
	}
	return Pos{X: col, Y: row - 1}, nil
}

func isColLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ParseColumnName converts column letters to a zero-based column index
// ("A" -> 0, "Z" -> 25, "AA" -> 26).
func ParseColumnName(name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	var col int64
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("bad column letter %q", name[i])
		}
		col = col*26 + int64(c-'A') + 1
	}
	return col - 1, nil
}

// ColumnName converts a zero-based column index to letters. Negative
// columns (the grid is unbounded) render as "n<index>" since A1 notation
// cannot express them.
func ColumnName(x int64) string {
	if x < 0 {
		return fmt.Sprintf("n%d", -x)
	}
	var b [8]byte
	i := len(b)
	n := x + 1
	for n > 0 {
		i--
		n--
		b[i] = byte('A' + n%26)
		n /= 26
	}
	return string(b[i:])
}

// A1 renders p in A1 notation ("A1" for (0,0)).
func (p Pos) A1() string {
	if p.Y < 0 {
		return fmt.Sprintf("%sn%d", ColumnName(p.X), -p.Y)
	}
	return fmt.Sprintf("%s%d", ColumnName(p.X), p.Y+1)
}

// A1 renders r as a range ("A1:B2"), collapsing single cells.
func (r Rect) A1() string {
	if r.Min == r.Max {
		return r.Min.A1()
	}
	return r.Min.A1() + ":" + r.Max.A1()
}
