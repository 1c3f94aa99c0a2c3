package testutil

import (
	"strconv"
	"strings"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/grid"
)

// StubEvaluator is a deliberately small FormulaEvaluator: enough surface
// for the engine's contract tests without dragging in a real grammar
// (the formula language lives outside this module).
//
// Supported forms, after an optional leading "=":
//
//	5                      numeric literal
//	A1, Sheet2!B3          cell reference (read through the accessor)
//	A1*2, A1+B1-3          left-to-right chains of + - * /
//	SUM(A1:B2)             sum over a range or named table
//	{1,2;3,4}              numeric array literal (rows by ';')
//
// Blank cells read as 0; text cells are a #VALUE! error.
type StubEvaluator struct{}

// Evaluate implements engine.FormulaEvaluator.
func (StubEvaluator) Evaluate(code string, _ grid.SheetPos, cells engine.CellAccessor) (grid.Value, error) {
	src := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(code), "="))
	if src == "" {
		return grid.ScalarValue(grid.Blank{}), nil
	}
	if strings.HasPrefix(src, "{") {
		return parseArrayLiteral(src)
	}
	n, err := evalChain(src, cells)
	if err != nil {
		return grid.Value{}, err
	}
	return grid.ScalarValue(grid.Number(n)), nil
}

// evalChain evaluates term (op term)* strictly left to right. No
// operator precedence; the stub does not need it.
func evalChain(src string, cells engine.CellAccessor) (float64, error) {
	terms, ops, err := splitChain(src)
	if err != nil {
		return 0, err
	}
	acc, err := evalTerm(terms[0], cells)
	if err != nil {
		return 0, err
	}
	for i, o := range ops {
		rhs, err := evalTerm(terms[i+1], cells)
		if err != nil {
			return 0, err
		}
		switch o {
		case '+':
			acc += rhs
		case '-':
			acc -= rhs
		case '*':
			acc *= rhs
		case '/':
			if rhs == 0 {
				return 0, &engine.EvalError{Code: grid.ErrCodeDiv0, Msg: "division by zero"}
			}
			acc /= rhs
		}
	}
	return acc, nil
}

// splitChain splits on top-level + - * /, keeping parenthesized function
// arguments intact.
func splitChain(src string) (terms []string, ops []byte, err error) {
	depth := 0
	start := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '(':
			depth++
		case ')':
			depth--
		case '+', '-', '*', '/':
			if depth == 0 && i > start {
				terms = append(terms, src[start:i])
				ops = append(ops, c)
				start = i + 1
			}
		}
	}
	if start >= len(src) {
		return nil, nil, &engine.EvalError{Code: grid.ErrCodeValue, Msg: "trailing operator"}
	}
	terms = append(terms, src[start:])
	return terms, ops, nil
}

func evalTerm(term string, cells engine.CellAccessor) (float64, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return 0, &engine.EvalError{Code: grid.ErrCodeValue, Msg: "empty term"}
	}
	if n, err := strconv.ParseFloat(term, 64); err == nil {
		return n, nil
	}
	if rest, ok := strings.CutPrefix(strings.ToUpper(term), "SUM("); ok && strings.HasSuffix(rest, ")") {
		// Preserve the original casing of the argument for sheet names.
		arg := term[4 : len(term)-1]
		vals, err := cells.Values(arg)
		if err != nil {
			return 0, err
		}
		var sum float64
		for _, row := range vals {
			for _, v := range row {
				n, err := numeric(v)
				if err != nil {
					return 0, err
				}
				sum += n
			}
		}
		return sum, nil
	}
	v, err := cells.Value(term)
	if err != nil {
		return 0, err
	}
	return numeric(v)
}

func numeric(v grid.CellValue) (float64, error) {
	switch n := v.(type) {
	case grid.Number:
		return float64(n), nil
	case grid.Blank, nil:
		return 0, nil
	case grid.Logical:
		if n {
			return 1, nil
		}
		return 0, nil
	case grid.ErrorValue:
		return 0, &engine.EvalError{Code: n.Code, Msg: n.Msg}
	default:
		return 0, &engine.EvalError{Code: grid.ErrCodeValue, Msg: "not a number"}
	}
}

func parseArrayLiteral(src string) (grid.Value, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(src, "{"), "}")
	rows := strings.Split(body, ";")
	cells := make([][]grid.CellValue, len(rows))
	for y, row := range rows {
		cols := strings.Split(row, ",")
		cells[y] = make([]grid.CellValue, len(cols))
		for x, col := range cols {
			n, err := strconv.ParseFloat(strings.TrimSpace(col), 64)
			if err != nil {
				return grid.Value{}, &engine.EvalError{Code: grid.ErrCodeValue, Msg: "bad array literal"}
			}
			cells[y][x] = grid.Number(n)
		}
	}
	return grid.ArrayValue(cells), nil
}
