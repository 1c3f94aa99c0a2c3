// Package harness runs scripted edit scenarios against a fully wired
// engine (stub evaluator, scripted async runner, fixed transaction ids)
// and captures a deterministic trace for golden comparison.
package harness

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
	"github.com/roach88/tabula/internal/testutil"
)

// Scenario is a named sequence of steps applied to a one-sheet grid.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted action. Exactly one field should be set.
type Step struct {
	Set      *SetStep      `yaml:"set,omitempty"`
	Code     *CodeStep     `yaml:"code,omitempty"`
	Complete *CompleteStep `yaml:"complete,omitempty"`
	Undo     bool          `yaml:"undo,omitempty"`
	Redo     bool          `yaml:"redo,omitempty"`
}

// SetStep writes one typed value at an A1 cell.
type SetStep struct {
	Cell    string   `yaml:"cell"`
	Number  *float64 `yaml:"number,omitempty"`
	Text    *string  `yaml:"text,omitempty"`
	Logical *bool    `yaml:"logical,omitempty"`
}

// CodeStep sets code at a cell; async languages park the transaction
// until a complete step feeds the result back.
type CodeStep struct {
	Cell     string `yaml:"cell"`
	Language string `yaml:"language"`
	Source   string `yaml:"source"`
}

// CompleteStep resumes the oldest outstanding async dispatch.
type CompleteStep struct {
	Number *float64 `yaml:"number,omitempty"`
	Error  string   `yaml:"error,omitempty"`
}

// Load parses a scenario from YAML.
func Load(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("harness: parse scenario: %w", err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("harness: scenario has no name")
	}
	return &sc, nil
}

// LoadFile parses a scenario from a YAML file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read scenario: %w", err)
	}
	return Load(data)
}

// TraceEvent records one finalized transaction.
type TraceEvent struct {
	Txn    string   `json:"txn"`
	Source string   `json:"source"`
	Ops    []string `json:"ops"`
}

// Trace is the scenario's deterministic output: the finalize history
// plus the final visible cell contents.
type Trace struct {
	Name   string            `json:"name"`
	Events []TraceEvent      `json:"events"`
	Cells  map[string]string `json:"cells"`
}

// Run executes the scenario and returns its trace.
func Run(sc *Scenario) (*Trace, error) {
	g, sheet := grid.NewWithSheet()

	ids := make([]engine.TxnID, 256)
	for i := range ids {
		ids[i] = engine.TxnID(fmt.Sprintf("txn-%d", i+1))
	}
	runner := testutil.NewScriptedRunner()

	trace := &Trace{Name: sc.Name, Cells: map[string]string{}}
	eng := engine.New(g,
		engine.WithIDGenerator(engine.NewFixedGenerator(ids...)),
		engine.WithEvaluator(testutil.StubEvaluator{}),
		engine.WithRunner(runner),
		engine.WithFinalizeHook(func(t engine.Transaction) {
			ev := TraceEvent{Txn: string(t.ID), Source: string(t.Source), Ops: []string{}}
			for _, o := range t.Ops {
				ev.Ops = append(ev.Ops, string(o.Type()))
			}
			trace.Events = append(trace.Events, ev)
		}),
	)

	completed := 0
	for i, step := range sc.Steps {
		if err := runStep(eng, sheet.ID, runner, &completed, step); err != nil {
			return nil, fmt.Errorf("harness: step %d: %w", i+1, err)
		}
	}

	s := eng.Grid().MustSheet(sheet.ID)
	if b, ok := s.Bounds(); ok {
		for p := range b.Positions() {
			v := s.DisplayValue(p)
			if grid.IsBlank(v) {
				continue
			}
			trace.Cells[p.A1()] = formatCell(v)
		}
	}
	return trace, nil
}

func runStep(eng *engine.Engine, sheet grid.SheetID, runner *testutil.ScriptedRunner, completed *int, step Step) error {
	switch {
	case step.Set != nil:
		sr, err := grid.ParseA1(step.Set.Cell, grid.RefContext{})
		if err != nil {
			return err
		}
		var v grid.CellValue = grid.Blank{}
		switch {
		case step.Set.Number != nil:
			v = grid.Number(*step.Set.Number)
		case step.Set.Text != nil:
			v = grid.Text(*step.Set.Text)
		case step.Set.Logical != nil:
			v = grid.Logical(*step.Set.Logical)
		}
		_, err = eng.Transact([]op.Operation{op.SetCellValues{
			Sheet:  sheet,
			Rect:   sr.Rect,
			Values: [][]grid.CellValue{{v}},
		}}, "")
		return err

	case step.Code != nil:
		sr, err := grid.ParseA1(step.Code.Cell, grid.RefContext{})
		if err != nil {
			return err
		}
		lang := grid.Language(step.Code.Language)
		_, err = eng.Transact([]op.Operation{op.SetDataTable{
			Sheet: sheet,
			Pos:   sr.Rect.Min,
			Table: &grid.DataTable{
				Kind:     grid.KindForLanguage(lang),
				Language: lang,
				Run:      &grid.CodeRun{Language: lang, Code: step.Code.Source},
			},
			Recompute: true,
		}}, "")
		return err

	case step.Complete != nil:
		reqs := runner.Requests()
		if *completed >= len(reqs) {
			return fmt.Errorf("no outstanding dispatch to complete")
		}
		req := reqs[*completed]
		*completed++
		res := engine.RunResult{}
		if step.Complete.Error != "" {
			res.Err = &grid.RunError{Msg: step.Complete.Error}
		} else if step.Complete.Number != nil {
			res.Value = grid.ScalarValue(grid.Number(*step.Complete.Number))
		}
		return eng.CompleteAsync(req.TransactionID, res)

	case step.Undo:
		_, err := eng.Undo()
		return err

	case step.Redo:
		_, err := eng.Redo()
		return err

	default:
		return fmt.Errorf("empty step")
	}
}

func formatCell(v grid.CellValue) string {
	switch c := v.(type) {
	case grid.Number:
		return strconv.FormatFloat(float64(c), 'g', -1, 64)
	case grid.Text:
		return string(c)
	case grid.Logical:
		return strconv.FormatBool(bool(c))
	case grid.ErrorValue:
		return string(c.Code)
	default:
		return fmt.Sprintf("%v", c)
	}
}
