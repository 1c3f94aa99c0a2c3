package grid

import (
	"fmt"
	"sort"
)

// Grid owns an ordered collection of sheets. It is created empty or by
// the import collaborator, and replaced wholesale rather than versioned.
type Grid struct {
	sheets map[SheetID]*Sheet
}

// New creates an empty grid with no sheets.
func New() *Grid {
	return &Grid{sheets: make(map[SheetID]*Sheet)}
}

// NewWithSheet creates a grid holding a single empty "Sheet 1".
func NewWithSheet() (*Grid, *Sheet) {
	g := New()
	s := NewSheet("Sheet 1", FirstOrderKey())
	g.sheets[s.ID] = s
	return g, s
}

// Sheet returns the sheet with the given id.
func (g *Grid) Sheet(id SheetID) (*Sheet, bool) {
	s, ok := g.sheets[id]
	return s, ok
}

// MustSheet returns the sheet with the given id, panicking if absent.
// For tests and internal invariant checks only.
func (g *Grid) MustSheet(id SheetID) *Sheet {
	s, ok := g.sheets[id]
	if !ok {
		panic(fmt.Sprintf("grid: no sheet %s", id))
	}
	return s
}

// SheetByName returns the sheet with the given display name.
func (g *Grid) SheetByName(name string) (*Sheet, bool) {
	for _, s := range g.sheets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// AddSheet inserts s. It is an error if the id or the name is taken.
func (g *Grid) AddSheet(s *Sheet) error {
	if _, ok := g.sheets[s.ID]; ok {
		return fmt.Errorf("grid: sheet id %s already present", s.ID)
	}
	if _, ok := g.SheetByName(s.Name); ok {
		return fmt.Errorf("grid: sheet name %q already present", s.Name)
	}
	g.sheets[s.ID] = s
	return nil
}

// DeleteSheet removes and returns the sheet with the given id.
func (g *Grid) DeleteSheet(id SheetID) (*Sheet, error) {
	s, ok := g.sheets[id]
	if !ok {
		return nil, fmt.Errorf("grid: no sheet %s", id)
	}
	delete(g.sheets, id)
	return s, nil
}

// SheetCount returns the number of sheets.
func (g *Grid) SheetCount() int {
	return len(g.sheets)
}

// SheetsInOrder returns sheets sorted by order key (id as tiebreaker),
// i.e. tab order.
func (g *Grid) SheetsInOrder() []*Sheet {
	out := make([]*Sheet, 0, len(g.sheets))
	for _, s := range g.sheets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EndOrderKey returns an order key placing a new sheet after all
// existing sheets.
func (g *Grid) EndOrderKey() string {
	sheets := g.SheetsInOrder()
	if len(sheets) == 0 {
		return FirstOrderKey()
	}
	key, err := OrderKeyBetween(sheets[len(sheets)-1].Order, "")
	if err != nil {
		// Only reachable with a corrupted order key; fall back to a fresh run.
		return FirstOrderKey()
	}
	return key
}

// RefContext builds the reference-resolution context for code evaluated
// on the given sheet: known sheet names and table names.
func (g *Grid) RefContext(current SheetID) RefContext {
	ctx := RefContext{
		DefaultSheet: current,
		SheetsByName: make(map[string]SheetID, len(g.sheets)),
		TablesByName: make(map[string]SheetRect),
	}
	for _, s := range g.sheets {
		ctx.SheetsByName[s.Name] = s.ID
		s.Tables(func(anchor Pos, t *DataTable) bool {
			if t.Name != "" {
				ctx.TablesByName[t.Name] = SheetRect{Sheet: s.ID, Rect: t.Rect(anchor)}
			}
			return true
		})
	}
	return ctx
}
