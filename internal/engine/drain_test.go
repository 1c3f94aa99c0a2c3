package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

func TestApplyStoreOpRejectionCarriesCode(t *testing.T) {
	g, _ := grid.NewWithSheet()
	e := New(g)
	pt := newPending("txn-reject", SourceUser, "", nil)

	err := e.applyStoreOp(pt, op.SetSheetName{Sheet: "missing", Name: "X"})
	require.Error(t, err)
	assert.True(t, IsApplyFailed(err))

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, TxnID("txn-reject"), ee.Txn)
	assert.Contains(t, ee.Msg, "set_sheet_name")
	assert.Empty(t, pt.forward, "a rejected operation records nothing")
	assert.Empty(t, pt.reverse)
}
