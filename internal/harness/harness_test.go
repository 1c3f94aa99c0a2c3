package harness

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Every testdata/*.yaml scenario runs against a golden trace of the same
// base name. Regenerate with -update after an intentional behavior change.
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			sc, err := LoadFile(file)
			require.NoError(t, err)

			trace, err := Run(sc)
			require.NoError(t, err)

			data, err := json.MarshalIndent(trace, "", "  ")
			require.NoError(t, err)

			g := goldie.New(t)
			g.Assert(t, name, append(data, '\n'))
		})
	}
}

func TestLoadRejectsUnnamedScenario(t *testing.T) {
	_, err := Load([]byte("steps: []\n"))
	require.Error(t, err)
}

func TestRunReportsEmptyStep(t *testing.T) {
	sc := &Scenario{Name: "bad", Steps: []Step{{}}}
	_, err := Run(sc)
	require.ErrorContains(t, err, "step 1")
}
