package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			out := Run(context.Background(), sc, 30*time.Second)
			assert.Empty(t, Check(sc.Expected, out))
		})
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	sc, err := Load("contention.yaml")
	require.NoError(t, err)
	out := Run(context.Background(), sc, 30*time.Second)

	two := 2
	diffs := Check(Expected{Service: &two, Conflicts: map[string]int{}}, out)
	assert.Len(t, diffs, 2)
	assert.NotEmpty(t, Check(Expected{Error: "infeasible"}, out))
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(":"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	noQuota := filepath.Join(dir, "quota.yaml")
	require.NoError(t, os.WriteFile(noQuota, []byte("name: x\n"), 0o644))
	_, err = Load(noQuota)
	assert.ErrorContains(t, err, "service_quota")
}
