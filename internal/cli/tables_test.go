package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrsync/internal/store"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestTables_Text(t *testing.T) {
	out, err := executeCommand(t, "tables")
	require.NoError(t, err)

	for _, info := range store.Tables {
		assert.Contains(t, out, string(info.Name)+" (stage: "+info.Stage+")")
	}
	assert.NotContains(t, out, "INTEGER", "columns need --verbose")
}

func TestTables_VerboseShowsColumns(t *testing.T) {
	out, err := executeCommand(t, "tables", "-v")
	require.NoError(t, err)

	assert.Contains(t, out, "fingerprint")
	assert.Contains(t, out, "INTEGER")
}

func TestTables_JSON(t *testing.T) {
	out, err := executeCommand(t, "tables", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	tables := resp["data"].([]any)
	require.Len(t, tables, len(store.Tables))
	first := tables[0].(map[string]any)
	assert.Equal(t, string(store.TableAssetRecords), first["name"])
	assert.Equal(t, "normalize", first["stage"])
}
