package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflicts_Text(t *testing.T) {
	db := dryRunDatabase(t)

	out, err := executeCommand(t, "conflicts", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "1 conflicting asset id(s), 2 record(s) dropped:")
	assert.Contains(t, out, "  3 (2 attribute sets)")
}

func TestConflicts_JSON(t *testing.T) {
	db := dryRunDatabase(t)

	out, err := executeCommand(t, "conflicts", "--db", db, "--format", "json")
	require.NoError(t, err)

	data := decodeResponse(t, out)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["conflicting_ids"])
	assert.Equal(t, float64(2), data["dropped_records"])
	assert.Equal(t, []any{
		map[string]any{"asset_id": "3", "fingerprint_count": float64(2)},
	}, data["conflicts"])
}

func TestConflicts_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := executeCommand(t, "conflicts", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.NoFileExists(t, path)
}

func TestConflicts_RequiresDBFlag(t *testing.T) {
	_, err := executeCommand(t, "conflicts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
