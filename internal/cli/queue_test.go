package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTransaction(t *testing.T, dir, desc, amount string) {
	t.Helper()
	_, err := execute(t, dir, "queue", "add",
		"--type", "income", "--amount", amount, "--description", desc, "--channel", "Shopee")
	require.NoError(t, err)
}

func TestQueueList_Empty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "queue", "list")
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty\n", out)
}

func TestQueueAddAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "queue", "add",
		"--type", "expense", "--amount", "12.3", "--description", "Tepung", "--channel", "walkin")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued #1 (expense 12.30")

	addTransaction(t, dir, "Kek lapis", "45.50")

	out, err = execute(t, dir, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "Tepung")
	assert.Contains(t, out, "Kek lapis")
	assert.Contains(t, out, "shopee")
	assert.Less(t, strings.Index(out, "Tepung"), strings.Index(out, "Kek lapis"), "oldest first")
}

func TestQueueList_JSON(t *testing.T) {
	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")

	out, err := execute(t, dir, "--format", "json", "queue", "list", "--limit", "5")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID          int64  `json:"id"`
			Amount      string `json:"amount"`
			Description string `json:"description"`
			Synced      bool   `json:"synced"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Kek lapis", resp.Data[0].Description)
	assert.Equal(t, "45.5", resp.Data[0].Amount)
	assert.False(t, resp.Data[0].Synced)
}

func TestQueueAdd_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "queue", "add",
		"--type", "gift", "--amount", "10", "--description", "x", "--channel", "shopee")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid transaction")

	_, err = execute(t, dir, "queue", "add",
		"--type", "income", "--amount", "sepuluh", "--description", "x", "--channel", "shopee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")

	out, err := execute(t, dir, "queue", "list")
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty\n", out)
}

func TestQueueAdd_MissingFlag(t *testing.T) {
	_, err := execute(t, t.TempDir(), "queue", "add", "--type", "income")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestQueueStats(t *testing.T) {
	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")
	addTransaction(t, dir, "Roti", "3")

	out, err := execute(t, dir, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total:    2")
	assert.Contains(t, out, "Unsynced: 2")
	assert.Contains(t, out, "Oldest:")
}
