package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts submissions except those whose description is "tolak".
type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	accepted []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>PocketBizz</h1>")
	})
	mux.HandleFunc("/add_transaction", func(w http.ResponseWriter, r *http.Request) {
		desc := r.PostFormValue("description")
		if desc == "tolak" {
			http.Error(w, "rejected", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		s.accepted = append(s.accepted, desc)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) descriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.accepted...)
}

func runDrainCommand(t *testing.T, dir, upstream string, args ...string) (string, error) {
	t.Helper()
	root := &RootOptions{Format: "text", EnvFile: filepath.Join(dir, "missing.env"), DataDir: dir, Upstream: upstream}
	cmd := NewDrainCommand(root)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDrain_ReplaysQueue(t *testing.T) {
	srv := newFakeServer(t)
	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")
	addTransaction(t, dir, "Roti", "3")

	out, err := runDrainCommand(t, dir, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Mensync 2 transaksi offline...")
	assert.Contains(t, out, "2 transaksi berjaya disync!")
	assert.Contains(t, out, "Replayed 2 of 2")
	assert.Equal(t, []string{"Kek lapis", "Roti"}, srv.descriptions())

	out, err = runDrainCommand(t, dir, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty\n", out)
}

func TestDrain_PartialFailureExitsOne(t *testing.T) {
	srv := newFakeServer(t)
	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")
	addTransaction(t, dir, "tolak", "1")
	addTransaction(t, dir, "Roti", "3")

	out, err := runDrainCommand(t, dir, srv.URL)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "2 daripada 3 transaksi disync")
	assert.Equal(t, []string{"Kek lapis", "Roti"}, srv.descriptions())

	stats, err := execute(t, dir, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, stats, "Unsynced: 1")
}

func TestDrain_ServerUnreachable(t *testing.T) {
	srv := newFakeServer(t)
	url := srv.URL
	srv.Close()

	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")

	out, err := runDrainCommand(t, dir, url)
	require.NoError(t, err)
	assert.Equal(t, "Server unreachable; queue left untouched\n", out)

	stats, err := execute(t, dir, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, stats, "Unsynced: 1")
}

func TestDrain_ForceOnlineJSON(t *testing.T) {
	srv := newFakeServer(t)
	dir := t.TempDir()
	addTransaction(t, dir, "Kek lapis", "45.50")

	out, err := runDrainCommand(t, dir, srv.URL, "--force-online")
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 1 of 1")

	root := &RootOptions{Format: "json", EnvFile: filepath.Join(dir, "missing.env"), DataDir: dir, Upstream: srv.URL}
	cmd := NewDrainCommand(root)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--force-online"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   DrainReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Data.Online)
	assert.Equal(t, "empty", string(resp.Data.Result.Skipped))
}
