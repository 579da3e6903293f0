package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/sqlitedb"
	"github.com/pocketbizz/pocketsync/internal/testutil"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	base := []Option{
		WithClock(testutil.NewManualClock()),
		WithKeyGenerator(testutil.NewSequentialKeys("")),
	}
	s, err := Open(path, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func draft(desc string, amount string) ledger.Draft {
	return ledger.Draft{
		Type:        ledger.Income,
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Channel:     ledger.ChannelShopee,
		Category:    "Sales",
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s, path := openTestStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	version, err := sqlitedb.UserVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, Schema.CurrentVersion(), version)

	rows, err := s.DB().Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'transactions' AND name LIKE 'idx_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	assert.Equal(t, []string{"idx_transactions_created_at", "idx_transactions_synced"}, indexes)
}

func TestOpen_Unavailable(t *testing.T) {
	_, err := Open("/nonexistent/dir/queue.db")
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
	assert.False(t, IsNotFound(err))
}

func TestEnqueue_AssignsIDAndDefaults(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Enqueue(ctx, draft("Kek lapis", "45.50"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "key-1", rec.IdempotencyKey)
	assert.False(t, rec.Synced)
	assert.Nil(t, rec.SyncedAt)
	assert.Equal(t, testutil.Epoch, rec.CreatedAt)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, "Kek lapis", got.Description)
	assert.Equal(t, ledger.ChannelShopee, got.Channel)
	assert.Equal(t, "Sales", got.Category)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
}

func TestEnqueue_RejectsInvalid(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Enqueue(context.Background(), draft("Refund", "0"))
	require.Error(t, err)
	assert.True(t, ledger.IsValidationError(err))

	list, err := s.ListUnsynced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnqueue_PublishesStored(t *testing.T) {
	bus := notify.NewBus()
	rec := notify.NewRecorder(0)
	bus.Subscribe(rec.Handle)
	s, _ := openTestStore(t, WithBus(bus))

	stored, err := s.Enqueue(context.Background(), draft("Tudung", "20"))
	require.NoError(t, err)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindStored, events[0].Kind)
	assert.Equal(t, stored.ID, events[0].RecordID)
}

// Records written before a restart are all visible after it.
func TestDurability_AcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	s, err := Open(path, WithClock(testutil.NewManualClock()))
	require.NoError(t, err)
	var ids []int64
	for _, desc := range []string{"a", "b", "c"} {
		rec, err := s.Enqueue(ctx, draft(desc, "1"))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	list, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, rec := range list {
		assert.Equal(t, ids[i], rec.ID)
	}

	next, err := s.Enqueue(ctx, draft("d", "1"))
	require.NoError(t, err)
	assert.Greater(t, next.ID, ids[2], "ids must keep increasing after reopen")
}

func TestListUnsynced_EmptyNotNil(t *testing.T) {
	s, _ := openTestStore(t)

	list, err := s.ListUnsynced(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListUnsynced_CreationOrderWithIDTieBreak(t *testing.T) {
	clk := testutil.NewManualClock()
	clk.Step = 0
	s, _ := openTestStore(t, WithClock(clk))
	ctx := context.Background()

	for _, desc := range []string{"first", "second", "third"} {
		_, err := s.Enqueue(ctx, draft(desc, "1"))
		require.NoError(t, err)
	}

	list, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Description)
	assert.Equal(t, "second", list[1].Description)
	assert.Equal(t, "third", list[2].Description)
}

func TestMarkSynced_Monotonic(t *testing.T) {
	clk := testutil.NewManualClock()
	s, _ := openTestStore(t, WithClock(clk))
	ctx := context.Background()

	rec, err := s.Enqueue(ctx, draft("x", "10"))
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, rec.ID))
	first, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, first.Synced)
	require.NotNil(t, first.SyncedAt)

	clk.Advance(time.Hour)
	require.NoError(t, s.MarkSynced(ctx, rec.ID))
	second, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Equal(t, *first.SyncedAt, *second.SyncedAt, "second mark must not move synced_at")

	list, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMarkSynced_UnknownIDIsIgnored(t *testing.T) {
	s, _ := openTestStore(t)
	assert.NoError(t, s.MarkSynced(context.Background(), 42))
}

func TestGet_NotFound(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Get(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestList_Options(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, desc := range []string{"a", "b", "c"} {
		_, err := s.Enqueue(ctx, draft(desc, "1"))
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkSynced(ctx, 1))

	pending, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := s.List(ctx, ListOptions{IncludeSynced: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, all[0].Synced)

	limited, err := s.List(ctx, ListOptions{IncludeSynced: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(1), limited[0].ID)
}

func TestStats(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	for _, desc := range []string{"a", "b"} {
		_, err := s.Enqueue(ctx, draft(desc, "1"))
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkSynced(ctx, 1))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Unsynced)
	require.NotNil(t, st.OldestUnsynced)
	assert.Equal(t, testutil.Epoch.Add(time.Second), *st.OldestUnsynced)
}

func TestEnqueue_ConcurrentIDsUnique(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	const n = 25
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Enqueue(ctx, draft("concurrent", "1"))
			if assert.NoError(t, err) {
				ids <- rec.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
