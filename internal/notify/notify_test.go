package notify

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Kind)) })
	bus.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Kind)) })

	bus.Publish(Event{Kind: KindStored})

	assert.Equal(t, []string{"a:stored", "b:stored"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(Event{Kind: KindOnline})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: KindOffline})

	assert.Equal(t, 1, calls)
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	bus := NewBus(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	rec := NewRecorder(0)
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(rec.Handle)

	require.NotPanics(t, func() { bus.Publish(Event{Kind: KindSynced, Count: 2}) })

	assert.Equal(t, []Kind{KindSynced}, rec.Kinds())
	assert.Contains(t, logs.String(), "notify subscriber panicked")
}

func TestBus_StampsTime(t *testing.T) {
	at := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	bus := NewBus(WithNow(func() time.Time { return at }))
	rec := NewRecorder(0)
	bus.Subscribe(rec.Handle)

	bus.Publish(Event{Kind: KindStored})
	explicit := at.Add(time.Hour)
	bus.Publish(Event{Kind: KindStored, At: explicit})

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, at, events[0].At)
	assert.Equal(t, explicit, events[1].At)
}

func TestBus_NilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: KindStored}) })
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	rec := NewRecorder(0)
	bus.Subscribe(rec.Handle)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Kind: KindStored})
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Events(), 20)
}

func TestEvent_Text(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: KindStored}, "Data disimpan secara tempatan. Akan sync bila online."},
		{Event{Kind: KindOnline}, "Online"},
		{Event{Kind: KindOffline}, "Offline Mode"},
		{Event{Kind: KindSyncing, Count: 3}, "Mensync 3 transaksi offline..."},
		{Event{Kind: KindSynced, Count: 2}, "2 transaksi berjaya disync!"},
		{Event{Kind: KindSyncFailed}, "Sync gagal. Cuba lagi kemudian."},
		{Event{Kind: KindSyncPartial, Count: 2, Attempted: 3}, "2 daripada 3 transaksi disync. Selebihnya akan dicuba semula."},
		{Event{Kind: KindNotification, Title: "PocketBizz", Body: "Hello"}, "PocketBizz: Hello"},
		{Event{Kind: KindNotification, Title: "PocketBizz"}, "PocketBizz"},
	}
	for _, tt := range tests {
		t.Run(string(tt.event.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Text())
		})
	}
}

func TestRecorder_Limit(t *testing.T) {
	rec := NewRecorder(2)
	rec.Handle(Event{Kind: KindOffline})
	rec.Handle(Event{Kind: KindStored})
	rec.Handle(Event{Kind: KindOnline})

	assert.Equal(t, []Kind{KindStored, KindOnline}, rec.Kinds())

	last, ok := rec.Last(KindStored)
	assert.True(t, ok)
	assert.Equal(t, KindStored, last.Kind)

	_, ok = rec.Last(KindSyncFailed)
	assert.False(t, ok)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestLogSink(t *testing.T) {
	var logs bytes.Buffer
	sink := LogSink(slog.New(slog.NewTextHandler(&logs, nil)))

	sink(Event{Kind: KindSyncFailed})
	sink(Event{Kind: KindSynced, Count: 1})

	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "kind=sync_failed")
	assert.Contains(t, out, "1 transaksi berjaya disync!")
}
