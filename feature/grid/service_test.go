package grid

import (
	"context"
	"math"
	"testing"
	"time"

	"databinding/core/database"
	"databinding/core/flush"
	"databinding/core/query"
	"databinding/core/reconcile"
	"databinding/core/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixtureRows() []database.Row {
	people := []struct {
		name string
		age  int64
	}{
		{"Ada", 25}, {"Bo", 41}, {"Cleo", 33}, {"Dana", 52}, {"Eli", 19},
		{"Finn", 47}, {"Gus", 60}, {"Hana", 38}, {"Ivo", 44}, {"Juno", 29},
	}
	rows := make([]database.Row, len(people))
	for i, p := range people {
		rows[i] = database.Row{"id": int64(i + 1), "name": p.name, "age": p.age}
	}
	return rows
}

func newTestService(t *testing.T, bindingCfg reconcile.Config, exec flush.Executor) *Service {
	t.Helper()
	cfg := Config{Enabled: true, Source: SourceMemory, MaxViewport: 500}
	return NewService(NewMemoryBackend(fixtureRows()), cfg, bindingCfg, zap.NewNop(), nil, exec)
}

func batchesOf(t *testing.T, u *Update) []wire.Batch[database.Row] {
	t.Helper()
	b, ok := u.Batches.([]wire.Batch[database.Row])
	require.True(t, ok, "unexpected batch type %T", u.Batches)
	return b
}

func entryIDs(op wire.Op[database.Row]) []int64 {
	out := make([]int64, len(op.Entries))
	for i, e := range op.Entries {
		out[i] = e.Item["id"].(int64)
	}
	return out
}

func TestService_Lifecycle(t *testing.T) {
	svc := newTestService(t, reconcile.DefaultConfig(), nil)
	ctx := context.Background()

	u, err := svc.Create(ctx)
	require.NoError(t, err)
	id := u.Session
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, svc.Sessions())
	assert.Equal(t, &reconcile.CountChange{Count: 10}, u.Count)
	assert.Empty(t, batchesOf(t, u), "empty viewport sends no rows")
	assert.Zero(t, u.LastUpdateID)

	u, err = svc.SetViewport(ctx, id, 0, 3)
	require.NoError(t, err)
	batches := batchesOf(t, u)
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(1), batches[0].UpdateID)
	require.Len(t, batches[0].Ops, 1)
	assert.Equal(t, wire.OpSet, batches[0].Ops[0].Kind)
	assert.Equal(t, []int64{1, 2, 3}, entryIDs(batches[0].Ops[0]))
	assert.Nil(t, u.Count, "size did not change")

	u, err = svc.SetViewport(ctx, id, 2, 3)
	require.NoError(t, err)
	batches = batchesOf(t, u)
	require.Len(t, batches, 1)
	ops := batches[0].Ops
	require.Len(t, ops, 2)
	assert.Equal(t, wire.Op[database.Row]{Kind: wire.OpClear, Start: 0, Length: 2}, ops[0])
	assert.Equal(t, 3, ops[1].Start)
	assert.Equal(t, []int64{4, 5}, entryIDs(ops[1]))
	assert.Equal(t, uint64(2), u.LastUpdateID)
	assert.Equal(t, 2, u.PendingKeys, "rows 1 and 2 wait for the acknowledgement")

	u, err = svc.Acknowledge(ctx, id, 2)
	require.NoError(t, err)
	assert.Zero(t, u.PendingKeys)
	assert.Empty(t, batchesOf(t, u))

	_, err = svc.Acknowledge(ctx, id, 99)
	assert.ErrorIs(t, err, reconcile.ErrState)

	u, err = svc.SetFilter(ctx, id, []database.Where{{Column: "age", Op: ">=", Value: 40}})
	require.NoError(t, err)
	assert.Equal(t, &reconcile.CountChange{Count: 5}, u.Count)
	batches = batchesOf(t, u)
	require.Len(t, batches, 1)
	ops = batches[0].Ops
	require.Len(t, ops, 2)
	assert.Equal(t, wire.Op[database.Row]{Kind: wire.OpClear, Start: 2, Length: 3}, ops[0])
	assert.Equal(t, []int64{6, 7, 9}, entryIDs(ops[1]))

	u, err = svc.SetSort(ctx, id, []query.SortOrder{query.Desc("name")})
	require.NoError(t, err)
	batches = batchesOf(t, u)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{6, 4, 2}, entryIDs(batches[0].Ops[len(batches[0].Ops)-1]))

	n, err := svc.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	item, err := svc.Item(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, "Ivo", item.(database.Row)["name"])

	_, err = svc.Item(ctx, id, 5)
	assert.ErrorIs(t, err, reconcile.ErrOutOfBounds)

	u, err = svc.Refresh(ctx, id)
	require.NoError(t, err)
	batches = batchesOf(t, u)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{6, 4, 2}, entryIDs(batches[0].Ops[len(batches[0].Ops)-1]))

	assert.True(t, svc.Close(id))
	assert.False(t, svc.Close(id))
	assert.Zero(t, svc.Sessions())

	_, err = svc.SetViewport(ctx, id, 0, 3)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_InvalidRequests(t *testing.T) {
	svc := newTestService(t, reconcile.DefaultConfig(), nil)
	ctx := context.Background()
	u, err := svc.Create(ctx)
	require.NoError(t, err)
	id := u.Session

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "viewport too large",
			call: func() error {
				_, err := svc.SetViewport(ctx, id, 0, 501)
				return err
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "negative viewport",
			call: func() error {
				_, err := svc.SetViewport(ctx, id, -1, 5)
				return err
			},
			wantErr: reconcile.ErrOutOfBounds,
		},
		{
			name: "viewport end overflows",
			call: func() error {
				_, err := svc.SetViewport(ctx, id, math.MaxInt-10, 50)
				return err
			},
			wantErr: reconcile.ErrOutOfBounds,
		},
		{
			name: "unknown filter column",
			call: func() error {
				_, err := svc.SetFilter(ctx, id, []database.Where{{Column: "email", Op: "=", Value: "x"}})
				return err
			},
			wantErr: database.ErrUnknownColumn,
		},
		{
			name: "unknown filter operator",
			call: func() error {
				_, err := svc.SetFilter(ctx, id, []database.Where{{Column: "age", Op: "~", Value: 1}})
				return err
			},
			wantErr: database.ErrUnsupportedFilter,
		},
		{
			name: "unknown sort property",
			call: func() error {
				_, err := svc.SetSort(ctx, id, []query.SortOrder{query.Asc("email")})
				return err
			},
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	n, err := svc.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "rejected requests leave the session untouched")
}

func TestService_Sweep(t *testing.T) {
	svc := newTestService(t, reconcile.DefaultConfig(), nil)
	ctx := context.Background()
	for range 2 {
		_, err := svc.Create(ctx)
		require.NoError(t, err)
	}

	assert.Zero(t, svc.Sweep(time.Hour))
	assert.Equal(t, 2, svc.Sweep(-time.Second))
	assert.Zero(t, svc.Sessions())
}

func TestService_Run(t *testing.T) {
	svc := newTestService(t, reconcile.DefaultConfig(), nil)
	_, err := svc.Create(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, -time.Second, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return svc.Sessions() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

// pollUntil collects the rows sent by background fetches until want rows
// arrived or the deadline passed.
func pollUntil(t *testing.T, svc *Service, id string, want int) ([]int64, *reconcile.CountChange) {
	t.Helper()
	var (
		got   []int64
		count *reconcile.CountChange
	)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		u, err := svc.Poll(context.Background(), id, 100*time.Millisecond)
		require.NoError(t, err)
		if u.Count != nil {
			count = u.Count
		}
		for _, b := range batchesOf(t, u) {
			for _, op := range b.Ops {
				got = append(got, entryIDs(op)...)
			}
		}
	}
	return got, count
}

func TestService_AsyncFetches(t *testing.T) {
	cfg := reconcile.DefaultConfig()
	cfg.Async = true
	exec := flush.NewPoolExecutor(2, 8)
	defer exec.Close()

	svc := newTestService(t, cfg, exec)
	ctx := context.Background()

	u, err := svc.Create(ctx)
	require.NoError(t, err)
	id := u.Session

	u, err = svc.SetViewport(ctx, id, 0, 4)
	require.NoError(t, err)
	assert.Empty(t, batchesOf(t, u), "rows arrive on a later round trip")
	count := u.Count

	got, polled := pollUntil(t, svc, id, 4)
	assert.Equal(t, []int64{1, 2, 3, 4}, got)
	if polled != nil {
		count = polled
	}
	require.NotNil(t, count)
	assert.Equal(t, 10, count.Count)

	assert.True(t, svc.Close(id))
	_, err = svc.Poll(ctx, id, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_EstimateMode(t *testing.T) {
	cfg := reconcile.DefaultConfig()
	cfg.DefinedSize = false
	cfg.ItemCountEstimate = 4
	cfg.ItemCountEstimateIncrement = 4
	cfg.PageSize = 2
	svc := newTestService(t, cfg, nil)
	ctx := context.Background()

	u, err := svc.Create(ctx)
	require.NoError(t, err)
	require.NotNil(t, u.Count)
	assert.True(t, u.Count.Estimated)

	u, err = svc.SetViewport(ctx, u.Session, 6, 6)
	require.NoError(t, err)
	require.NotNil(t, u.Count)
	assert.Equal(t, reconcile.CountChange{Count: 10}, *u.Count, "a short page freezes the estimate at the real size")

	n, err := svc.Count(ctx, u.Session)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestService_MemoryMixedCaseColumns(t *testing.T) {
	rows := []database.Row{
		{"ID": int64(1), "City": "Oslo"},
		{"ID": int64(2), "City": "Riga"},
		{"ID": int64(3), "City": "Oslo"},
	}
	cfg := Config{Enabled: true, Source: SourceMemory, MaxViewport: 10}
	svc := NewService(NewMemoryBackend(rows), cfg, reconcile.DefaultConfig(), zap.NewNop(), nil, nil)
	ctx := context.Background()

	u, err := svc.Create(ctx)
	require.NoError(t, err)
	id := u.Session
	_, err = svc.SetViewport(ctx, id, 0, 5)
	require.NoError(t, err)

	u, err = svc.SetFilter(ctx, id, []database.Where{{Column: "CITY", Op: "=", Value: "Oslo"}})
	require.NoError(t, err)
	assert.Equal(t, &reconcile.CountChange{Count: 2}, u.Count)
	batches := batchesOf(t, u)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{1, 3}, entryIDs(batches[0].Ops[len(batches[0].Ops)-1]))

	u, err = svc.SetSort(ctx, id, []query.SortOrder{query.Desc("id")})
	require.NoError(t, err)
	batches = batchesOf(t, u)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{3, 1}, entryIDs(batches[0].Ops[len(batches[0].Ops)-1]))
}
