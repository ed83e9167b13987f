package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	userB  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) Clock {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	r, err := Open(context.Background(), store, opts...)
	require.NoError(t, err)
	return r, store
}

func newActiveRegistry(t *testing.T, opts ...Option) (*Registry, *MemoryStore) {
	t.Helper()
	r, store := newTestRegistry(t, opts...)
	require.NoError(t, r.Initialize(context.Background(), adminA))
	return r, store
}

// failingStore fails every PutScore after the wrapped store has been opened.
type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) PutScore(ctx context.Context, validatorID string, score uint8, at time.Time) error {
	return s.err
}

func TestGetRisk_NeverWrittenIsZero(t *testing.T) {
	r, _ := newActiveRegistry(t)

	for _, id := range []string{"validator_1", "validator_2", "", "unknown"} {
		assert.Equal(t, uint8(0), r.GetRisk(id), "validator %q", id)
	}
}

func TestScenario_AdminWritesNonAdminRejected(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t)

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 50))
	assert.Equal(t, uint8(50), r.GetRisk("validator_1"))

	err := r.UpdateRisk(ctx, userB, "validator_1", 99)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint8(50), r.GetRisk("validator_1"))

	assert.Equal(t, uint8(0), r.GetRisk("validator_2"))
}

func TestUpdateRisk_BeforeInitialize(t *testing.T) {
	r, store := newTestRegistry(t)

	err := r.UpdateRisk(context.Background(), adminA, "validator_1", 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint8(0), r.GetRisk("validator_1"))
	assert.True(t, r.LastUpdate().IsZero())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Scores)
}

func TestUpdateRisk_UnauthorizedLeavesTimestamp(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t, WithClock(stepClock(time.Unix(1_700_000_000, 0))))

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 50))
	before := r.LastUpdate()

	require.ErrorIs(t, r.UpdateRisk(ctx, userB, "validator_1", 99), ErrUnauthorized)
	require.ErrorIs(t, r.UpdateRisk(ctx, userB, "validator_9", 1), ErrUnauthorized)

	assert.Equal(t, before, r.LastUpdate())
	assert.Equal(t, []Entry{{ValidatorID: "validator_1", Score: 50}}, r.Entries())
}

func TestUpdateRisk_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t)

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 10))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 200))

	assert.Equal(t, uint8(200), r.GetRisk("validator_1"))
}

func TestUpdateRisk_RepeatOnlyMovesTimestamp(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	r, _ := newActiveRegistry(t, WithClock(stepClock(start)))

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 42))
	first := r.View()

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 42))
	second := r.View()

	assert.Equal(t, first.Entries, second.Entries)
	assert.True(t, second.LastUpdate.After(first.LastUpdate))
	assert.Equal(t, start.Add(2*time.Second), second.LastUpdate)
}

func TestUpdateRisk_FullScoreRange(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t)

	for _, score := range []uint8{0, 1, 50, 100, 254, 255} {
		require.NoError(t, r.UpdateRisk(ctx, adminA, "v", score))
		assert.Equal(t, score, r.GetRisk("v"))
	}
}

func TestUpdateRisk_ExplicitZeroReadsLikeAbsent(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t)

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 0))

	assert.Equal(t, r.GetRisk("never_written"), r.GetRisk("validator_1"))
	assert.Len(t, r.Entries(), 1)
}

func TestUpdateRisk_EmptyValidator(t *testing.T) {
	r, _ := newActiveRegistry(t)

	err := r.UpdateRisk(context.Background(), adminA, "", 5)
	assert.ErrorIs(t, err, ErrInvalidValidator)
	assert.True(t, r.LastUpdate().IsZero())
}

func TestUpdateRisk_SetsLastUpdateFromClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _ := newActiveRegistry(t, WithClock(func() time.Time { return at }))

	assert.True(t, r.LastUpdate().IsZero())
	require.NoError(t, r.UpdateRisk(context.Background(), adminA, "validator_1", 7))
	assert.Equal(t, at, r.LastUpdate())
}

func TestUpdateRisk_ClockStepsBackward(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _ := newActiveRegistry(t, WithClock(func() time.Time { return now }))

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 1))
	now = now.Add(-time.Hour)
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 2))

	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), r.LastUpdate())
	assert.Equal(t, uint8(2), r.GetRisk("validator_1"))
}

func TestUpdateRisk_StoreFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	require.NoError(t, mem.SetAdmin(ctx, adminA))
	require.NoError(t, mem.PutScore(ctx, "validator_1", 30, time.Unix(100, 0)))

	boom := errors.New("disk full")
	r, err := Open(ctx, &failingStore{MemoryStore: mem, err: boom})
	require.NoError(t, err)

	err = r.UpdateRisk(ctx, adminA, "validator_1", 90)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, uint8(30), r.GetRisk("validator_1"))
	assert.Equal(t, time.Unix(100, 0), r.LastUpdate())
}

func TestInitialize_FirstCallerWins(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	assert.False(t, r.Initialized())
	require.NoError(t, r.Initialize(ctx, adminA))
	assert.ErrorIs(t, r.Initialize(ctx, userB), ErrAlreadyInitialized)

	admin, ok := r.Admin()
	assert.True(t, ok)
	assert.Equal(t, adminA, admin)

	assert.ErrorIs(t, r.UpdateRisk(ctx, userB, "validator_1", 1), ErrUnauthorized)
}

func TestInitialize_ZeroAddress(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.Initialize(context.Background(), common.Address{}), ErrInvalidCaller)
	assert.False(t, r.Initialized())
}

func TestOpen_RestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)
	r, store := newActiveRegistry(t, WithClock(func() time.Time { return at }))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 50))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_3", 80))

	reopened, err := Open(ctx, store)
	require.NoError(t, err)

	assert.True(t, reopened.Initialized())
	assert.Equal(t, uint8(50), reopened.GetRisk("validator_1"))
	assert.Equal(t, uint8(80), reopened.GetRisk("validator_3"))
	assert.Equal(t, at, reopened.LastUpdate())
	assert.ErrorIs(t, reopened.Initialize(ctx, userB), ErrAlreadyInitialized)
}

func TestListener_ReceivesUpdatesInOrder(t *testing.T) {
	ctx := context.Background()
	var got []Update
	r, _ := newActiveRegistry(t, WithListener(func(u Update) { got = append(got, u) }))

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 10))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 20))
	require.ErrorIs(t, r.UpdateRisk(ctx, userB, "validator_1", 30), ErrUnauthorized)

	require.Len(t, got, 2)
	assert.False(t, got[0].HadPrevious)
	assert.Equal(t, uint8(10), got[0].Score)
	assert.True(t, got[1].HadPrevious)
	assert.Equal(t, uint8(10), got[1].Previous)
	assert.Equal(t, uint8(20), got[1].Score)
	assert.Equal(t, adminA, got[1].Admin)
}

func TestEntries_SortedByValidator(t *testing.T) {
	ctx := context.Background()
	r, _ := newActiveRegistry(t)

	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_3", 3))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 1))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_2", 2))

	assert.Equal(t, []Entry{
		{ValidatorID: "validator_1", Score: 1},
		{ValidatorID: "validator_2", Score: 2},
		{ValidatorID: "validator_3", Score: 3},
	}, r.Entries())
}

func TestView_ScoreAndTimestampObservedTogether(t *testing.T) {
	ctx := context.Background()
	// Each write i stores score i%256 at unix time i, so any consistent view
	// satisfies score == lastUpdate % 256.
	var tick atomic.Int64
	r, _ := newActiveRegistry(t, WithClock(func() time.Time {
		return time.Unix(tick.Load(), 0)
	}))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var violations atomic.Int64

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := r.View()
				if len(v.Entries) == 0 {
					continue
				}
				if int64(v.Entries[0].Score) != v.LastUpdate.Unix()%256 {
					violations.Add(1)
				}
			}
		}()
	}

	for i := int64(1); i <= 2000; i++ {
		tick.Store(i)
		require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", uint8(i%256)))
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, violations.Load())
}

func TestRecord_ReturnsAcceptedWrite(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	r, _ := newActiveRegistry(t, WithClock(stepClock(start)))

	first, err := r.Record(ctx, adminA, "validator_1", 10)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Second), first.At)
	assert.False(t, first.HadPrevious)

	second, err := r.Record(ctx, adminA, "validator_1", 20)
	require.NoError(t, err)
	assert.Equal(t, start.Add(2*time.Second), second.At)
	assert.Equal(t, uint8(10), second.Previous)
	assert.Equal(t, second.At, r.LastUpdate())

	rejected, err := r.Record(ctx, userB, "validator_1", 30)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, Update{}, rejected)
}

func TestInitialize_AdoptsAdminRecordedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryStore()

	first, err := Open(ctx, shared)
	require.NoError(t, err)
	second, err := Open(ctx, shared)
	require.NoError(t, err)

	require.NoError(t, first.Initialize(ctx, adminA))

	// second loaded the store before the admin was written.
	assert.ErrorIs(t, second.Initialize(ctx, userB), ErrAlreadyInitialized)

	admin, ok := second.Admin()
	require.True(t, ok)
	assert.Equal(t, adminA, admin)
	assert.NoError(t, second.UpdateRisk(ctx, adminA, "validator_1", 40))
	assert.ErrorIs(t, second.UpdateRisk(ctx, userB, "validator_1", 41), ErrUnauthorized)
}

// unreadableStore accepts nothing and cannot be reloaded.
type unreadableStore struct {
	*MemoryStore
	loadErr error
}

func (s *unreadableStore) SetAdmin(context.Context, common.Address) error {
	return ErrAlreadyInitialized
}

func (s *unreadableStore) Load(ctx context.Context) (*Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx)
}

func TestInitialize_ReloadFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := &unreadableStore{MemoryStore: NewMemoryStore()}
	r, err := Open(ctx, store)
	require.NoError(t, err)

	store.loadErr = errors.New("connection reset")
	err = r.Initialize(ctx, adminA)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, r.Initialized())
}
