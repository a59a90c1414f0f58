package session_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/feed/memfeed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
	"github.com/AntonStoeckl/live-selectors-go/session"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
	"github.com/AntonStoeckl/live-selectors-go/testutil/observability/testdoubles"
)

// patchLogOnly hides the snapshot methods of the wrapped log.
type patchLogOnly struct {
	feed.PatchLog
}

// conflictingLog rejects every append with a concurrency conflict.
type conflictingLog struct {
	feed.PatchLog
	appends atomic.Int32
}

func (l *conflictingLog) Append(context.Context, string, feed.MaxSequenceNumberUint, feed.StorablePatch, ...feed.StorablePatch) error {
	l.appends.Add(1)
	return feed.ErrConcurrencyConflict
}

func givenSession(t *testing.T, log feed.PatchLog, roomID string, options ...session.Option) *session.Session {
	s, err := session.Open(context.Background(), log, roomID, options...)
	require.NoError(t, err, "error in arranging the session")
	t.Cleanup(s.Close)

	return s
}

func givenTodos(t *testing.T, s *session.Session, texts ...string) {
	ops := []statetree.Operation{statetree.SetAt("todos", []any{})}
	for i, text := range texts {
		ops = append(ops, statetree.InsertAt(todoPath(i), map[string]any{"text": text, "done": false}))
	}

	require.NoError(t, s.Update(context.Background(), ops...), "error in arranging todos")
}

func todoPath(i int) string {
	return "todos." + strconv.Itoa(i)
}

func selectTodoCount(root *statetree.Object) int {
	todos, ok := root.GetList("todos")
	if !ok {
		return 0
	}

	return todos.Len()
}

func selectTitle(root *statetree.Object) string {
	title, _ := root.Get("title")
	text, _ := title.(string)

	return text
}

type recorder[V any] struct {
	mu     sync.Mutex
	values []V
}

func (r *recorder[V]) record(value V) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values = append(r.values, value)
}

func (r *recorder[V]) get() []V {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]V(nil), r.values...)
}

func Test_Open_RejectsInvalidArguments(t *testing.T) {
	_, nilLogErr := session.Open(context.Background(), nil, "room")
	_, emptyRoomErr := session.Open(context.Background(), memfeed.NewPatchLog(), "")
	_, pollErr := session.Open(context.Background(), memfeed.NewPatchLog(), "room", session.WithPollInterval(0))
	_, attemptsErr := session.Open(context.Background(), memfeed.NewPatchLog(), "room", session.WithRetryMaxAttempts(0))
	_, delayErr := session.Open(context.Background(), memfeed.NewPatchLog(), "room", session.WithRetryBaseDelay(-time.Second))
	_, jitterErr := session.Open(context.Background(), memfeed.NewPatchLog(), "room", session.WithRetryJitterFactor(1.5))

	assert.ErrorIs(t, nilLogErr, session.ErrNilPatchLog)
	assert.ErrorIs(t, emptyRoomErr, feed.ErrEmptyRoomID)
	assert.ErrorIs(t, pollErr, session.ErrInvalidPollInterval)
	assert.ErrorIs(t, attemptsErr, session.ErrInvalidMaxAttempts)
	assert.ErrorIs(t, delayErr, session.ErrNegativeBaseDelay)
	assert.ErrorIs(t, jitterErr, session.ErrInvalidJitterFactor)
}

func Test_Open_EmptyRoom_StartsWithEmptyTree(t *testing.T) {
	// act
	s := givenSession(t, memfeed.NewPatchLog(), uuid.NewString())

	// assert
	assert.Equal(t, 0, s.Current().Len())
	assert.Equal(t, feed.MaxSequenceNumberUint(0), s.Sequence())
	assert.Same(t, s.Current(), s.Engine().Current())
}

func Test_Open_ReplaysExistingPatches(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()

	// arrange
	writer := givenSession(t, log, roomID)
	givenTodos(t, writer, "milk", "eggs")

	// act
	reader := givenSession(t, log, roomID)

	// assert
	assert.Equal(t, 2, selectTodoCount(reader.Current()))
	assert.Equal(t, writer.Sequence(), reader.Sequence())
}

func Test_Update_KeysWithDotsOrEmpty_SurviveReplay(t *testing.T) {
	// setup
	ctx := context.Background()
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()
	writer := givenSession(t, log, roomID)

	// act
	err := writer.Update(ctx,
		statetree.SetAt("sites", map[string]any{}),
		statetree.Operation{Kind: statetree.OpSet, Path: statetree.Path{"sites", "example.com"}, Value: "x"},
		statetree.Operation{Kind: statetree.OpSet, Path: statetree.Path{""}, Value: "empty"},
	)

	// assert
	require.NoError(t, err)

	reader, openErr := session.Open(ctx, log, roomID)
	require.NoError(t, openErr, "the room must reopen after storing unusual keys")
	t.Cleanup(reader.Close)

	site, ok := statetree.GetIn(reader.Current(), statetree.Path{"sites", "example.com"})
	assert.True(t, ok)
	assert.Equal(t, "x", site)

	empty, ok := reader.Current().Get("")
	assert.True(t, ok)
	assert.Equal(t, "empty", empty)

	_, syncErr := writer.Sync(ctx)
	assert.NoError(t, syncErr)
}

func Test_Checkpoint_Then_Open_RestoresFromSnapshot(t *testing.T) {
	// setup
	ctx := context.Background()
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()

	// arrange
	writer := givenSession(t, log, roomID)
	givenTodos(t, writer, "milk")
	require.NoError(t, writer.Checkpoint(ctx))
	require.NoError(t, writer.Update(ctx, statetree.SetAt("title", "groceries")))

	// act
	reader := givenSession(t, log, roomID)

	// assert
	snapshot, err := log.LoadSnapshot(ctx, roomID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Less(t, snapshot.SequenceNumber, reader.Sequence())
	assert.Equal(t, 1, selectTodoCount(reader.Current()))
	assert.Equal(t, "groceries", selectTitle(reader.Current()))
}

func Test_Checkpoint_WithoutSnapshotStore_Fails(t *testing.T) {
	// setup
	s := givenSession(t, patchLogOnly{memfeed.NewPatchLog()}, uuid.NewString())

	// act
	err := s.Checkpoint(context.Background())

	// assert
	assert.ErrorIs(t, err, session.ErrSnapshotsNotSupported)
}

func Test_Update_NotifiesSubscribersBeforeReturning(t *testing.T) {
	// setup
	s := givenSession(t, memfeed.NewPatchLog(), uuid.NewString())
	counts := &recorder[int]{}

	_, err := selectors.Subscribe(s.Engine(), selectors.Pure(selectTodoCount), counts.record)
	require.NoError(t, err)

	// act
	givenTodos(t, s, "milk", "eggs")

	// assert
	assert.Equal(t, []int{2}, counts.get())
}

func Test_Update_InvalidOperations_AreNotAppended(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	s := givenSession(t, log, uuid.NewString())

	// act
	err := s.Update(context.Background(), statetree.DeleteAt("todos.3"))

	// assert
	assert.ErrorIs(t, err, session.ErrInvalidOperations)
	assert.Equal(t, 0, log.AppendCount())
}

func Test_Update_WithoutOperations_IsNoop(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	s := givenSession(t, log, uuid.NewString())

	// act
	err := s.Update(context.Background())

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 0, log.AppendCount())
}

func Test_Update_OnStaleSession_SyncsAndRetries(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()
	metrics := testdoubles.NewMetricsCollectorSpy(true)

	stale := givenSession(t, log, roomID, session.WithMetrics(metrics), session.WithRetryBaseDelay(time.Millisecond))
	other := givenSession(t, log, roomID)

	titles := &recorder[string]{}
	_, err := selectors.Subscribe(stale.Engine(), selectors.Pure(selectTitle), titles.record)
	require.NoError(t, err)

	// arrange
	require.NoError(t, other.Update(context.Background(), statetree.SetAt("title", "from other")))

	// act
	err = stale.Update(context.Background(), statetree.SetAt("owner", "stale"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.CounterCount("session_update_retries_total"))
	assert.True(t, metrics.HasDurationRecord("session_update_retry_delay_seconds"))
	assert.Equal(t, []string{"from other"}, titles.get())

	owner, _ := stale.Current().Get("owner")
	assert.Equal(t, "stale", owner)
	assert.Equal(t, "from other", selectTitle(stale.Current()))
}

func Test_Update_GivesUpAfterMaxAttempts(t *testing.T) {
	// setup
	log := &conflictingLog{PatchLog: memfeed.NewPatchLog()}
	metrics := testdoubles.NewMetricsCollectorSpy(true)
	s := givenSession(t, log, uuid.NewString(),
		session.WithMetrics(metrics),
		session.WithRetryMaxAttempts(3),
		session.WithRetryBaseDelay(0),
	)

	// act
	err := s.Update(context.Background(), statetree.SetAt("title", "never"))

	// assert
	assert.ErrorIs(t, err, feed.ErrConcurrencyConflict)
	assert.Equal(t, int32(3), log.appends.Load())
	assert.Equal(t, 2, metrics.CounterCount("session_update_retries_total"))
	assert.Equal(t, 1, metrics.CounterCount("session_update_max_retries_reached_total"))
}

func Test_Update_CanceledContext_StopsRetrying(t *testing.T) {
	// setup
	log := &conflictingLog{PatchLog: memfeed.NewPatchLog()}
	s := givenSession(t, log, uuid.NewString(), session.WithRetryBaseDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// act
	err := s.Update(ctx, statetree.SetAt("title", "never"))

	// assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), log.appends.Load())
}

func Test_Sync_AppliesForeignPatchesAsOneBatch(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()
	reader := givenSession(t, log, roomID)
	writer := givenSession(t, log, roomID)

	notifications := &recorder[int]{}
	_, err := selectors.Subscribe(reader.Engine(), selectors.Pure(selectTodoCount), notifications.record)
	require.NoError(t, err)

	// arrange
	givenTodos(t, writer, "milk")
	require.NoError(t, writer.Update(context.Background(), statetree.InsertAt("todos.1", map[string]any{"text": "eggs"})))

	// act
	applied, syncErr := reader.Sync(context.Background())
	appliedAgain, syncAgainErr := reader.Sync(context.Background())

	// assert
	require.NoError(t, syncErr)
	require.NoError(t, syncAgainErr)
	assert.Equal(t, 3, applied)
	assert.Equal(t, 0, appliedAgain)
	assert.Equal(t, []int{2}, notifications.get(), "one notification for the whole batch")
}

func Test_Update_FromCallback_IsDeliveredAfterwards(t *testing.T) {
	// setup
	s := givenSession(t, memfeed.NewPatchLog(), uuid.NewString())
	titles := &recorder[string]{}

	var updateErr error
	_, err := selectors.Subscribe(s.Engine(), selectors.Pure(selectTodoCount), func(count int) {
		if count == 1 {
			updateErr = s.Update(context.Background(), statetree.SetAt("title", "one todo"))
		}
	})
	require.NoError(t, err)

	_, err = selectors.Subscribe(s.Engine(), selectors.Pure(selectTitle), titles.record)
	require.NoError(t, err)

	// act
	givenTodos(t, s, "milk")

	// assert
	assert.NoError(t, updateErr)
	assert.Equal(t, []string{"one todo"}, titles.get())
	assert.Same(t, s.Current(), s.Engine().Current())
}

func Test_Run_PollsForeignChanges(t *testing.T) {
	// setup
	log := memfeed.NewPatchLog()
	roomID := uuid.NewString()
	reader := givenSession(t, log, roomID, session.WithPollInterval(5*time.Millisecond))
	writer := givenSession(t, log, roomID)

	titles := &recorder[string]{}
	_, err := selectors.Subscribe(reader.Engine(), selectors.Pure(selectTitle), titles.record)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- reader.Run(ctx)
	}()

	// act
	require.NoError(t, writer.Update(context.Background(), statetree.SetAt("title", "polled")))

	// assert
	assert.Eventually(t, func() bool {
		values := titles.get()
		return len(values) == 1 && values[0] == "polled"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func Test_Close_ReleasesSubscriptionsAndRejectsOperations(t *testing.T) {
	// setup
	s := givenSession(t, memfeed.NewPatchLog(), uuid.NewString())
	_, err := selectors.Subscribe(s.Engine(), selectors.Pure(selectTitle), func(string) {})
	require.NoError(t, err)

	// act
	s.Close()
	s.Close()

	// assert
	assert.Equal(t, 0, s.Engine().Len())
	assert.ErrorIs(t, s.Update(context.Background(), statetree.SetAt("title", "late")), session.ErrSessionClosed)
	_, syncErr := s.Sync(context.Background())
	assert.ErrorIs(t, syncErr, session.ErrSessionClosed)
	assert.ErrorIs(t, s.Checkpoint(context.Background()), session.ErrSessionClosed)

	_, subscribeErr := selectors.Subscribe(s.Engine(), selectors.Pure(selectTitle), func(string) {})
	assert.ErrorIs(t, subscribeErr, selectors.ErrEngineClosed)
}

func Test_Observability_SharedAcrossEngineAndSession(t *testing.T) {
	// setup
	metrics := testdoubles.NewMetricsCollectorSpy(true)
	tracing := testdoubles.NewTracingCollectorSpy(true)
	roomID := uuid.NewString()
	s := givenSession(t, memfeed.NewPatchLog(), roomID, session.WithMetrics(metrics), session.WithTracing(tracing))

	_, err := selectors.Subscribe(s.Engine(), selectors.Pure(selectTitle), func(string) {})
	require.NoError(t, err)

	// act
	require.NoError(t, s.Update(context.Background(), statetree.SetAt("title", "traced")))

	// assert
	assert.True(t, metrics.HasDurationRecord("session_sync_duration_seconds"))
	assert.True(t, metrics.HasDurationRecord("selectors_pass_duration_seconds"))

	syncSpans := tracing.GetSpansByName("session.sync")
	require.NotEmpty(t, syncSpans)
	assert.Equal(t, roomID, syncSpans[0].StartAttributes["room_id"])

	passSpans := tracing.GetSpansByName("selectors.pass")
	require.Len(t, passSpans, 1)
	assert.Equal(t, roomID, passSpans[0].StartAttributes["engine"])
}
