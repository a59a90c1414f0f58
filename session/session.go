package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

const defaultPollInterval = 500 * time.Millisecond

var (
	// ErrNilPatchLog is returned when Open is called without a patch log.
	ErrNilPatchLog = errors.New("patch log must not be nil")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrSnapshotsNotSupported is returned by Checkpoint if the patch log cannot store snapshots.
	ErrSnapshotsNotSupported = errors.New("patch log does not support snapshots")

	// ErrRestoringSnapshotFailed is returned when a stored snapshot cannot be decoded.
	ErrRestoringSnapshotFailed = errors.New("restoring the snapshot failed")

	// ErrApplyingPatchesFailed is returned when patches read from the log do not apply to the tree.
	ErrApplyingPatchesFailed = errors.New("applying patches failed")

	// ErrInvalidOperations is returned by Update when the operations do not apply to the current tree.
	ErrInvalidOperations = errors.New("operations do not apply to the current tree")

	// ErrEncodingOperationFailed is returned when an operation cannot be turned into a patch.
	ErrEncodingOperationFailed = errors.New("encoding the operation failed")

	// ErrDecodingPatchFailed is returned when a stored patch value is not valid JSON.
	ErrDecodingPatchFailed = errors.New("decoding the patch failed")

	// ErrInvalidPollInterval is returned when the poll interval is not positive.
	ErrInvalidPollInterval = errors.New("poll interval must be positive")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// Session keeps one room's tree in sync with its patch log and drives the selector engine.
// It is safe for concurrent use, and Update may be called from within selector callbacks.
type Session struct {
	log       feed.PatchLog
	snapshots feed.SnapshotStore
	roomID    string
	engine    *selectors.Engine[*statetree.Object]
	closed    atomic.Bool

	mu         sync.Mutex
	root       *statetree.Object
	sequence   feed.MaxSequenceNumberUint
	delivered  *statetree.Object
	delivering bool

	pollInterval     time.Duration
	retry            retryConfig
	engineOptions    []selectors.Option
	logger           feed.Logger
	contextualLogger feed.ContextualLogger
	metricsCollector feed.MetricsCollector
	tracingCollector feed.TracingCollector
}

// Open restores the room from its latest snapshot, if log stores snapshots, and the patches after it,
// then builds the selector engine over the resulting tree.
func Open(ctx context.Context, log feed.PatchLog, roomID string, options ...Option) (*Session, error) {
	if log == nil {
		return nil, ErrNilPatchLog
	}

	if roomID == "" {
		return nil, feed.ErrEmptyRoomID
	}

	s := &Session{
		log:          log,
		roomID:       roomID,
		root:         statetree.EmptyObject(),
		pollInterval: defaultPollInterval,
		retry:        defaultRetryConfig(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if store, ok := log.(feed.SnapshotStore); ok {
		s.snapshots = store

		if err := s.restoreSnapshot(ctx); err != nil {
			return nil, err
		}
	}

	if _, err := s.pull(feed.WithStrongConsistency(ctx)); err != nil {
		return nil, err
	}

	engine, err := selectors.NewEngine(s.root, s.buildEngineOptions()...)
	if err != nil {
		return nil, err
	}

	s.engine = engine
	s.delivered = s.root

	s.logInfo(ctx, logMsgOpened, logAttrSequenceNumber, s.sequence)

	return s, nil
}

func (s *Session) restoreSnapshot(ctx context.Context) error {
	snapshot, err := s.snapshots.LoadSnapshot(ctx, s.roomID)
	if err != nil {
		return err
	}

	if snapshot == nil {
		return nil
	}

	root, err := statetree.FromJSON(snapshot.Data)
	if err != nil {
		return errors.Join(ErrRestoringSnapshotFailed, err)
	}

	s.root = root
	s.sequence = snapshot.SequenceNumber

	s.logInfo(ctx, logMsgSnapshotRestored, logAttrSequenceNumber, snapshot.SequenceNumber)

	return nil
}

func (s *Session) buildEngineOptions() []selectors.Option {
	options := []selectors.Option{selectors.WithName(s.roomID)}

	if s.logger != nil {
		options = append(options, selectors.WithLogger(s.logger))
	}

	if s.contextualLogger != nil {
		options = append(options, selectors.WithContextualLogger(s.contextualLogger))
	}

	if s.metricsCollector != nil {
		options = append(options, selectors.WithMetrics(s.metricsCollector))
	}

	if s.tracingCollector != nil {
		options = append(options, selectors.WithTracing(s.tracingCollector))
	}

	return append(options, s.engineOptions...)
}

// Engine returns the selector engine to subscribe to.
func (s *Session) Engine() *selectors.Engine[*statetree.Object] {
	return s.engine
}

// RoomID returns the room this session follows.
func (s *Session) RoomID() string {
	return s.roomID
}

// Current returns the latest tree the session knows of. It can be ahead of the engine's Current
// while a delivery is in progress.
func (s *Session) Current() *statetree.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.root
}

// Sequence returns the sequence number Current reflects.
func (s *Session) Sequence() feed.MaxSequenceNumberUint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sequence
}

// Sync reads the patches appended since the last sync, with eventual consistency, and applies them
// as one batch. Subscribers are notified once per batch. It returns the number of applied patches.
//
// If another goroutine, or a callback further up the stack, is already delivering, the new tree is
// handed to that delivery and Sync returns without waiting for it.
func (s *Session) Sync(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}

	return s.sync(feed.WithEventualConsistency(ctx))
}

func (s *Session) sync(ctx context.Context) (int, error) {
	applied, err := s.pull(ctx)
	if err != nil {
		return 0, err
	}

	return applied, s.deliver(ctx)
}

// pull reads and applies new patches without notifying the engine.
func (s *Session) pull(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ctx, tracer := s.startSyncTracing(ctx, s.sequence)

	applied, err := s.pullLocked(ctx)
	duration := time.Since(start)

	tracer.finish(applied, duration, err)
	s.recordSyncDuration(ctx, duration, err)

	if err == nil && applied > 0 {
		s.logInfo(ctx, logMsgPatchesSynced,
			logAttrPatchCount, applied,
			logAttrSequenceNumber, s.sequence,
			logAttrDurationMS, toMilliseconds(duration),
		)
	}

	return applied, err
}

func (s *Session) pullLocked(ctx context.Context) (int, error) {
	patches, maxSequence, err := s.log.Query(ctx, s.roomID, s.sequence)
	if err != nil {
		return 0, err
	}

	if len(patches) == 0 {
		return 0, nil
	}

	operations, err := operationsFromStorablePatches(patches)
	if err != nil {
		return 0, err
	}

	next, err := statetree.Apply(s.root, operations...)
	if err != nil {
		return 0, errors.Join(ErrApplyingPatchesFailed, err)
	}

	s.root = next
	s.sequence = maxSequence

	return len(patches), nil
}

// deliver hands the latest tree to the engine until no newer tree is waiting.
// Only one goroutine delivers at a time, so subscribers never see an older tree after a newer one.
func (s *Session) deliver(ctx context.Context) error {
	s.mu.Lock()

	if s.delivering || s.engine == nil {
		s.mu.Unlock()
		return nil
	}

	s.delivering = true

	var errs []error

	for s.delivered != s.root && !s.closed.Load() {
		next := s.root
		s.delivered = next
		s.mu.Unlock()

		errs = append(errs, s.engine.OnSourceChanged(ctx, next))

		s.mu.Lock()
	}

	s.delivering = false
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Update appends operations to the room's patch log as one batch and then syncs, so subscribers
// see the result before Update returns, unless a delivery further up the stack is in progress.
// Failures of selectors or callbacks during that sync are returned although the batch was stored.
//
// The batch is guarded by the sequence number of the session's current tree. If another writer
// appended in the meantime, the session syncs and retries with exponential backoff and jitter.
// Operations that do not apply to the current tree fail with ErrInvalidOperations and are not retried.
func (s *Session) Update(ctx context.Context, operations ...statetree.Operation) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if len(operations) == 0 {
		return nil
	}

	strongCtx := feed.WithStrongConsistency(ctx)

	err := s.retryWithExponentialBackoff(strongCtx, func(ctx context.Context) error {
		appendErr := s.appendOnce(ctx, operations)

		if errors.Is(appendErr, feed.ErrConcurrencyConflict) {
			if _, syncErr := s.sync(ctx); syncErr != nil {
				return errors.Join(appendErr, syncErr)
			}
		}

		return appendErr
	})

	if err != nil {
		return err
	}

	s.logInfo(ctx, logMsgUpdateCommitted, logAttrOperationCount, len(operations))

	_, err = s.sync(strongCtx)

	return err
}

func (s *Session) appendOnce(ctx context.Context, operations []statetree.Operation) error {
	s.mu.Lock()
	root, sequence := s.root, s.sequence
	s.mu.Unlock()

	if _, err := statetree.Apply(root, operations...); err != nil {
		return errors.Join(ErrInvalidOperations, err)
	}

	patches, err := storablePatchesFromOperations(s.roomID, operations, time.Now())
	if err != nil {
		return err
	}

	return s.log.Append(ctx, s.roomID, sequence, patches[0], patches[1:]...)
}

// Checkpoint persists the session's current tree as the room's snapshot.
func (s *Session) Checkpoint(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if s.snapshots == nil {
		return ErrSnapshotsNotSupported
	}

	s.mu.Lock()
	root, sequence := s.root, s.sequence
	s.mu.Unlock()

	data, err := root.MarshalJSON()
	if err != nil {
		return err
	}

	snapshot, err := feed.BuildSnapshot(s.roomID, sequence, data)
	if err != nil {
		return err
	}

	if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}

	s.logInfo(ctx, logMsgCheckpointSaved, logAttrSequenceNumber, sequence)

	return nil
}

// Run syncs every poll interval until ctx is done or the session is closed.
// Failed syncs are logged and retried on the next tick.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if s.closed.Load() {
				return ErrSessionClosed
			}

			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logError(ctx, logMsgPollSyncFailed, err)
			}
		}
	}
}

// Close closes the engine, releasing all subscriptions. It is idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.engine.Close()
	s.logInfo(context.Background(), logMsgClosed)
}
