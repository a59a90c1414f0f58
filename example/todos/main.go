// Command todos drives a todo list room through a session and prints what its selectors see.
// Set LIVEFEED_DSN to keep the room in PostgreSQL, otherwise it lives in memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/live-selectors-go/example/todos/config"
	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/feed/memfeed"
	"github.com/AntonStoeckl/live-selectors-go/feed/postgresfeed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
	"github.com/AntonStoeckl/live-selectors-go/session"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

type Config struct {
	RoomID        string
	Observability bool
	Debug         bool
	Follow        bool
}

func main() {
	cfg := parseFlags()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, config.NewObservabilityConfig(cfg.Observability, level), logger); err != nil {
		logger.Error("todos failed", "error", err.Error())
		os.Exit(1)
	}
}

func parseFlags() Config {
	var (
		roomID        = flag.String("room", "todos", "Room to open")
		observability = flag.Bool("observability-enabled", false, "Enable OpenTelemetry observability")
		debug         = flag.Bool("debug", false, "Log at debug level")
		follow        = flag.Bool("follow", false, "Keep polling the room for foreign changes until interrupted")
	)

	flag.Parse()

	return Config{
		RoomID:        *roomID,
		Observability: *observability,
		Debug:         *debug,
		Follow:        *follow,
	}
}

func run(ctx context.Context, cfg Config, obs config.ObservabilityConfig, logger *slog.Logger) error {
	patchLog, closeLog, err := openPatchLog(ctx, obs)
	if err != nil {
		return err
	}
	defer closeLog()

	s, err := session.Open(ctx, patchLog, cfg.RoomID, sessionOptions(obs)...)
	if err != nil {
		return fmt.Errorf("opening room %q failed: %w", cfg.RoomID, err)
	}
	defer s.Close()

	if err := subscribe(s, logger); err != nil {
		return err
	}

	if err := seed(ctx, s); err != nil {
		return err
	}

	if err := completeFirstPending(ctx, s); err != nil {
		return err
	}

	if err := s.Checkpoint(ctx); err != nil {
		logger.Warn("checkpoint failed", "error", err.Error())
	}

	if !cfg.Follow {
		return nil
	}

	logger.Info("following room, press Ctrl+C to stop", "room_id", cfg.RoomID)

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func openPatchLog(ctx context.Context, obs config.ObservabilityConfig) (feed.PatchLog, func(), error) {
	dsn := config.PostgresDSN()
	if dsn == "" {
		return memfeed.NewPatchLog(), func() {}, nil
	}

	poolConfig, err := config.PostgresPGXPoolConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing LIVEFEED_DSN failed: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("creating pgx pool failed: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connecting to database failed: %w", err)
	}

	var options []postgresfeed.Option
	if obs.ContextualLogger != nil {
		options = append(options, postgresfeed.WithContextualLogger(obs.ContextualLogger))
	}
	if obs.MetricsCollector != nil {
		options = append(options, postgresfeed.WithMetrics(obs.MetricsCollector))
	}
	if obs.TracingCollector != nil {
		options = append(options, postgresfeed.WithTracing(obs.TracingCollector))
	}

	patchLog, err := postgresfeed.NewPatchLogFromPGXPool(pool, options...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	if err := patchLog.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return patchLog, pool.Close, nil
}

func sessionOptions(obs config.ObservabilityConfig) []session.Option {
	var options []session.Option
	if obs.ContextualLogger != nil {
		options = append(options, session.WithContextualLogger(obs.ContextualLogger))
	}
	if obs.MetricsCollector != nil {
		options = append(options, session.WithMetrics(obs.MetricsCollector))
	}
	if obs.TracingCollector != nil {
		options = append(options, session.WithTracing(obs.TracingCollector))
	}

	return options
}

type todo struct {
	Text string
	Done bool
}

func selectTodos(root *statetree.Object) []todo {
	list, ok := root.GetList("todos")
	if !ok {
		return nil
	}

	todos := make([]todo, 0, list.Len())
	for _, item := range list.Items() {
		entry, ok := item.(*statetree.Object)
		if !ok {
			continue
		}

		text, _ := entry.Get("text")
		done, _ := entry.Get("done")
		textValue, _ := text.(string)
		doneValue, _ := done.(bool)
		todos = append(todos, todo{Text: textValue, Done: doneValue})
	}

	return todos
}

func selectPending(root *statetree.Object) []string {
	var pending []string
	for _, t := range selectTodos(root) {
		if !t.Done {
			pending = append(pending, t.Text)
		}
	}

	return pending
}

func subscribe(s *session.Session, logger *slog.Logger) error {
	engine := s.Engine()

	_, err := selectors.Subscribe(engine, selectors.Pure(func(root *statetree.Object) int {
		return len(selectTodos(root))
	}), func(count int) {
		logger.Info("todo count changed", "count", count)
	})
	if err != nil {
		return err
	}

	_, err = selectors.SubscribeWithComparison(engine, selectors.Pure(selectPending), selectors.Shallow[[]string],
		func(pending []string) {
			logger.Info("pending todos changed", "pending", pending)
		},
	)
	if err != nil {
		return err
	}

	var title *selectors.Selection[string]
	var total *selectors.Selection[int]

	group, err := selectors.NewGroup(engine, func() {
		logger.Info("header rendered", "title", title.Get(), "total", total.Get())
	})
	if err != nil {
		return err
	}

	if title, err = selectors.Select(group, selectors.Pure(func(root *statetree.Object) string {
		value, _ := root.Get("title")
		text, _ := value.(string)
		return text
	})); err != nil {
		return err
	}

	total, err = selectors.Select(group, selectors.Pure(func(root *statetree.Object) int {
		return len(selectTodos(root))
	}))

	return err
}

func seed(ctx context.Context, s *session.Session) error {
	if _, ok := s.Current().GetList("todos"); ok {
		return nil
	}

	return s.Update(ctx,
		statetree.SetAt("title", "Groceries"),
		statetree.SetAt("todos", []any{}),
		statetree.InsertAt("todos.0", map[string]any{"text": "milk", "done": false}),
		statetree.InsertAt("todos.1", map[string]any{"text": "eggs", "done": false}),
		statetree.InsertAt("todos.2", map[string]any{"text": "bread", "done": false}),
	)
}

func completeFirstPending(ctx context.Context, s *session.Session) error {
	for i, t := range selectTodos(s.Current()) {
		if !t.Done {
			return s.Update(ctx, statetree.SetAt("todos."+strconv.Itoa(i)+".done", true))
		}
	}

	return nil
}
