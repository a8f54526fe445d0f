package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/matches"
)

// Store persists triggers in Postgres for auditing.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open connects to the Postgres database at dsn.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(db, log), nil
}

func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

func (s *Store) Close() error { return s.db.Close() }

// InsertTrigger records t. Inserting the same trigger twice is a no-op.
func (s *Store) InsertTrigger(ctx context.Context, t matches.Trigger) error {
	caps := t.Captures
	if caps == nil {
		caps = map[string]string{}
	}
	b, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO triggers(id, occurred_at, rule_name, action, match_key, match_count, captures)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		t.ID.String(), t.At.UTC(), t.Rule, t.Action, string(t.Key), t.Count, string(b),
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// ListTriggers returns up to limit triggers, newest first, optionally for
// one rule only.
func (s *Store) ListTriggers(ctx context.Context, limit int, rule string) ([]matches.Trigger, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var (
		rows *sql.Rows
		err  error
	)
	const cols = `SELECT id, occurred_at, rule_name, action, match_key, match_count, captures FROM triggers`
	if rule == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY occurred_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE rule_name = $1 ORDER BY occurred_at DESC LIMIT $2`, rule, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	out := []matches.Trigger{}
	for rows.Next() {
		var (
			t    matches.Trigger
			id   string
			key  string
			caps []byte
		)
		if err := rows.Scan(&id, &t.At, &t.Rule, &t.Action, &key, &t.Count, &caps); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("trigger id %q: %w", id, err)
		}
		t.Key = matches.Key(key)
		if len(caps) > 0 {
			if err := json.Unmarshal(caps, &t.Captures); err != nil {
				return nil, fmt.Errorf("trigger %s captures: %w", id, err)
			}
			if len(t.Captures) == 0 {
				t.Captures = nil
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sink writes triggers to a Store from a background goroutine so that
// recording never blocks matching.
type Sink struct {
	store *Store
	ch    chan matches.Trigger
	wg    sync.WaitGroup
	once  sync.Once
	log   zerolog.Logger
}

// NewSink starts the writer. Triggers are dropped with a warning when more
// than buffer are pending.
func NewSink(s *Store, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	k := &Sink{store: s, ch: make(chan matches.Trigger, buffer), log: s.log}
	k.wg.Add(1)
	go k.loop()
	return k
}

func (k *Sink) loop() {
	defer k.wg.Done()
	for t := range k.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := k.store.InsertTrigger(ctx, t); err != nil {
			k.log.Error().Err(err).Str("rule", t.Rule).Msg("unable to persist trigger")
		}
		cancel()
	}
}

// Record queues t. It fits matches.Matches.OnTrigger.
func (k *Sink) Record(t matches.Trigger) {
	select {
	case k.ch <- t:
	default:
		k.log.Warn().Str("rule", t.Rule).Msg("trigger sink full, dropping trigger")
	}
}

// Close flushes pending triggers. Record must not be called afterwards.
func (k *Sink) Close() {
	k.once.Do(func() { close(k.ch) })
	k.wg.Wait()
}
