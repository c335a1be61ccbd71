// Package settings persists user preferences in SQLite and notifies
// subscribers when they change, including edits made by other processes.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

const (
	KeyShowHints         = "showHints"
	KeyUpdateFrequencyMs = "updateFrequencyMs"
)

// ErrUnknownKey is returned for keys the store does not manage.
var ErrUnknownKey = errors.New("settings: unknown key")

// Values is the typed view of every setting.
type Values struct {
	ShowHints         bool `json:"showHints" yaml:"show_hints"`
	UpdateFrequencyMs int  `json:"updateFrequencyMs" yaml:"update_frequency_ms"`
}

// Defaults returns the built-in values.
func Defaults() Values {
	return Values{ShowHints: true, UpdateFrequencyMs: 100}
}

// Options tunes a Store.
type Options struct {
	// Defaults seed keys that were never written. Zero means Defaults().
	Defaults *Values
	// PollInterval is how often Watch checks for outside writes. Default 1s.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Store is a key/value settings table.
type Store struct {
	db       *sql.DB
	defaults Values
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	subs map[int]func(Values)
	next int
}

// Open opens or creates the settings database at path.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection, so PRAGMA data_version only moves for writes made
	// by someone else.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		if cerr := db.Close(); cerr != nil {
			_ = cerr
		}
		return nil, err
	}
	s := &Store{
		db:       db,
		defaults: Defaults(),
		interval: opts.PollInterval,
		log:      opts.Logger,
		subs:     map[int]func(Values){},
	}
	if opts.Defaults != nil {
		s.defaults = *opts.Defaults
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validate(key, value string) error {
	switch key {
	case KeyShowHints:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("settings: %s: %w", key, err)
		}
	case KeyUpdateFrequencyMs:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("settings: %s: %w", key, err)
		}
		if n <= 0 {
			return fmt.Errorf("settings: %s must be positive", key)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

func (s *Store) defaultFor(key string) string {
	switch key {
	case KeyShowHints:
		return strconv.FormatBool(s.defaults.ShowHints)
	case KeyUpdateFrequencyMs:
		return strconv.Itoa(s.defaults.UpdateFrequencyMs)
	}
	return ""
}

// Get returns the stored value for key, falling back to its default.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := validate(key, s.defaultFor(key)); err != nil {
		return "", err
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaultFor(key), nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Set writes one setting and notifies subscribers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	if err := s.put(ctx, map[string]string{key: value}); err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

// SetShowHints is Set for the hint toggle.
func (s *Store) SetShowHints(ctx context.Context, show bool) error {
	return s.Set(ctx, KeyShowHints, strconv.FormatBool(show))
}

// Reset writes defaults for every key and notifies subscribers.
func (s *Store) Reset(ctx context.Context, defaults Values) error {
	if defaults.UpdateFrequencyMs <= 0 {
		defaults.UpdateFrequencyMs = Defaults().UpdateFrequencyMs
	}
	if err := s.put(ctx, map[string]string{
		KeyShowHints:         strconv.FormatBool(defaults.ShowHints),
		KeyUpdateFrequencyMs: strconv.Itoa(defaults.UpdateFrequencyMs),
	}); err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

func (s *Store) put(ctx context.Context, kv map[string]string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				_ = rerr
			}
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range kv {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Values loads every setting.
func (s *Store) Values(ctx context.Context) (Values, error) {
	out := s.defaults
	hints, err := s.Get(ctx, KeyShowHints)
	if err != nil {
		return out, err
	}
	freq, err := s.Get(ctx, KeyUpdateFrequencyMs)
	if err != nil {
		return out, err
	}
	if b, err := strconv.ParseBool(hints); err == nil {
		out.ShowHints = b
	}
	if n, err := strconv.Atoi(freq); err == nil && n > 0 {
		out.UpdateFrequencyMs = n
	}
	return out, nil
}

// Subscribe registers fn for every change and returns its cancel func.
func (s *Store) Subscribe(fn func(Values)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) broadcast(ctx context.Context) {
	vals, err := s.Values(ctx)
	if err != nil {
		s.log.Warn("settings: reload failed", "error", err)
		return
	}
	s.mu.Lock()
	fns := make([]func(Values), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(vals)
	}
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// Watch blocks until ctx is cancelled, notifying subscribers whenever
// another connection writes the database.
func (s *Store) Watch(ctx context.Context) {
	last, err := s.dataVersion(ctx)
	if err != nil {
		s.log.Warn("settings: initial version check failed", "error", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := s.dataVersion(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("settings: version check failed", "error", err)
				}
				continue
			}
			if cur != last {
				last = cur
				s.log.Debug("settings: outside change", "version", cur)
				s.broadcast(ctx)
			}
		}
	}
}
