package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/database"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/migrations"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 200

	// DefaultUsageDays is the trailing window of the daily usage report.
	DefaultUsageDays = 31

	// MaxUsageDays caps the window a caller may request.
	MaxUsageDays = 366

	// timestampLayout keeps stored timestamps fixed-width so they sort and
	// compare as strings.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Opener creates a ready-to-use pool. The default opens SQLite from
// Config.Database and applies the embedded migrations.
type Opener func(ctx context.Context) (*database.DB, error)

// Config controls where the store lives and how pool creation is retried.
type Config struct {
	Database database.Config

	// MaxAttempts bounds pool creation attempts per sequence (minimum 1).
	MaxAttempts int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithOpener replaces the pool factory.
func WithOpener(open Opener) Option {
	return func(s *Store) { s.open = open }
}

// WithClock replaces the clock that stamps recorded rows and anchors the
// usage report window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store persists switch events and answers status queries.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	cfg    Config
	open   Opener
	now    func() time.Time
	logger *logging.Logger

	group singleflight.Group

	mu     sync.RWMutex
	db     *database.DB
	closed bool
	done   chan struct{}
}

// New creates a Store. No connection is made until the first operation.
func New(cfg Config, logger *logging.Logger, opts ...Option) *Store {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	s := &Store{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "store"),
		done:   make(chan struct{}),
	}
	s.open = s.openSQLite
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) openSQLite(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, s.cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return db, nil
}

// pool returns the open pool, creating it on first use. Concurrent callers
// wait on the same attempt sequence; a caller whose ctx ends stops waiting
// without cancelling the sequence for the others.
func (s *Store) pool(ctx context.Context) (*database.DB, error) {
	s.mu.RLock()
	db, closed := s.db, s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if db != nil {
		return db, nil
	}

	ch := s.group.DoChan("pool", func() (any, error) {
		return s.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*database.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) connect(ctx context.Context) (*database.DB, error) {
	s.mu.RLock()
	if s.db != nil {
		db := s.db
		s.mu.RUnlock()
		return db, nil
	}
	s.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		db, err := s.open(ctx)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				db.Close() //nolint:errcheck // Store closed while connecting
				return nil, ErrClosed
			}
			s.db = db
			s.mu.Unlock()

			s.logger.Info("store pool ready", "attempt", attempt)
			return db, nil
		}

		lastErr = err
		s.logger.Warn("store pool creation failed",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"error", err,
		)

		if attempt == s.cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-s.done:
			timer.Stop()
			return nil, ErrClosed
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: after %d attempts: %w", ErrUnavailable, s.cfg.MaxAttempts, lastErr)
}

// Close releases the pool. Operations after Close return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// HealthCheck reports whether the pool can be obtained and answers queries.
func (s *Store) HealthCheck(ctx context.Context) error {
	db, err := s.pool(ctx)
	if err != nil {
		return err
	}
	return db.HealthCheck(ctx)
}

// RecordEvent appends ev to the status log. The row is stamped with the
// store's clock; ev.Timestamp comes from the device and is not persisted.
func (s *Store) RecordEvent(ctx context.Context, ev device.StatusEvent) error {
	if ev.DeviceName == "" {
		return ErrInvalidDevice
	}

	db, err := s.pool(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO device_status (device_name, status, timestamp) VALUES (?, ?, ?)",
		ev.DeviceName,
		string(device.NormalizeStatus(string(ev.Status))),
		formatTimestamp(s.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting device status: %w", err)
	}
	return nil
}

// LatestStatusOfAllDevices returns the newest row per device ordered by device name.
func (s *Store) LatestStatusOfAllDevices(ctx context.Context) ([]device.StatusRecord, error) {
	db, err := s.pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT ds.id, ds.device_name, ds.status, ds.timestamp
		 FROM device_status ds
		 JOIN (
			SELECT device_name, MAX(id) AS max_id
			FROM device_status
			GROUP BY device_name
		 ) latest ON ds.id = latest.max_id
		 ORDER BY ds.device_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest statuses: %w", err)
	}
	return scanRecords(rows)
}

// DeviceHistory returns the most recent rows for one device, newest first.
// limit defaults to 10 and is capped at 200.
func (s *Store) DeviceHistory(ctx context.Context, deviceName string, limit int) ([]device.StatusRecord, error) {
	if deviceName == "" {
		return nil, ErrInvalidDevice
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	db, err := s.pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, device_name, status, timestamp
		 FROM device_status
		 WHERE device_name = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		deviceName,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device history: %w", err)
	}
	return scanRecords(rows)
}

// DailyUsage counts events per UTC calendar day from the start of the day
// `days` days ago until now. Only days with at least one event are
// returned, newest first. days <= 0 means DefaultUsageDays; larger windows
// are capped at MaxUsageDays.
func (s *Store) DailyUsage(ctx context.Context, days int) ([]device.DailyUsage, error) {
	switch {
	case days <= 0:
		days = DefaultUsageDays
	case days > MaxUsageDays:
		days = MaxUsageDays
	}

	db, err := s.pool(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	rows, err := db.QueryContext(ctx,
		`SELECT substr(timestamp, 1, 10) AS day, COUNT(*)
		 FROM device_status
		 WHERE timestamp >= ?
		 GROUP BY day
		 ORDER BY day DESC`,
		formatTimestamp(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close()

	usage := make([]device.DailyUsage, 0)
	for rows.Next() {
		var u device.DailyUsage
		if err := rows.Scan(&u.Date, &u.Count); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily usage: %w", err)
	}
	return usage, nil
}
