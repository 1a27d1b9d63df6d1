package sql

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/tabula/dialect"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of select statements executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of other statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of failed statements.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, duration time.Duration)

// StatsDriver wraps a Driver with statement statistics collection.
type StatsDriver struct {
	*Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements with the driver logger.
func WithSlowQueryLog() StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = func(ctx context.Context, query string, duration time.Duration) {
			s.logger.WarnContext(ctx, "slow query detected", "duration", duration, "query", query)
		}
	}
}

// NewStatsDriver wraps a Driver with statistics collection.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	client := model.NewClient(reg, stats)
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Select runs a query and records statistics.
func (d *StatsDriver) Select(ctx context.Context, query string) ([]dialect.Row, error) {
	start := time.Now()
	rows, err := d.Driver.Select(ctx, query)
	d.record(ctx, query, start, err, true)
	return rows, err
}

// Execute runs a statement and records statistics.
func (d *StatsDriver) Execute(ctx context.Context, query string) (int64, error) {
	start := time.Now()
	n, err := d.Driver.Execute(ctx, query)
	d.record(ctx, query, start, err, false)
	return n, err
}

func (d *StatsDriver) record(ctx context.Context, query string, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		d.stats.Errors.Add(1)
	}

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, duration)
		}
	}
}

// DebugDriver wraps a Driver and keeps every statement in a buffer, for
// inspection by tests and debug pages.
type DebugDriver struct {
	*Driver
	log func(context.Context, string)

	mu      sync.Mutex
	queries []string
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, string)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver wraps a Driver with a statement buffer and logs every
// statement at info level.
func NewDebugDriver(drv *Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{Driver: drv}
	d.log = func(ctx context.Context, q string) {
		drv.logger.InfoContext(ctx, q)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Queries returns the statements run so far.
func (d *DebugDriver) Queries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.queries)
}

// ResetQueries empties the statement buffer.
func (d *DebugDriver) ResetQueries() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = nil
}

func (d *DebugDriver) push(ctx context.Context, q string) {
	d.mu.Lock()
	d.queries = append(d.queries, q)
	d.mu.Unlock()
	d.log(ctx, q)
}

// Select records and runs a query.
func (d *DebugDriver) Select(ctx context.Context, query string) ([]dialect.Row, error) {
	d.push(ctx, query)
	return d.Driver.Select(ctx, query)
}

// Execute records and runs a statement.
func (d *DebugDriver) Execute(ctx context.Context, query string) (int64, error) {
	d.push(ctx, query)
	return d.Driver.Execute(ctx, query)
}

// Begin records and starts a transaction.
func (d *DebugDriver) Begin(ctx context.Context) error {
	d.push(ctx, "BEGIN")
	return d.Driver.Begin(ctx)
}

// Commit records and commits the transaction.
func (d *DebugDriver) Commit() error {
	d.push(context.Background(), "COMMIT")
	return d.Driver.Commit()
}

// Rollback records and rolls back the transaction.
func (d *DebugDriver) Rollback() error {
	d.push(context.Background(), "ROLLBACK")
	return d.Driver.Rollback()
}

// Ensure interfaces are implemented.
var (
	_ dialect.Conn = (*StatsDriver)(nil)
	_ dialect.Conn = (*DebugDriver)(nil)
)

// OpenWithStats opens a connection with statistics collection enabled.
func OpenWithStats(name, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	drv, err := Open(name, source)
	if err != nil {
		return nil, nil, err
	}
	s := NewStatsDriver(drv, opts...)
	return s, s.QueryStats(), nil
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
