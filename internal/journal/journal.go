// Package journal persists run history to a local sqlite database: one row
// per pipeline run plus the plugin events and bitrate samples observed while
// it ran. The schema is managed by embedded migrations.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tspipe/internal/ts"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoRun is returned when a run id is not in the journal.
var ErrNoRun = errors.New("journal: no such run")

// Journal is an open run-history database.
type Journal struct {
	db *sql.DB
}

// Run is one pipeline run. StoppedAt is the zero time while the run is
// still in progress.
type Run struct {
	ID        string
	Chain     string
	StartedAt time.Time
	StoppedAt time.Time
	Packets   uint64
	Aborted   bool
}

// Event is a plugin event recorded during a run.
type Event struct {
	Plugin string
	Index  int
	Code   uint32
	At     time.Time
}

// Sample is one bitrate observation.
type Sample struct {
	At         time.Time
	BitRate    ts.BitRate
	Confidence ts.BitRateConfidence
}

// Open opens (creating if needed) the journal database at path and applies
// any pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal pragmas: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	// Closing m would close the underlying connection, so don't.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the underlying handle for read-only inspection consoles.
func (j *Journal) DB() *sql.DB { return j.db }

// StartRun records the start of a run and returns its generated id.
func (j *Journal) StartRun(chain string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := j.db.Exec(
		`INSERT INTO runs (id, chain, started_at_ns) VALUES (?, ?, ?)`,
		id, chain, at.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun records the end of a run.
func (j *Journal) FinishRun(id string, at time.Time, packets uint64, aborted bool) error {
	res, err := j.db.Exec(
		`UPDATE runs SET stopped_at_ns = ?, packets = ?, aborted = ? WHERE id = ?`,
		at.UnixNano(), int64(packets), aborted, id,
	)
	if err != nil {
		return fmt.Errorf("recording run end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRun
	}
	return nil
}

// Run returns one run by id.
func (j *Journal) Run(id string) (Run, error) {
	row := j.db.QueryRow(
		`SELECT id, chain, started_at_ns, stopped_at_ns, packets, aborted
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	return r, err
}

// Runs returns the most recent runs, newest first. A non-positive limit
// returns everything.
func (j *Journal) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := j.db.Query(
		`SELECT id, chain, started_at_ns, stopped_at_ns, packets, aborted
		 FROM runs ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var started int64
	var stopped sql.NullInt64
	var packets int64
	if err := row.Scan(&r.ID, &r.Chain, &started, &stopped, &packets, &r.Aborted); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if stopped.Valid {
		r.StoppedAt = time.Unix(0, stopped.Int64)
	}
	r.Packets = uint64(packets)
	return r, nil
}

// RecordEvent appends a plugin event to a run.
func (j *Journal) RecordEvent(runID, pluginName string, pluginIndex int, code uint32, at time.Time) error {
	_, err := j.db.Exec(
		`INSERT INTO plugin_events (run_id, plugin_name, plugin_index, code, created_at_ns)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, pluginName, pluginIndex, int64(code), at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording plugin event: %w", err)
	}
	return nil
}

// Events returns the events of a run in the order they were recorded.
func (j *Journal) Events(runID string) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT plugin_name, plugin_index, code, created_at_ns
		 FROM plugin_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var code, at int64
		if err := rows.Scan(&e.Plugin, &e.Index, &code, &at); err != nil {
			return nil, err
		}
		e.Code = uint32(code)
		e.At = time.Unix(0, at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// AddSample appends a bitrate observation to a run.
func (j *Journal) AddSample(runID string, at time.Time, br ts.BitRate, conf ts.BitRateConfidence) error {
	_, err := j.db.Exec(
		`INSERT INTO bitrate_samples (run_id, sampled_at_ns, bitrate, confidence)
		 VALUES (?, ?, ?, ?)`,
		runID, at.UnixNano(), int64(br), int(conf),
	)
	if err != nil {
		return fmt.Errorf("recording bitrate sample: %w", err)
	}
	return nil
}

// Samples returns the bitrate observations of a run in time order.
func (j *Journal) Samples(runID string) ([]Sample, error) {
	rows, err := j.db.Query(
		`SELECT sampled_at_ns, bitrate, confidence
		 FROM bitrate_samples WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var at, br int64
		var conf int
		if err := rows.Scan(&at, &br, &conf); err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			At:         time.Unix(0, at),
			BitRate:    ts.BitRate(br),
			Confidence: ts.BitRateConfidence(conf),
		})
	}
	return samples, rows.Err()
}
