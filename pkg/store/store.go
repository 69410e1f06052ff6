// Package store keeps a sqlite log of detector signals and confirmed fits.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/itohio/wmr/pkg/geometry"
	_ "modernc.org/sqlite"
)

// ErrNoFit is returned when a run has no confirmed ellipse.
var ErrNoFit = errors.New("no confirmed fit")

// Store is the event log database.
type Store struct {
	*sql.DB
}

// Run describes one measurement session.
type Run struct {
	ID      string
	Source  string
	Started time.Time
	Pulses  int
}

// Totals are the signal counts of one run, or of all runs.
type Totals struct {
	Pulses        int
	CenterPulses  int
	TangentPulses int
	Anomalies     int
	Drifts        int
	NoFits        int
	Fits          int
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// one connection, so ":memory:" databases are shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT NOT NULL UNIQUE,
			source            TEXT,
			started_us        BIGINT
		);
		CREATE TABLE IF NOT EXISTS events (
			run_id            TEXT NOT NULL,
			kind              TEXT NOT NULL,
			mode              TEXT,
			value             BIGINT,
			at_us             BIGINT,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS fits (
			run_id            TEXT NOT NULL,
			center_x          DOUBLE,
			center_y          DOUBLE,
			radius_x          DOUBLE,
			radius_y          DOUBLE,
			tilt              DOUBLE,
			at_us             BIGINT,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS events_run ON events(run_id, kind);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db}, nil
}

// NewRun starts a session and returns its id.
func (s *Store) NewRun(source string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(
		`INSERT INTO runs (run_id, source, started_us) VALUES (?, ?, ?)`,
		id, source, time.Now().UnixMicro(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordEvent appends a detector signal to run.
func (s *Store) RecordEvent(run string, ev flow.Event, at time.Time) error {
	var mode any
	if ev.Kind == flow.PulseEvent {
		mode = ev.Mode.String()
	}
	_, err := s.Exec(
		`INSERT INTO events (run_id, kind, mode, value, at_us) VALUES (?, ?, ?, ?, ?)`,
		run, ev.Kind.String(), mode, ev.Value, at.UnixMicro(),
	)
	return err
}

// RecordFit appends a confirmed ellipse to run.
func (s *Store) RecordFit(run string, fit ellipse.Cartesian, at time.Time) error {
	_, err := s.Exec(
		`INSERT INTO fits (run_id, center_x, center_y, radius_x, radius_y, tilt, at_us)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run, fit.Center.X, fit.Center.Y, fit.Radius.X, fit.Radius.Y, fit.Angle.Radians(), at.UnixMicro(),
	)
	return err
}

// Totals counts the signals of run. An empty run counts every run.
func (s *Store) Totals(run string) (Totals, error) {
	var t Totals

	rows, err := s.Query(
		`SELECT kind, COALESCE(mode, ''), COUNT(*) FROM events
		WHERE ? = '' OR run_id = ?
		GROUP BY kind, mode`,
		run, run,
	)
	if err != nil {
		return t, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind, mode string
		var n int
		if err := rows.Scan(&kind, &mode, &n); err != nil {
			return t, err
		}
		switch kind {
		case flow.PulseEvent.String():
			t.Pulses += n
			if mode == flow.CenterMode.String() {
				t.CenterPulses += n
			} else {
				t.TangentPulses += n
			}
		case flow.AnomalyEvent.String():
			t.Anomalies += n
		case flow.DriftEvent.String():
			t.Drifts += n
		case flow.NoFitEvent.String():
			t.NoFits += n
		}
	}
	if err := rows.Err(); err != nil {
		return t, err
	}

	err = s.QueryRow(`SELECT COUNT(*) FROM fits WHERE ? = '' OR run_id = ?`, run, run).Scan(&t.Fits)
	return t, err
}

// Runs lists all sessions in creation order.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.Query(`
		SELECT r.run_id, COALESCE(r.source, ''), r.started_us, COUNT(e.run_id)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.run_id AND e.kind = ?
		GROUP BY r.id
		ORDER BY r.id`,
		flow.PulseEvent.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Source, &started, &r.Pulses); err != nil {
			return nil, err
		}
		r.Started = time.UnixMicro(started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastFit returns the most recent ellipse confirmed during run.
func (s *Store) LastFit(run string) (ellipse.Cartesian, time.Time, error) {
	var cx, cy, rx, ry, tilt float64
	var at int64
	err := s.QueryRow(`
		SELECT center_x, center_y, radius_x, radius_y, tilt, at_us FROM fits
		WHERE run_id = ?
		ORDER BY rowid DESC LIMIT 1`,
		run,
	).Scan(&cx, &cy, &rx, &ry, &tilt, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return ellipse.Cartesian{}, time.Time{}, fmt.Errorf("run %s: %w", run, ErrNoFit)
	}
	if err != nil {
		return ellipse.Cartesian{}, time.Time{}, err
	}

	fit := ellipse.NewCartesian(
		geometry.Coordinate{X: cx, Y: cy},
		geometry.Coordinate{X: rx, Y: ry},
		geometry.Angle(tilt),
	)
	return fit, time.UnixMicro(at), nil
}

// Log binds the store to one run so it can be handed to the meter.
func (s *Store) Log(run string) *Log {
	return &Log{store: s, run: run}
}

// Log records into a single run.
type Log struct {
	store *Store
	run   string
}

func (l *Log) RecordEvent(ev flow.Event, at time.Time) error {
	return l.store.RecordEvent(l.run, ev, at)
}

func (l *Log) RecordFit(fit ellipse.Cartesian, at time.Time) error {
	return l.store.RecordFit(l.run, fit, at)
}
