// Package journal records training runs in a SQLite
// database.
package journal

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/unixpickle/essentials"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started REAL NOT NULL,
	config TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS steps(
	run_id INTEGER NOT NULL,
	step INTEGER NOT NULL,
	loss REAL,
	seconds REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints(
	run_id INTEGER NOT NULL,
	step INTEGER NOT NULL,
	path TEXT NOT NULL
);`

// A Journal is an open run database.
type Journal struct {
	db *sql.DB
}

// A Run records the steps and checkpoints of one training
// run.
type Run struct {
	ID int64

	journal *Journal
}

// A Step is one recorded training step.
type Step struct {
	Step    int
	Loss    float64
	Elapsed time.Duration
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, essentials.AddCtx("open journal", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, essentials.AddCtx("open journal", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun starts a new run. The config is stored as JSON.
func (j *Journal) BeginRun(config interface{}) (*Run, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, essentials.AddCtx("begin run", err)
	}
	res, err := j.db.Exec("INSERT INTO runs(started, config) VALUES(?, ?)",
		unixSeconds(time.Now()), string(data))
	if err != nil {
		return nil, essentials.AddCtx("begin run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, essentials.AddCtx("begin run", err)
	}
	return &Run{ID: id, journal: j}, nil
}

// LatestRun returns the most recently started run.
func (j *Journal) LatestRun() (*Run, error) {
	var id int64
	err := j.db.QueryRow("SELECT id FROM runs ORDER BY id DESC LIMIT 1").Scan(&id)
	if err != nil {
		return nil, essentials.AddCtx("latest run", err)
	}
	return &Run{ID: id, journal: j}, nil
}

// RecordStep stores one training step.
func (r *Run) RecordStep(step int, loss float64, elapsed time.Duration) error {
	_, err := r.journal.db.Exec("INSERT INTO steps(run_id, step, loss, seconds) VALUES(?, ?, ?, ?)",
		r.ID, step, loss, elapsed.Seconds())
	if err != nil {
		return essentials.AddCtx("record step", err)
	}
	return nil
}

// RecordCheckpoint stores the path of a checkpoint.
func (r *Run) RecordCheckpoint(step int, path string) error {
	_, err := r.journal.db.Exec("INSERT INTO checkpoints(run_id, step, path) VALUES(?, ?, ?)",
		r.ID, step, path)
	if err != nil {
		return essentials.AddCtx("record checkpoint", err)
	}
	return nil
}

// Steps returns the run's steps in order.
func (r *Run) Steps() ([]Step, error) {
	rows, err := r.journal.db.Query(
		"SELECT step, loss, seconds FROM steps WHERE run_id = ? ORDER BY step ASC", r.ID)
	if err != nil {
		return nil, essentials.AddCtx("list steps", err)
	}
	defer rows.Close()

	var res []Step
	for rows.Next() {
		var s Step
		var loss sql.NullFloat64
		var seconds float64
		if err := rows.Scan(&s.Step, &loss, &seconds); err != nil {
			return nil, essentials.AddCtx("list steps", err)
		}
		s.Loss = loss.Float64
		s.Elapsed = time.Duration(seconds * float64(time.Second))
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, essentials.AddCtx("list steps", err)
	}
	return res, nil
}

// Checkpoints returns the paths of the run's checkpoints,
// oldest first.
func (r *Run) Checkpoints() ([]string, error) {
	rows, err := r.journal.db.Query(
		"SELECT path FROM checkpoints WHERE run_id = ? ORDER BY step ASC", r.ID)
	if err != nil {
		return nil, essentials.AddCtx("list checkpoints", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, essentials.AddCtx("list checkpoints", err)
		}
		res = append(res, path)
	}
	if err := rows.Err(); err != nil {
		return nil, essentials.AddCtx("list checkpoints", err)
	}
	return res, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
