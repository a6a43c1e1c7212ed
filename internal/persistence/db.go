// Package persistence provides the SQLite journal of the facility: the room
// catalogue, the event log, settled payments and clock metadata.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/motel-sim/internal/engine"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

// Meta keys.
const (
	MetaRunID    = "run_id"
	MetaTick     = "last_tick"
	MetaDay      = "day"
	MetaHour     = "hour"
	MetaMinute   = "minute"
	MetaEventSeq = "event_seq"
	MetaRevenue  = "revenue"
	MetaSettled  = "settled"
)

// DB wraps a SQLite connection for facility state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		min_x REAL NOT NULL,
		min_y REAL NOT NULL,
		min_z REAL NOT NULL,
		max_x REAL NOT NULL,
		max_y REAL NOT NULL,
		max_z REAL NOT NULL,
		price INTEGER NOT NULL,
		furniture_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		time TEXT NOT NULL,
		category TEXT NOT NULL,
		agent TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		room TEXT NOT NULL,
		amount INTEGER NOT NULL,
		opened_tick INTEGER NOT NULL,
		paid_tick INTEGER NOT NULL,
		paid_time TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_payments_agent ON payments(agent);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// roomRow is the rooms table layout.
type roomRow struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	MinX          float64 `db:"min_x"`
	MinY          float64 `db:"min_y"`
	MinZ          float64 `db:"min_z"`
	MaxX          float64 `db:"max_x"`
	MaxY          float64 `db:"max_y"`
	MaxZ          float64 `db:"max_z"`
	Price         int64   `db:"price"`
	FurnitureJSON string  `db:"furniture_json"`
}

// SaveRooms writes the room catalogue (full replace). Occupancy is not
// stored.
func (db *DB) SaveRooms(list []rooms.Room) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM rooms"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO rooms
		(id, name, min_x, min_y, min_z, max_x, max_y, max_z, price, furniture_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range list {
		furniture, err := json.Marshal(r.Furniture)
		if err != nil {
			return fmt.Errorf("encode furniture of %s: %w", r.ID, err)
		}
		b := r.Bounds
		if _, err := stmt.Exec(
			r.ID, r.Name,
			b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z,
			r.Price, string(furniture),
		); err != nil {
			return fmt.Errorf("insert room %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// LoadRooms returns the saved catalogue, all rooms free.
func (db *DB) LoadRooms() ([]rooms.Room, error) {
	var rows []roomRow
	if err := db.conn.Select(&rows, "SELECT * FROM rooms ORDER BY id"); err != nil {
		return nil, err
	}

	out := make([]rooms.Room, 0, len(rows))
	for _, row := range rows {
		var furniture []rooms.Furniture
		if err := json.Unmarshal([]byte(row.FurnitureJSON), &furniture); err != nil {
			return nil, fmt.Errorf("decode furniture of %s: %w", row.ID, err)
		}
		out = append(out, rooms.Room{
			ID:   rooms.RoomID(row.ID),
			Name: row.Name,
			Bounds: geom.Bounds{
				Min: geom.Vec3{X: row.MinX, Y: row.MinY, Z: row.MinZ},
				Max: geom.Vec3{X: row.MaxX, Y: row.MaxY, Z: row.MaxZ},
			},
			Furniture: furniture,
			Price:     row.Price,
		})
	}
	return out, nil
}

// SaveEvents appends events; sequence numbers already stored are skipped.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO events (seq, tick, time, category, agent, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.Seq, e.Tick, e.Time, e.Category, e.Agent, e.Description,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT seq, tick, time, category, agent, description FROM events ORDER BY seq DESC LIMIT ?",
		limit,
	)
	return events, err
}

// PaymentRecord is a stored payment.
type PaymentRecord struct {
	ID         string `db:"id" json:"id"`
	Agent      string `db:"agent" json:"agent"`
	Room       string `db:"room" json:"room"`
	Amount     int64  `db:"amount" json:"amount"`
	OpenedTick uint64 `db:"opened_tick" json:"opened_tick"`
	PaidTick   uint64 `db:"paid_tick" json:"paid_tick"`
	PaidTime   string `db:"paid_time" json:"paid_time"`
}

// SavePayments inserts settled payments not already stored.
func (db *DB) SavePayments(snap engine.Snapshot) error {
	payments := snap.Ledger.Payments
	if len(payments) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO payments
		(id, agent, room, amount, opened_tick, paid_tick, paid_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range payments {
		if _, err := stmt.Exec(
			p.ID.String(), p.Agent, string(p.Room), p.Amount,
			p.Opened.Tick, p.Paid.Tick, p.Paid.Time,
		); err != nil {
			return fmt.Errorf("insert payment %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// Payments returns the most recent N stored payments, newest first.
func (db *DB) Payments(limit int) ([]PaymentRecord, error) {
	var out []PaymentRecord
	err := db.conn.Select(&out, "SELECT * FROM payments ORDER BY paid_tick DESC, rowid DESC LIMIT ?", limit)
	return out, err
}

// SaveMeta stores a key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}

func (db *DB) metaInt(key string) (int64, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}

// HasState reports whether a previous run saved its clock.
func (db *DB) HasState() (bool, error) {
	_, err := db.GetMeta(MetaDay)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SaveState performs a full save of the simulation snapshot.
func (db *DB) SaveState(snap engine.Snapshot) error {
	slog.Info("saving simulation state", "rooms", len(snap.Rooms), "events", len(snap.Events), "time", engine.SimTime(snap.Day, snap.Hour, snap.Minute))

	if err := db.SaveRooms(snap.Rooms); err != nil {
		return fmt.Errorf("save rooms: %w", err)
	}
	if err := db.SaveEvents(snap.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SavePayments(snap); err != nil {
		return fmt.Errorf("save payments: %w", err)
	}

	meta := map[string]string{
		MetaRunID:    snap.RunID,
		MetaTick:     strconv.FormatUint(snap.Tick, 10),
		MetaDay:      strconv.Itoa(snap.Day),
		MetaHour:     strconv.Itoa(snap.Hour),
		MetaMinute:   strconv.Itoa(snap.Minute),
		MetaEventSeq: strconv.FormatUint(snap.EventSeq, 10),
		MetaRevenue:  strconv.FormatInt(snap.Ledger.Revenue, 10),
		MetaSettled:  strconv.FormatUint(snap.Ledger.Settled, 10),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
	}

	slog.Info("simulation state saved")
	return nil
}

// State is what a restart resumes from.
type State struct {
	Tick     uint64
	Day      int
	Hour     int
	Minute   int
	EventSeq uint64
	Revenue  int64
	Settled  uint64
	Rooms    []rooms.Room
}

// LoadState reads the saved clock, totals and room catalogue.
func (db *DB) LoadState() (State, error) {
	var st State
	ints := map[string]int64{}
	for _, k := range []string{MetaTick, MetaDay, MetaHour, MetaMinute, MetaEventSeq, MetaRevenue, MetaSettled} {
		v, err := db.metaInt(k)
		if err != nil {
			return st, err
		}
		ints[k] = v
	}
	st.Tick = uint64(ints[MetaTick])
	st.Day = int(ints[MetaDay])
	st.Hour = int(ints[MetaHour])
	st.Minute = int(ints[MetaMinute])
	st.EventSeq = uint64(ints[MetaEventSeq])
	st.Revenue = ints[MetaRevenue]
	st.Settled = uint64(ints[MetaSettled])

	list, err := db.LoadRooms()
	if err != nil {
		return st, fmt.Errorf("load rooms: %w", err)
	}
	st.Rooms = list
	return st, nil
}
