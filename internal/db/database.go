package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"monitora-dashboard/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection of the snapshot history
type Database struct {
	conn *sql.DB
}

// New opens (and creates when missing) the history database
func New(dbPath string) (*Database, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		online INTEGER NOT NULL,
		last_seen DATETIME NOT NULL,
		lat REAL,
		lon REAL,
		speed REAL,
		temp REAL,
		battery REAL,
		FOREIGN KEY (device_id) REFERENCES devices(id)
	);

	CREATE TABLE IF NOT EXISTS poll_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource TEXT NOT NULL,
		message TEXT NOT NULL,
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_device_seen ON device_snapshots(device_id, last_seen);
	CREATE INDEX IF NOT EXISTS idx_failures_occurred ON poll_failures(occurred_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// RecordDevices stores a snapshot for every device whose last_seen advanced since the
// previous call. It returns the number of snapshots written.
func (db *Database) RecordDevices(devices []models.DeviceStatus, recordedAt time.Time) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`
		INSERT INTO devices (id, first_seen, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen
		WHERE excluded.last_seen > devices.last_seen
	`)
	if err != nil {
		return 0, err
	}
	defer upsert.Close()

	insert, err := tx.Prepare(`
		INSERT INTO device_snapshots
		(device_id, recorded_at, online, last_seen, lat, lon, speed, temp, battery)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	recordedAt = recordedAt.UTC()
	var count int64
	for _, d := range devices {
		if d.DeviceID == "" || d.LastSeen.IsZero() {
			continue
		}
		lastSeen := d.LastSeen.UTC()

		res, err := upsert.Exec(d.DeviceID, recordedAt, lastSeen)
		if err != nil {
			return count, fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		_, err = insert.Exec(
			d.DeviceID, recordedAt, d.Online, lastSeen,
			nullable(d.LastLat), nullable(d.LastLon), nullable(d.LastSpeed),
			nullable(d.LastTemp), nullable(d.LastBattery),
		)
		if err != nil {
			return count, fmt.Errorf("insert snapshot %s: %w", d.DeviceID, err)
		}
		count++
	}

	return count, tx.Commit()
}

// ListDevices returns the ids of every device ever recorded
func (db *Database) ListDevices() ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM devices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const snapshotColumns = `id, device_id, recorded_at, online, last_seen, lat, lon, speed, temp, battery`

// QueryHistory retrieves recorded snapshots, newest first
func (db *Database) QueryHistory(q models.HistoryQuery) ([]models.DeviceSnapshot, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `SELECT ` + snapshotColumns + ` FROM device_snapshots`

	if q.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if !q.StartTime.IsZero() {
		conditions = append(conditions, "last_seen >= ?")
		args = append(args, q.StartTime.UTC())
	}
	if !q.EndTime.IsZero() {
		conditions = append(conditions, "last_seen <= ?")
		args = append(args, q.EndTime.UTC())
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	baseQuery += " ORDER BY last_seen DESC, id DESC"

	if q.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.DeviceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *s)
	}

	return results, rows.Err()
}

// GetLatestSnapshot returns the most recent snapshot of a device
func (db *Database) GetLatestSnapshot(deviceID string) (*models.DeviceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM device_snapshots
		WHERE device_id = ?
		ORDER BY last_seen DESC, id DESC
		LIMIT 1`

	return scanSnapshot(db.conn.QueryRow(query, deviceID))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*models.DeviceSnapshot, error) {
	var s models.DeviceSnapshot
	var lat, lon, speed, temp, battery sql.NullFloat64

	err := row.Scan(
		&s.ID, &s.DeviceID, &s.RecordedAt, &s.Online, &s.LastSeen,
		&lat, &lon, &speed, &temp, &battery,
	)
	if err != nil {
		return nil, err
	}
	s.Lat = fromNullable(lat)
	s.Lon = fromNullable(lon)
	s.Speed = fromNullable(speed)
	s.Temp = fromNullable(temp)
	s.Battery = fromNullable(battery)
	return &s, nil
}

// RecordFailure stores a failed poll
func (db *Database) RecordFailure(f models.PollFailure) error {
	query := `INSERT INTO poll_failures (resource, message, occurred_at) VALUES (?, ?, ?)`
	_, err := db.conn.Exec(query, f.Resource, f.Message, f.OccurredAt.UTC())
	return err
}

// RecentFailures returns the latest failed polls, newest first
func (db *Database) RecentFailures(limit int) ([]models.PollFailure, error) {
	query := `SELECT resource, message, occurred_at FROM poll_failures ORDER BY occurred_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []models.PollFailure
	for rows.Next() {
		var f models.PollFailure
		if err := rows.Scan(&f.Resource, &f.Message, &f.OccurredAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// GetRecordCount returns total snapshot records
func (db *Database) GetRecordCount() (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM device_snapshots").Scan(&count)
	return count, err
}

// GetStats returns database statistics
func (db *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	counts := []struct {
		key   string
		query string
	}{
		{"total_snapshots", "SELECT COUNT(*) FROM device_snapshots"},
		{"total_devices", "SELECT COUNT(*) FROM devices"},
		{"poll_failures", "SELECT COUNT(*) FROM poll_failures"},
	}
	for _, c := range counts {
		var n int64
		if err := db.conn.QueryRow(c.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("%s: %w", c.key, err)
		}
		stats[c.key] = n
	}

	return stats, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
