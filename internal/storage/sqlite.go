package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS appointments (
		id                TEXT NOT NULL,
		user_id           TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		date              TEXT NOT NULL,
		time              TEXT NOT NULL DEFAULT '',
		duration_min      INTEGER NOT NULL DEFAULT 0,
		attendees         TEXT NOT NULL DEFAULT '[]',
		location          TEXT NOT NULL DEFAULT '',
		description       TEXT NOT NULL DEFAULT '',
		kind              TEXT NOT NULL DEFAULT 'meeting',
		status            TEXT NOT NULL DEFAULT 'scheduled',
		external_event_id TEXT NOT NULL DEFAULT '',
		sync_state        TEXT NOT NULL DEFAULT 'not_synced',
		sync_error        TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		PRIMARY KEY(user_id, id)
	);

	CREATE TABLE IF NOT EXISTS partial_contexts (
		user_id    TEXT PRIMARY KEY,
		event_kind TEXT NOT NULL DEFAULT '',
		collected  TEXT NOT NULL DEFAULT '{}',
		missing    TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_cancellations (
		user_id     TEXT PRIMARY KEY,
		start_date  TEXT NOT NULL,
		end_date    TEXT NOT NULL DEFAULT '',
		candidates  TEXT NOT NULL DEFAULT '[]',
		cancel_type TEXT NOT NULL DEFAULT 'all',
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS availability (
		user_id    TEXT PRIMARY KEY,
		days       TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assistant_identity (
		slot         INTEGER PRIMARY KEY CHECK (slot = 1),
		assistant_id TEXT NOT NULL,
		model        TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS threads (
		user_id            TEXT PRIMARY KEY,
		thread_id          TEXT NOT NULL,
		previous_thread_id TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_range ON appointments(user_id, date, status, time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Appointment Operations ---

func (s *SQLiteStore) CreateAppointment(a Appointment) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("appointment id is empty")
	}
	if strings.TrimSpace(a.Date) == "" {
		return fmt.Errorf("appointment date is empty")
	}
	now := nowUTC()
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	if a.UpdatedAt == "" {
		a.UpdatedAt = now
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.SyncState == "" {
		a.SyncState = SyncNotSynced
	}
	_, err := s.db.Exec(`
		INSERT INTO appointments (id, user_id, title, date, time, duration_min, attendees,
			location, description, kind, status, external_event_id, sync_state, sync_error,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Title, a.Date, a.Time, a.DurationMinutes, mustMarshal(a.Attendees, "[]"),
		a.Location, a.Description, string(a.Kind), string(a.Status), a.ExternalEventID,
		string(a.SyncState), a.SyncError, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAppointmentSync(userID, id string, state SyncState, externalEventID, syncError string) error {
	res, err := s.db.Exec(`
		UPDATE appointments SET sync_state=?, external_event_id=?, sync_error=?, updated_at=?
		WHERE user_id=? AND id=?`,
		string(state), externalEventID, syncError, nowUTC(), userID, id)
	if err != nil {
		return fmt.Errorf("update appointment sync: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("appointment not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) AppointmentsInRange(userID, startDate, endDate string) ([]Appointment, error) {
	startDate = strings.TrimSpace(startDate)
	if startDate == "" {
		return nil, fmt.Errorf("start date is empty")
	}
	endDate = strings.TrimSpace(endDate)
	if endDate == "" {
		endDate = startDate
	}
	rows, err := s.db.Query(`
		SELECT id, title, date, time, duration_min, attendees, location, description,
			kind, status, external_event_id, sync_state, sync_error, created_at, updated_at
		FROM appointments
		WHERE user_id=? AND date>=? AND date<=?
		ORDER BY date ASC, status ASC, time ASC`, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		var attendeesJSON, kind, status, syncState string
		if err := rows.Scan(&a.ID, &a.Title, &a.Date, &a.Time, &a.DurationMinutes,
			&attendeesJSON, &a.Location, &a.Description, &kind, &status,
			&a.ExternalEventID, &syncState, &a.SyncError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		a.UserID = userID
		a.Kind = AppointmentKind(kind)
		a.Status = AppointmentStatus(status)
		a.SyncState = SyncState(syncState)
		if attendeesJSON != "" && attendeesJSON != "[]" {
			_ = json.Unmarshal([]byte(attendeesJSON), &a.Attendees)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CancelAppointments(userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		UPDATE appointments SET status=?, updated_at=?
		WHERE user_id=? AND id=? AND status!=?`)
	if err != nil {
		return 0, fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	total := 0
	for _, id := range ids {
		res, err := stmt.Exec(string(StatusCancelled), now, userID, id, string(StatusCancelled))
		if err != nil {
			return 0, fmt.Errorf("cancel appointment %s: %w", id, err)
		}
		affected, _ := res.RowsAffected()
		total += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// --- Slot-Filling Context ---

func (s *SQLiteStore) SavePartialContext(userID string, pc PartialContext) error {
	if pc.UpdatedAt == "" {
		pc.UpdatedAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO partial_contexts (user_id, event_kind, collected, missing, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			event_kind=excluded.event_kind, collected=excluded.collected,
			missing=excluded.missing, updated_at=excluded.updated_at`,
		userID, pc.EventKind, mustMarshal(pc.Collected, "{}"), mustMarshal(pc.Missing, "[]"), pc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save partial context: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPartialContext(userID string) (PartialContext, bool, error) {
	row := s.db.QueryRow(`
		SELECT event_kind, collected, missing, updated_at
		FROM partial_contexts WHERE user_id=?`, userID)

	var pc PartialContext
	var collected, missing string
	err := row.Scan(&pc.EventKind, &collected, &missing, &pc.UpdatedAt)
	if err == sql.ErrNoRows {
		return PartialContext{}, false, nil
	}
	if err != nil {
		return PartialContext{}, false, fmt.Errorf("load partial context: %w", err)
	}
	_ = json.Unmarshal([]byte(collected), &pc.Collected)
	_ = json.Unmarshal([]byte(missing), &pc.Missing)
	return pc, true, nil
}

func (s *SQLiteStore) ClearPartialContext(userID string) error {
	if _, err := s.db.Exec("DELETE FROM partial_contexts WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("clear partial context: %w", err)
	}
	return nil
}

// --- Pending Bulk Cancellation ---

func (s *SQLiteStore) SavePendingCancellation(userID string, pending PendingCancellation) error {
	if pending.CreatedAt == "" {
		pending.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO pending_cancellations (user_id, start_date, end_date, candidates, cancel_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			start_date=excluded.start_date, end_date=excluded.end_date,
			candidates=excluded.candidates, cancel_type=excluded.cancel_type,
			created_at=excluded.created_at`,
		userID, pending.StartDate, pending.EndDate, mustMarshal(pending.Candidates, "[]"),
		pending.Type, pending.CreatedAt)
	if err != nil {
		return fmt.Errorf("save pending cancellation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPendingCancellation(userID string) (PendingCancellation, bool, error) {
	row := s.db.QueryRow(`
		SELECT start_date, end_date, candidates, cancel_type, created_at
		FROM pending_cancellations WHERE user_id=?`, userID)

	var p PendingCancellation
	var candidates string
	err := row.Scan(&p.StartDate, &p.EndDate, &candidates, &p.Type, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return PendingCancellation{}, false, nil
	}
	if err != nil {
		return PendingCancellation{}, false, fmt.Errorf("load pending cancellation: %w", err)
	}
	_ = json.Unmarshal([]byte(candidates), &p.Candidates)
	return p, true, nil
}

func (s *SQLiteStore) ClearPendingCancellation(userID string) error {
	if _, err := s.db.Exec("DELETE FROM pending_cancellations WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("clear pending cancellation: %w", err)
	}
	return nil
}

// --- Weekly Availability ---

func (s *SQLiteStore) SaveAvailability(userID string, week WeeklyAvailability) error {
	_, err := s.db.Exec(`
		INSERT INTO availability (user_id, days, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET days=excluded.days, updated_at=excluded.updated_at`,
		userID, mustMarshal(week, "{}"), nowUTC())
	if err != nil {
		return fmt.Errorf("save availability: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAvailability(userID string) (WeeklyAvailability, bool, error) {
	row := s.db.QueryRow("SELECT days FROM availability WHERE user_id=?", userID)
	var days string
	err := row.Scan(&days)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load availability: %w", err)
	}
	week := WeeklyAvailability{}
	_ = json.Unmarshal([]byte(days), &week)
	return week, true, nil
}

// --- Assistant Identity & Threads ---

func (s *SQLiteStore) LoadAssistantIdentity() (AssistantIdentity, bool, error) {
	row := s.db.QueryRow("SELECT assistant_id, model, created_at FROM assistant_identity WHERE slot=1")
	var ident AssistantIdentity
	err := row.Scan(&ident.AssistantID, &ident.Model, &ident.CreatedAt)
	if err == sql.ErrNoRows {
		return AssistantIdentity{}, false, nil
	}
	if err != nil {
		return AssistantIdentity{}, false, fmt.Errorf("load assistant identity: %w", err)
	}
	return ident, true, nil
}

func (s *SQLiteStore) SaveAssistantIdentity(identity AssistantIdentity) error {
	if identity.CreatedAt == "" {
		identity.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO assistant_identity (slot, assistant_id, model, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			assistant_id=excluded.assistant_id, model=excluded.model, created_at=excluded.created_at`,
		identity.AssistantID, identity.Model, identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("save assistant identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearAssistantIdentity() error {
	if _, err := s.db.Exec("DELETE FROM assistant_identity WHERE slot=1"); err != nil {
		return fmt.Errorf("clear assistant identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadThread(userID string) (ThreadRecord, bool, error) {
	row := s.db.QueryRow(`
		SELECT thread_id, previous_thread_id, created_at FROM threads WHERE user_id=?`, userID)
	var rec ThreadRecord
	err := row.Scan(&rec.ThreadID, &rec.PreviousThreadID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return ThreadRecord{}, false, nil
	}
	if err != nil {
		return ThreadRecord{}, false, fmt.Errorf("load thread: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) SaveThread(userID string, rec ThreadRecord) error {
	if rec.CreatedAt == "" {
		rec.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO threads (user_id, thread_id, previous_thread_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			thread_id=excluded.thread_id, previous_thread_id=excluded.previous_thread_id,
			created_at=excluded.created_at`,
		userID, rec.ThreadID, rec.PreviousThreadID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	return nil
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func mustMarshal(v any, empty string) string {
	if v == nil {
		return empty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return empty
	}
	return string(data)
}
