package storage

import (
	"github.com/google/uuid"

	"textingest/internal/domain"
)

// RunStore implements domain.RunLogStore on the history database.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRunLog inserts l, assigning an ID when it has none.
func (s *RunStore) CreateRunLog(l *domain.RunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO ingest_runs (id, schema_path, data_path, schema_name, trigger_type,
		 started_at, finished_at, status, lines_read, decoded, decode_failed,
		 delivered, delivery_failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SchemaPath, l.DataPath, l.Schema, l.Trigger,
		l.StartedAt, l.FinishedAt, l.Status, l.LinesRead, l.Decoded, l.DecodeFailed,
		l.Delivered, l.DeliveryFailed, l.Error,
	)
	return err
}

// ListRunLogs returns the most recent runs first.
func (s *RunStore) ListRunLogs(limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, schema_path, data_path, schema_name, trigger_type, started_at, finished_at,
		 status, lines_read, decoded, decode_failed, delivered, delivery_failed, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(
			&l.ID, &l.SchemaPath, &l.DataPath, &l.Schema, &l.Trigger, &l.StartedAt, &l.FinishedAt,
			&l.Status, &l.LinesRead, &l.Decoded, &l.DecodeFailed, &l.Delivered, &l.DeliveryFailed, &l.Error,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
