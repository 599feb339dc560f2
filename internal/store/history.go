package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlaurent/examforge/internal/model"
)

// AppendHistory archives one finished session. History is append-only: there
// is no update or delete path.
func (s *Store) AppendHistory(rec model.HistoryRecord) (int64, error) {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return 0, fmt.Errorf("marshal answers: %w", err)
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO history (owner_id, course_label, score, total, timed_out, completed_at, answers)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.OwnerID, rec.CourseLabel, rec.Score, rec.Total, rec.TimedOut, completedAt, string(answers),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListHistory returns the owner's records, most recent first.
func (s *Store) ListHistory(ownerID int64) ([]model.HistoryRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, course_label, score, total, timed_out, completed_at, answers
		 FROM history WHERE owner_id = ? ORDER BY completed_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		var answers string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.CourseLabel, &rec.Score, &rec.Total,
			&rec.TimedOut, &rec.CompletedAt, &answers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers for record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HistoryCount returns the number of archived sessions for an owner.
func (s *Store) HistoryCount(ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
