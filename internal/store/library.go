package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlaurent/examforge/internal/model"
)

// PublishExam stores an exam in the shared library. Only the question
// sequence is persisted; the source text the exam was generated from never
// reaches shared storage.
func (s *Store) PublishExam(authorID int64, title string, exam model.Exam) (int64, error) {
	data, err := json.Marshal(exam)
	if err != nil {
		return 0, fmt.Errorf("marshal exam: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO library (title, author_id, published_at, exam) VALUES (?, ?, ?, ?)`,
		title, authorID, time.Now(), string(data),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetLibraryExam returns one published exam by ID, or nil if not found.
func (s *Store) GetLibraryExam(id int64) (*model.LibraryEntry, error) {
	row := s.db.QueryRow(
		`SELECT l.id, l.title, l.author_id, COALESCE(u.display_name, ''), l.published_at, l.exam
		 FROM library l LEFT JOIN users u ON u.id = l.author_id
		 WHERE l.id = ?`, id,
	)
	entry, err := scanLibraryEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListLibrary returns all published exams, newest first.
func (s *Store) ListLibrary() ([]model.LibraryEntry, error) {
	rows, err := s.db.Query(
		`SELECT l.id, l.title, l.author_id, COALESCE(u.display_name, ''), l.published_at, l.exam
		 FROM library l LEFT JOIN users u ON u.id = l.author_id
		 ORDER BY l.published_at DESC, l.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.LibraryEntry
	for rows.Next() {
		entry, err := scanLibraryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibraryEntry(row rowScanner) (*model.LibraryEntry, error) {
	var entry model.LibraryEntry
	var exam string
	if err := row.Scan(&entry.ID, &entry.Title, &entry.AuthorID, &entry.AuthorName,
		&entry.PublishedAt, &exam); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(exam), &entry.Exam); err != nil {
		return nil, fmt.Errorf("unmarshal exam for entry %d: %w", entry.ID, err)
	}
	return &entry, nil
}
