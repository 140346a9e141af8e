package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pathly-ai/pathly/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		chapter_count INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata("schema_version", "1")
}

// SaveCourse upserts a course under its ID. Saving an existing ID
// replaces the stored data and refreshes the saved_at timestamp.
func (s *Store) SaveCourse(course model.CourseData) (*model.StoredCourse, error) {
	if course.ID == "" {
		return nil, fmt.Errorf("course has no ID")
	}
	data, err := json.Marshal(course)
	if err != nil {
		return nil, fmt.Errorf("marshal course: %w", err)
	}

	stored := model.StoredCourse{
		ID:           course.ID,
		Title:        course.Title,
		SavedAt:      time.Now().UTC(),
		ChapterCount: len(course.Chapters),
		Course:       course,
	}

	_, err = s.db.Exec(
		`INSERT INTO courses (id, title, saved_at, chapter_count, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = ?, saved_at = ?, chapter_count = ?, data = ?`,
		stored.ID, stored.Title, stored.SavedAt, stored.ChapterCount, string(data),
		stored.Title, stored.SavedAt, stored.ChapterCount, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("save course: %w", err)
	}
	return &stored, nil
}

// GetCourse returns the stored course with the given ID, or nil if missing.
func (s *Store) GetCourse(id string) (*model.StoredCourse, error) {
	row := s.db.QueryRow(
		`SELECT id, title, saved_at, chapter_count, data FROM courses WHERE id = ?`, id)

	var sc model.StoredCourse
	var data string
	err := row.Scan(&sc.ID, &sc.Title, &sc.SavedAt, &sc.ChapterCount, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &sc.Course); err != nil {
		return nil, fmt.Errorf("unmarshal course %s: %w", id, err)
	}
	return &sc, nil
}

// ListCourses returns summaries of all saved courses, newest first.
// The Course field is left zero; use GetCourse for the full data.
func (s *Store) ListCourses() ([]model.StoredCourse, error) {
	rows, err := s.db.Query(
		`SELECT id, title, saved_at, chapter_count FROM courses ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []model.StoredCourse
	for rows.Next() {
		var sc model.StoredCourse
		if err := rows.Scan(&sc.ID, &sc.Title, &sc.SavedAt, &sc.ChapterCount); err != nil {
			return nil, err
		}
		courses = append(courses, sc)
	}
	return courses, rows.Err()
}

// DeleteCourse removes a course by ID. Deleting a missing ID is not an error.
func (s *Store) DeleteCourse(id string) error {
	if _, err := s.db.Exec(`DELETE FROM courses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// ToggleLesson flips the completion flag of one lesson and adjusts the
// course progress counters, clamping them at zero. Returns the updated
// course, or nil if the course does not exist.
func (s *Store) ToggleLesson(courseID string, chapterIdx, lessonIdx int) (*model.StoredCourse, error) {
	sc, err := s.GetCourse(courseID)
	if err != nil || sc == nil {
		return nil, err
	}

	if chapterIdx < 0 || chapterIdx >= len(sc.Course.Chapters) {
		return nil, fmt.Errorf("chapter index %d out of range", chapterIdx)
	}
	ch := &sc.Course.Chapters[chapterIdx]
	if lessonIdx < 0 || lessonIdx >= len(ch.Lessons) {
		return nil, fmt.Errorf("lesson index %d out of range", lessonIdx)
	}
	lesson := &ch.Lessons[lessonIdx]

	delta := 1
	if lesson.IsCompleted {
		delta = -1
	}
	lesson.IsCompleted = !lesson.IsCompleted

	sc.Course.CurrentProgressXP += delta * lesson.XPValue
	sc.Course.CurrentProgressMinutes += delta * lesson.EstimatedDurationMinutes
	sc.Course.CompletedLessonCount += delta
	if sc.Course.CurrentProgressXP < 0 {
		sc.Course.CurrentProgressXP = 0
	}
	if sc.Course.CurrentProgressMinutes < 0 {
		sc.Course.CurrentProgressMinutes = 0
	}
	if sc.Course.CompletedLessonCount < 0 {
		sc.Course.CompletedLessonCount = 0
	}

	return s.SaveCourse(sc.Course)
}
