package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pathly-ai/pathly/internal/model"
)

// ExportAll builds a full backup of every saved course.
func (s *Store) ExportAll() (*model.CourseExport, error) {
	summaries, err := s.ListCourses()
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	export := &model.CourseExport{
		ExportedAt: time.Now().UTC(),
		Courses:    []model.StoredCourse{},
	}
	for _, sum := range summaries {
		sc, err := s.GetCourse(sum.ID)
		if err != nil {
			return nil, fmt.Errorf("get course %s: %w", sum.ID, err)
		}
		if sc == nil {
			continue
		}
		export.Courses = append(export.Courses, *sc)
	}
	export.Count = len(export.Courses)
	return export, nil
}

// ImportCourses validates and upserts courses from a backup. Invalid
// entries are rejected individually; valid ones are still imported.
func (s *Store) ImportCourses(courses []model.StoredCourse) (*model.ImportReport, error) {
	report := &model.ImportReport{}
	for i, sc := range courses {
		if err := validateImport(sc); err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("course %d: %v", i, err))
			continue
		}
		course := sc.Course
		course.ID = sc.ID
		if course.Title == "" {
			course.Title = sc.Title
		}
		if _, err := s.SaveCourse(course); err != nil {
			return report, fmt.Errorf("import course %s: %w", sc.ID, err)
		}
		report.Accepted++
	}
	return report, nil
}

// ParseImport decodes backup JSON, accepting both the CourseExport
// envelope and a bare array of StoredCourse.
func ParseImport(data []byte) ([]model.StoredCourse, error) {
	var export model.CourseExport
	if err := json.Unmarshal(data, &export); err == nil && len(export.Courses) > 0 {
		return export.Courses, nil
	}
	var courses []model.StoredCourse
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("unrecognized backup format: %w", err)
	}
	return courses, nil
}

func validateImport(sc model.StoredCourse) error {
	if sc.ID == "" {
		return fmt.Errorf("missing ID")
	}
	if sc.Title == "" && sc.Course.Title == "" {
		return fmt.Errorf("missing title")
	}
	if len(sc.Course.Chapters) == 0 {
		return fmt.Errorf("no chapters")
	}
	return nil
}
