package store

import (
	"fmt"
	"testing"

	"github.com/pathly-ai/pathly/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCourse(id, title string) model.CourseData {
	return model.CourseData{
		ID:    id,
		Title: title,
		Chapters: []model.CourseChapter{
			{
				Title:        "Chapter One",
				Introduction: "Getting started.",
				Lessons: []model.CourseLesson{
					{Title: "Lesson A", Content: "...", XPValue: 10, EstimatedDurationMinutes: 15, SuggestedSearchTerms: []string{}},
					{Title: "Lesson B", Content: "...", XPValue: 20, EstimatedDurationMinutes: 25, SuggestedSearchTerms: []string{}},
				},
			},
		},
		TotalCourseXP:      30,
		TotalCourseMinutes: 40,
	}
}

func TestCourseCRUD(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListCourses()
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	stored, err := s.SaveCourse(testCourse("go_basics_1", "Go Basics"))
	if err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	if stored.Title != "Go Basics" || stored.ChapterCount != 1 {
		t.Fatalf("unexpected metadata: %+v", stored)
	}

	got, err := s.GetCourse("go_basics_1")
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if got == nil {
		t.Fatal("expected course, got nil")
	}
	if got.Course.TotalCourseXP != 30 {
		t.Errorf("TotalCourseXP = %d, want 30", got.Course.TotalCourseXP)
	}
	if len(got.Course.Chapters[0].Lessons) != 2 {
		t.Errorf("lessons = %d, want 2", len(got.Course.Chapters[0].Lessons))
	}

	missing, err := s.GetCourse("nope")
	if err != nil {
		t.Fatalf("GetCourse missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing course")
	}

	if err := s.DeleteCourse("go_basics_1"); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	got, err = s.GetCourse("go_basics_1")
	if err != nil {
		t.Fatalf("GetCourse after delete: %v", err)
	}
	if got != nil {
		t.Fatal("course still present after delete")
	}

	// Deleting again is not an error.
	if err := s.DeleteCourse("go_basics_1"); err != nil {
		t.Fatalf("DeleteCourse idempotent: %v", err)
	}
}

func TestSaveCourseUpsert(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveCourse(testCourse("c1", "Original")); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	if _, err := s.SaveCourse(testCourse("c1", "Updated")); err != nil {
		t.Fatalf("SaveCourse update: %v", err)
	}

	list, err := s.ListCourses()
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 course, got %d", len(list))
	}
	if list[0].Title != "Updated" {
		t.Errorf("title = %q, want %q", list[0].Title, "Updated")
	}
}

func TestSaveCourseRequiresID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveCourse(model.CourseData{Title: "No ID"}); err == nil {
		t.Fatal("expected error for course without ID")
	}
}

func TestToggleLesson(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveCourse(testCourse("c1", "Course")); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}

	sc, err := s.ToggleLesson("c1", 0, 0)
	if err != nil {
		t.Fatalf("ToggleLesson: %v", err)
	}
	if !sc.Course.Chapters[0].Lessons[0].IsCompleted {
		t.Error("lesson not marked completed")
	}
	if sc.Course.CurrentProgressXP != 10 || sc.Course.CurrentProgressMinutes != 15 {
		t.Errorf("progress = %d XP / %d min, want 10 / 15",
			sc.Course.CurrentProgressXP, sc.Course.CurrentProgressMinutes)
	}
	if sc.Course.CompletedLessonCount != 1 {
		t.Errorf("completed = %d, want 1", sc.Course.CompletedLessonCount)
	}

	// Toggle back and check persistence across a fresh read.
	if _, err := s.ToggleLesson("c1", 0, 0); err != nil {
		t.Fatalf("ToggleLesson back: %v", err)
	}
	got, err := s.GetCourse("c1")
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if got.Course.CurrentProgressXP != 0 || got.Course.CompletedLessonCount != 0 {
		t.Errorf("progress not reset: %d XP, %d lessons",
			got.Course.CurrentProgressXP, got.Course.CompletedLessonCount)
	}
	if got.Course.Chapters[0].Lessons[0].IsCompleted {
		t.Error("lesson still completed after toggle back")
	}
}

func TestToggleLessonBounds(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveCourse(testCourse("c1", "Course")); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}

	if _, err := s.ToggleLesson("c1", 5, 0); err == nil {
		t.Error("expected error for chapter out of range")
	}
	if _, err := s.ToggleLesson("c1", 0, 9); err == nil {
		t.Error("expected error for lesson out of range")
	}

	sc, err := s.ToggleLesson("missing", 0, 0)
	if err != nil {
		t.Fatalf("ToggleLesson missing: %v", err)
	}
	if sc != nil {
		t.Error("expected nil for missing course")
	}
}

func TestToggleLessonClampsAtZero(t *testing.T) {
	s := newTestStore(t)

	// A course imported with a completed lesson but zeroed counters
	// must not go negative when the lesson is toggled off.
	course := testCourse("c1", "Course")
	course.Chapters[0].Lessons[0].IsCompleted = true
	if _, err := s.SaveCourse(course); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}

	sc, err := s.ToggleLesson("c1", 0, 0)
	if err != nil {
		t.Fatalf("ToggleLesson: %v", err)
	}
	if sc.Course.CurrentProgressXP != 0 || sc.Course.CurrentProgressMinutes != 0 || sc.Course.CompletedLessonCount != 0 {
		t.Errorf("counters went negative: %d XP, %d min, %d lessons",
			sc.Course.CurrentProgressXP, sc.Course.CurrentProgressMinutes, sc.Course.CompletedLessonCount)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c%d", i)
		if _, err := s.SaveCourse(testCourse(id, "Course "+id)); err != nil {
			t.Fatalf("SaveCourse: %v", err)
		}
	}

	export, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if export.Count != 3 || len(export.Courses) != 3 {
		t.Fatalf("export count = %d (%d courses), want 3", export.Count, len(export.Courses))
	}
	if len(export.Courses[0].Course.Chapters) == 0 {
		t.Fatal("exported course missing full data")
	}

	dst := newTestStore(t)
	report, err := dst.ImportCourses(export.Courses)
	if err != nil {
		t.Fatalf("ImportCourses: %v", err)
	}
	if report.Accepted != 3 || report.Rejected != 0 {
		t.Fatalf("report = %+v, want 3 accepted", report)
	}

	list, err := dst.ListCourses()
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("imported %d courses, want 3", len(list))
	}
}

func TestImportRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	courses := []model.StoredCourse{
		{ID: "", Title: "No ID", Course: testCourse("", "No ID")},
		{ID: "ok", Title: "Good", Course: testCourse("ok", "Good")},
		{ID: "empty", Title: "Empty", Course: model.CourseData{ID: "empty", Title: "Empty"}},
	}

	report, err := s.ImportCourses(courses)
	if err != nil {
		t.Fatalf("ImportCourses: %v", err)
	}
	if report.Accepted != 1 || report.Rejected != 2 {
		t.Fatalf("report = %+v, want 1 accepted, 2 rejected", report)
	}
	if len(report.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", report.Errors)
	}

	got, err := s.GetCourse("ok")
	if err != nil || got == nil {
		t.Fatalf("valid course not imported: %v", err)
	}
}

func TestParseImportFormats(t *testing.T) {
	envelope := []byte(`{"exported_at":"2026-01-02T03:04:05Z","count":1,"courses":[{"id":"a","title":"A","course":{"id":"a","title":"A","chapters":[]}}]}`)
	courses, err := ParseImport(envelope)
	if err != nil {
		t.Fatalf("ParseImport envelope: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != "a" {
		t.Fatalf("unexpected courses: %+v", courses)
	}

	bare := []byte(`[{"id":"b","title":"B","course":{"id":"b","title":"B","chapters":[]}}]`)
	courses, err = ParseImport(bare)
	if err != nil {
		t.Fatalf("ParseImport bare: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != "b" {
		t.Fatalf("unexpected courses: %+v", courses)
	}

	if _, err := ParseImport([]byte(`"not a backup"`)); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("schema_version")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "1" {
		t.Errorf("schema_version = %q, want %q", v, "1")
	}

	if err := s.SetMetadata("last_export", "2026-08-29"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	v, err = s.GetMetadata("last_export")
	if err != nil || v != "2026-08-29" {
		t.Fatalf("GetMetadata = %q, %v", v, err)
	}

	v, err = s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Fatalf("missing key = %q, %v; want empty, nil", v, err)
	}
}
