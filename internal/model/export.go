package model

import "time"

// CourseExport is the top-level JSON structure for course backup export.
// Import accepts the same shape and also a bare array of StoredCourse.
type CourseExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	Count      int            `json:"count"`
	Courses    []StoredCourse `json:"courses"`
}

// ImportReport summarizes a bulk course import.
type ImportReport struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}
