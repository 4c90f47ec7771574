package domain

import "time"

// Report kinds and statuses.
const (
	ReportBorrowingSummary = "borrowing_summary"
	ReportPopularBooks     = "popular_books"
	ReportOverdue          = "overdue"
	ReportReservations     = "reservations"

	ReportStatusPending   = "pending"
	ReportStatusRunning   = "running"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// Report tracks one generated summary file.
type Report struct {
	ID          int64      `json:"id" db:"id"`
	ReportType  string     `json:"report_type" db:"report_type"`
	Status      string     `json:"status" db:"status"`
	GeneratedBy string     `json:"generated_by" db:"generated_by"`
	FilePath    string     `json:"file_path" db:"file_path"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
