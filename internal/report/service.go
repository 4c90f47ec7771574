// Package report aggregates historical loans, reservations and lifecycle
// events into CSV summaries and tracks each generation run.
package report

import (
	"context"

	"libraryms/internal/domain"
)

// Service generates and lists reports.
type Service interface {
	// Generate runs one report synchronously and returns its final record.
	Generate(ctx context.Context, reportType, generatedBy string) (*domain.Report, error)
	Get(ctx context.Context, id int64) (*domain.Report, error)
	List(ctx context.Context) ([]domain.Report, error)
}

// Types lists the supported report types.
func Types() []string {
	return []string{
		domain.ReportBorrowingSummary,
		domain.ReportPopularBooks,
		domain.ReportOverdue,
		domain.ReportReservations,
	}
}
