package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
)

type service struct {
	store  store.Store
	dir    string
	log    logrus.FieldLogger
	tracer trace.Tracer
	now    func() time.Time
}

// Option customises the service built by NewService.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a report service writing files below dir.
func NewService(st store.Store, dir string, log logrus.FieldLogger, opts ...Option) Service {
	s := &service{
		store:  st,
		dir:    dir,
		log:    log.WithField("component", "report"),
		tracer: otel.Tracer("libraryms/report"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validType(t string) bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Generate records a pending report, collects its rows, writes the CSV file
// and marks the report completed. Failures are recorded on the report.
func (s *service) Generate(ctx context.Context, reportType, generatedBy string) (*domain.Report, error) {
	if !validType(reportType) {
		return nil, apperr.Validation(fmt.Sprintf("Unknown report type, expected one of %s.", strings.Join(Types(), ", ")))
	}
	if strings.TrimSpace(generatedBy) == "" {
		return nil, apperr.Validation("generated_by is required.")
	}

	ctx, span := s.tracer.Start(ctx, "report.generate", trace.WithAttributes(
		attribute.String("report.type", reportType),
	))
	defer span.End()

	r := &domain.Report{
		ReportType:  reportType,
		Status:      domain.ReportStatusPending,
		GeneratedBy: generatedBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.save(ctx, r, true); err != nil {
		return nil, s.fail(span, apperr.Store("create report", err))
	}
	log := s.log.WithFields(logrus.Fields{"report_id": r.ID, "report_type": reportType})

	r.Status = domain.ReportStatusRunning
	if err := s.save(ctx, r, false); err != nil {
		return nil, s.fail(span, apperr.Store("start report", err))
	}

	path, err := s.render(ctx, r)
	if err != nil {
		r.Status = domain.ReportStatusFailed
		r.Error = err.Error()
		log.WithError(err).Error("report generation failed")
		if saveErr := s.save(context.WithoutCancel(ctx), r, false); saveErr != nil {
			log.WithError(saveErr).Error("failed to record report failure")
		}
		return r, s.fail(span, apperr.Store("generate report", err))
	}

	completed := s.now().UTC()
	r.Status = domain.ReportStatusCompleted
	r.FilePath = path
	r.CompletedAt = &completed
	if err := s.save(ctx, r, false); err != nil {
		return nil, s.fail(span, apperr.Store("complete report", err))
	}
	log.WithField("file", path).Info("report generated")
	return r, nil
}

func (s *service) render(ctx context.Context, r *domain.Report) (string, error) {
	var rows [][]string
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rows, err = collect(ctx, tx, r.ReportType, s.now().UTC())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("collect %s rows: %w", r.ReportType, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", r.ReportType, uuid.NewString()))
	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close report file: %w", closeErr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

func (s *service) save(ctx context.Context, r *domain.Report, create bool) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if create {
			return tx.CreateReport(ctx, r)
		}
		return tx.UpdateReport(ctx, r)
	})
}

func (s *service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get returns one report record.
func (s *service) Get(ctx context.Context, id int64) (*domain.Report, error) {
	var r *domain.Report
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = tx.GetReport(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Report")
	}
	if err != nil {
		return nil, apperr.Store("get report", err)
	}
	return r, nil
}

// List returns every report record, newest first.
func (s *service) List(ctx context.Context) ([]domain.Report, error) {
	var out []domain.Report
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListReports(ctx)
		return err
	})
	if err != nil {
		return nil, apperr.Store("list reports", err)
	}
	return out, nil
}
