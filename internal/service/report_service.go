package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
	"github.com/lara-bellatin/awd-final/pkg/export"
	"github.com/lara-bellatin/awd-final/pkg/jobs"
)

type reportRepo interface {
	CreateJob(ctx context.Context, job *models.ReportJob) error
	FindJob(ctx context.Context, id string) (*models.ReportJob, error)
	MarkReady(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ReportCardRows(ctx context.Context, studentID string) ([]models.ReportCardRow, error)
}

type reportProgressReader interface {
	Progress(ctx context.Context, studentID, courseID string) (*ProgressSnapshot, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// ReportService generates student report cards asynchronously: a request
// creates a pending job, a background worker renders the artifact and flips
// the job to READY or FAILED.
type ReportService struct {
	reports   reportRepo
	lifecycle reportProgressReader
	storage   reportStorage
	queue     reportQueue
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs ReportService. Call BindQueue before serving
// requests.
func NewReportService(reports reportRepo, lifecycle reportProgressReader, storage reportStorage, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:   reports,
		lifecycle: lifecycle,
		storage:   storage,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BindQueue attaches the worker queue the service enqueues render jobs on.
func (s *ReportService) BindQueue(queue reportQueue) {
	s.queue = queue
}

// Request creates a pending report job for the student and schedules its
// rendering.
func (s *ReportService) Request(ctx context.Context, studentID string, format models.ReportFormat) (*models.ReportJob, error) {
	switch format {
	case models.ReportFormatCSV, models.ReportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report worker is not running")
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Format:    format,
		Status:    models.ReportJobPending,
	}
	if err := s.reports.CreateJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report_card", Payload: job.ID}); err != nil {
		if markErr := s.reports.MarkFailed(ctx, job.ID, "failed to schedule rendering"); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule report job")
	}
	return job, nil
}

// Status returns the job, scoped to its owner.
func (s *ReportService) Status(ctx context.Context, studentID, jobID string) (*models.ReportJob, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	return job, nil
}

// Download returns the rendered artifact of a READY job.
func (s *ReportService) Download(ctx context.Context, studentID, jobID string) ([]byte, *models.ReportJob, error) {
	job, err := s.Status(ctx, studentID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.ReportJobReady || job.FilePath == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready")
	}
	data, err := s.storage.Read(*job.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report file")
	}
	return data, job, nil
}

// HandleJob is the queue handler: it renders the report card for a pending
// job and records the outcome.
func (s *ReportService) HandleJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected report job payload %T", job.Payload)
	}
	record, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if record.Status != models.ReportJobPending {
		return nil
	}

	data, err := s.render(ctx, record)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}

	filename := fmt.Sprintf("report-cards/%s/%s.%s", record.StudentID, jobID, record.Format)
	path, err := s.storage.Save(filename, data)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, jobID, "failed to store report file"); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}
	if err := s.reports.MarkReady(ctx, jobID, path); err != nil {
		return err
	}
	s.logger.Info("report card rendered", zap.String("job_id", jobID), zap.String("path", path))
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) ([]byte, error) {
	rows, err := s.reports.ReportCardRows(ctx, job.StudentID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		snapshot, err := s.lifecycle.Progress(ctx, job.StudentID, rows[i].CourseID)
		if err != nil {
			continue
		}
		rows[i].Progress = snapshot.Progress
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Status", "Progress", "Final Grade"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		finalGrade := ""
		if row.FinalGrade != nil {
			finalGrade = strconv.FormatFloat(*row.FinalGrade, 'f', 2, 64)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":      row.CourseTitle,
			"Status":      string(row.Status),
			"Progress":    strconv.FormatFloat(row.Progress, 'f', 2, 64),
			"Final Grade": finalGrade,
		})
	}

	switch job.Format {
	case models.ReportFormatPDF:
		return s.pdf.Render(dataset, "Report Card")
	default:
		return s.csv.Render(dataset)
	}
}

func (s *ReportService) loadJob(ctx context.Context, jobID string) (*models.ReportJob, error) {
	job, err := s.reports.FindJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}
