package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

// SweepResult summarizes one deadline sweep run.
type SweepResult struct {
	Assignments int `json:"assignments"`
	Notified    int `json:"notified"`
}

// RunDeadlineSweep reminds every actively enrolled student who has not yet
// submitted an assignment due exactly one week from today. Reminders are
// at-least-once: a failed run may resend on retry, it never skips anyone.
func (s *LifecycleService) RunDeadlineSweep(ctx context.Context) (*SweepResult, error) {
	dueDate := s.now().AddDate(0, 0, 7)
	assignments, err := s.assignments.DueOn(ctx, dueDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due assignments")
	}

	result := &SweepResult{Assignments: len(assignments)}
	for _, assignment := range assignments {
		submitted, err := s.submissions.SubmittedStudentIDs(ctx, assignment.ID)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
		}
		students, err := s.enrollments.ActiveStudentIDs(ctx, assignment.CourseID)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active students")
		}
		message := fmt.Sprintf("Assignment %q is due in one week for course %s.", assignment.Title, assignment.CourseTitle)
		for _, studentID := range students {
			if submitted[studentID] {
				continue
			}
			if err := s.notifier.Dispatch(ctx, nil, models.NotificationDeadlineSoon, studentID, assignment.CourseID, message); err != nil {
				return result, err
			}
			result.Notified++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(result.Notified)
	}
	s.logger.Info("deadline sweep finished",
		zap.Time("due_date", dueDate.Truncate(24*time.Hour)),
		zap.Int("assignments", result.Assignments),
		zap.Int("notified", result.Notified))
	return result, nil
}
