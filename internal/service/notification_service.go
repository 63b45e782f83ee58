package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type notificationRepo interface {
	Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type notificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type notificationMetrics interface {
	ObserveNotification(kind models.NotificationKind)
	RecordCacheOperation(hit bool)
}

const unreadCountTTL = 2 * time.Minute

// NotificationService persists and serves user notifications. Dispatch is
// the single entry point every lifecycle event funnels through.
type NotificationService struct {
	notifications notificationRepo
	cache         notificationCache
	metrics       notificationMetrics
	logger        *zap.Logger
}

// NewNotificationService constructs NotificationService. cache and metrics
// may be nil.
func NewNotificationService(notifications notificationRepo, cache notificationCache, metrics notificationMetrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, cache: cache, metrics: metrics, logger: logger}
}

func unreadCountKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}

// Dispatch stores a notification for a user. When exec is non-nil the write
// joins the caller's transaction so the notification commits or rolls back
// with the state change that caused it.
func (s *NotificationService) Dispatch(ctx context.Context, exec sqlx.ExtContext, kind models.NotificationKind, userID, courseID, content string) error {
	notification := &models.Notification{
		UserID:   userID,
		CourseID: courseID,
		Content:  content,
	}
	if err := s.notifications.Create(ctx, exec, notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	if s.metrics != nil {
		s.metrics.ObserveNotification(kind)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, unreadCountKey(userID)); err != nil {
			s.logger.Warn("failed to invalidate unread count cache", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.logger.Debug("notification dispatched",
		zap.String("kind", string(kind)),
		zap.String("user_id", userID),
		zap.String("course_id", courseID))
	return nil
}

// List returns the user's notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the user's unread notification count, served from
// cache when warm.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCountKey(userID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}
	count, err := s.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, unreadCountTTL); err != nil {
			s.logger.Warn("failed to cache unread count", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	updated, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, unreadCountKey(userID)); err != nil {
			s.logger.Warn("failed to invalidate unread count cache", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// MarkAllRead marks every unread notification for the user as read and
// returns how many were updated.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, unreadCountKey(userID)); err != nil {
			s.logger.Warn("failed to invalidate unread count cache", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return updated, nil
}
