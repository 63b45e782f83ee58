package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/middleware"
	"github.com/lara-bellatin/awd-final/internal/models"
	"github.com/lara-bellatin/awd-final/internal/service"
)

type notificationRepoMock struct {
	notifications []models.Notification
	markedRead    []string
	markReadOK    bool
	unread        int
}

func (m *notificationRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error {
	m.notifications = append(m.notifications, *notification)
	return nil
}

func (m *notificationRepoMock) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	return m.notifications, len(m.notifications), nil
}

func (m *notificationRepoMock) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	if !m.markReadOK {
		return false, nil
	}
	m.markedRead = append(m.markedRead, id)
	return true, nil
}

func (m *notificationRepoMock) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return int64(m.unread), nil
}

func (m *notificationRepoMock) UnreadCount(ctx context.Context, userID string) (int, error) {
	return m.unread, nil
}

func newNotificationTestContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return c, w
}

func TestNotificationHandlerList(t *testing.T) {
	repo := &notificationRepoMock{notifications: []models.Notification{
		{ID: "ntf-1", UserID: "student-1", CourseID: "crs-1", Content: "You have completed the course Intro to Go"},
	}}
	h := NewNotificationHandler(service.NewNotificationService(repo, nil, nil, nil))

	c, w := newNotificationTestContext(t, http.MethodGet, "/notifications")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data       []models.Notification `json:"data"`
		Pagination *models.Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ntf-1", body.Data[0].ID)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 1, body.Pagination.TotalCount)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	repo := &notificationRepoMock{unread: 3}
	h := NewNotificationHandler(service.NewNotificationService(repo, nil, nil, nil))

	c, w := newNotificationTestContext(t, http.MethodGet, "/notifications/unread-count")
	h.UnreadCount(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Unread int `json:"unread"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.Unread)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	repo := &notificationRepoMock{markReadOK: true}
	h := NewNotificationHandler(service.NewNotificationService(repo, nil, nil, nil))

	c, w := newNotificationTestContext(t, http.MethodPut, "/notifications/ntf-1/read")
	c.Params = gin.Params{{Key: "id", Value: "ntf-1"}}
	h.MarkRead(c)
	// c.Status defers the write until the handler chain flushes, which a
	// direct invocation never does.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"ntf-1"}, repo.markedRead)
}

func TestNotificationHandlerMarkReadNotFound(t *testing.T) {
	repo := &notificationRepoMock{markReadOK: false}
	h := NewNotificationHandler(service.NewNotificationService(repo, nil, nil, nil))

	c, w := newNotificationTestContext(t, http.MethodPut, "/notifications/missing/read")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandlerUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(service.NewNotificationService(&notificationRepoMock{}, nil, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/notifications", nil)
	require.NoError(t, err)
	c.Request = req

	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
