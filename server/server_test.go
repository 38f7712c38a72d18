package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/dispatch"
	dispatchtest "github.com/gigboard/dispatch/internal/testing"
	"github.com/gigboard/dispatch/live"
	"github.com/gigboard/dispatch/notify"
	"github.com/gigboard/dispatch/queue"
)

func testServer(t *testing.T) (*httptest.Server, *notify.Store) {
	t.Helper()

	db := dispatchtest.CreateTestDB(t)
	log := zap.NewNop().Sugar()

	q := queue.NewQueue(db)
	b := bus.New(log)
	d := dispatch.New(q, b, log)
	require.NoError(t, d.Attach())

	notifications := notify.NewStore(db)
	hub := live.NewHub(log)

	s := New(Config{Addr: ":0"}, d, notifications, hub, log)
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv, notifications
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestServer_EnqueueJob(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{"userId": 42})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result dispatch.EnqueueResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, int64(1), result.LogicalID)
}

func TestServer_EnqueueRejectsMissingUser(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_JobStatusByLogicalID(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{"userId": 42})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var status dispatch.StatusResult
	getResp := getJSON(t, srv.URL+"/api/jobs/1", &status)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, "waiting", status.Status)
	assert.Equal(t, "1", status.LogicalID)
}

func TestServer_JobStatusNotFound(t *testing.T) {
	srv, _ := testServer(t)

	var status dispatch.StatusResult
	resp := getJSON(t, srv.URL+"/api/jobs/999", &status)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", status.Status)
	assert.Equal(t, "No job found with logical ID 999", status.Message)
}

func TestServer_ListJobs(t *testing.T) {
	srv, _ := testServer(t)

	postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{"userId": 42})
	postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{"userId": 43})

	var overview dispatch.Overview
	resp := getJSON(t, srv.URL+"/api/jobs", &overview)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, overview.Waiting.Count)
	assert.Equal(t, 2, overview.Total)
	assert.Equal(t, int64(2), overview.ActiveJobCount)
}

func TestServer_ListNotifications(t *testing.T) {
	srv, store := testServer(t)

	require.NoError(t, store.Create(&notify.Notification{
		UserID:  42,
		Event:   notify.EventSkillfolioCompleted,
		Message: "Your skillfolio is ready",
	}))

	var notifications []*notify.Notification
	resp := getJSON(t, srv.URL+"/api/notifications?user=42", &notifications)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Your skillfolio is ready", notifications[0].Message)

	// Unknown user gets an empty list, not an error
	notifications = nil
	resp = getJSON(t, srv.URL+"/api/notifications?user=77", &notifications)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, notifications)
}

func TestServer_ListNotificationsRequiresUser(t *testing.T) {
	srv, _ := testServer(t)

	resp := getJSON(t, srv.URL+"/api/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_MarkNotificationRead(t *testing.T) {
	srv, store := testServer(t)

	n := &notify.Notification{UserID: 42, Event: "a", Message: "msg"}
	require.NoError(t, store.Create(n))

	resp := postJSON(t, srv.URL+"/api/notifications/1/read", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/notifications/999/read", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WebSocketRequiresUser(t *testing.T) {
	srv, _ := testServer(t)

	resp := getJSON(t, srv.URL+"/ws", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
