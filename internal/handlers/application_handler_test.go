package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"github.com/justsurfingit/inbox-job-tracker/internal/database"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScanner struct {
	got    services.Options
	report services.ScanReport
}

func (f *fakeScanner) Run(_ context.Context, userID uint, opts services.Options) services.ScanReport {
	f.got = opts
	r := f.report
	r.UserID = userID
	return r
}

type fixture struct {
	router  *gin.Engine
	apps    *services.ApplicationService
	scanner *fakeScanner
	user    *models.User
	app     *models.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect("sqlite://"+filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	users := services.NewUserService(db)
	apps := services.NewApplicationService(db)
	ctx := context.Background()

	u, err := users.Create(ctx, "ada@example.com")
	require.NoError(t, err)
	app := &models.Application{
		UserID:          u.ID,
		SourceMessageID: "m-1",
		CompanyName:     "Acme",
		JobTitle:        "Backend Engineer",
		Platform:        models.PlatformWorkday,
		AppliedAt:       time.Now().AddDate(0, 0, -2),
	}
	require.NoError(t, apps.Create(ctx, app))
	old := &models.Application{
		UserID:          u.ID,
		SourceMessageID: "m-2",
		CompanyName:     "Globex",
		JobTitle:        "SRE",
		Platform:        models.PlatformLever,
		Status:          models.StatusRejected,
		AppliedAt:       time.Now().AddDate(0, 0, -60),
	}
	require.NoError(t, apps.Create(ctx, old))

	scanner := &fakeScanner{}
	h := NewApplicationHandler(apps, users, scanner)
	return &fixture{router: NewRouter(h, zap.NewNop()), apps: apps, scanner: scanner, user: u, app: app}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func userPath(f *fixture, suffix string) string {
	return "/api/v1/users/" + itoa(f.user.ID) + suffix
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusOK, w.Code)

	var users []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "ada@example.com", users[0]["email"])
	assert.Equal(t, false, users[0]["connected"])
	assert.NotContains(t, w.Body.String(), "gmail_token")
}

func TestListApplications(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		count int
	}{
		{"all", "", 2},
		{"company", "?company=acm", 1},
		{"status", "?status=rejected", 1},
		{"platform", "?platform=lever", 1},
		{"days", "?days=10", 1},
		{"limit", "?limit=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, userPath(f, "/applications"+tt.query), "")
			require.Equal(t, http.StatusOK, w.Code)
			var resp struct {
				Count        int                  `json:"count"`
				Applications []models.Application `json:"applications"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.count, resp.Count)
			assert.Len(t, resp.Applications, tt.count)
		})
	}

	w := f.do(t, http.MethodGet, userPath(f, "/applications?limit=0&days=-1"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/999/applications", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/abc/applications", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetApplicationWithEvents(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, userPath(f, "/applications/"+itoa(f.app.ID)), "")
	require.Equal(t, http.StatusOK, w.Code)

	var app models.Application
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Equal(t, "Acme", app.CompanyName)
	require.Len(t, app.Events, 1)
	assert.Equal(t, models.EventCreated, app.Events[0].EventType)

	w = f.do(t, http.MethodGet, userPath(f, "/applications/4242"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	path := userPath(f, "/applications/"+itoa(f.app.ID)+"/status")

	w := f.do(t, http.MethodPatch, path, `{"status": "Interview"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var app models.Application
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Equal(t, models.StatusInterview, app.Status)
	assert.True(t, app.ManuallyEdited)

	w = f.do(t, http.MethodPatch, path, `{"status": "ghosted"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPatch, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, userPath(f, "/stats"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var st services.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.EqualValues(t, 2, st.Total)
	assert.EqualValues(t, 1, st.ByStatus[models.StatusRejected])
	assert.EqualValues(t, 1, st.ByPlatform[models.PlatformWorkday])
}

func TestScan(t *testing.T) {
	f := newFixture(t)
	f.scanner.report = services.ScanReport{RunID: "run-1", Created: 2, Truncated: true}

	w := f.do(t, http.MethodPost, userPath(f, "/scan"), `{"days": 5, "reprocess": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.Options{WindowDays: 5, Reprocess: true}, f.scanner.got)
	assert.Contains(t, w.Body.String(), `"truncated":true`)
	assert.Contains(t, w.Body.String(), `"created":2`)

	w = f.do(t, http.MethodPost, userPath(f, "/scan"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.Options{}, f.scanner.got)

	w = f.do(t, http.MethodPost, userPath(f, "/scan"), `{"days": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	authErr := &auth.AuthError{UserID: f.user.ID, Err: auth.ErrMissingToken}
	f.scanner.report = services.ScanReport{Err: authErr, Error: authErr.Error()}
	w = f.do(t, http.MethodPost, userPath(f, "/scan"), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "reconnect Gmail")
}
