package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bidcast/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// authedRequest attaches a verified identity and chi URL params the way the
// router does in production.
func authedRequest(method, target, subject string, body []byte, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := req.Context()
	if subject != "" {
		ctx = context.WithValue(ctx, middleware.CtxSubject, subject)
	}

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

	return req.WithContext(ctx)
}

func expectUserLookup(dbMock sqlmock.Sqlmock, subject string, id int, role string) {
	dbMock.ExpectQuery("SELECT id, name, COALESCE\\(email, ''\\), role FROM users WHERE token_identifier = \\$1").
		WithArgs(subject).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role"}).
			AddRow(id, "Test User", "test@example.com", role))
}

func TestCampaignService_CreateCampaign(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCampaignService(db, testCrowdfundConfig())

	t.Run("creates an open campaign", func(t *testing.T) {
		expectUserLookup(dbMock, "google|creator", 1, "user")
		dbMock.ExpectExec("INSERT INTO campaigns").
			WithArgs(sqlmock.AnyArg(), 1, "Studio microphone", "A better microphone for the show",
				int64(100000), sqlmock.AnyArg(), "").
			WillReturnResult(sqlmock.NewResult(1, 1))

		body, _ := json.Marshal(map[string]interface{}{
			"title":       "Studio microphone",
			"description": "A better microphone for the show",
			"goalAmount":  100000,
			"deadline":    time.Now().Add(30 * 24 * time.Hour).UnixMilli(),
		})

		req := authedRequest(http.MethodPost, "/api/v1/campaigns", "google|creator", body, nil)
		w := httptest.NewRecorder()
		service.CreateCampaign(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["campaignId"])
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejects a deadline in the past", func(t *testing.T) {
		expectUserLookup(dbMock, "google|creator", 1, "user")

		body, _ := json.Marshal(map[string]interface{}{
			"title":       "Studio microphone",
			"description": "A better microphone for the show",
			"goalAmount":  100000,
			"deadline":    time.Now().Add(-time.Hour).UnixMilli(),
		})

		req := authedRequest(http.MethodPost, "/api/v1/campaigns", "google|creator", body, nil)
		w := httptest.NewRecorder()
		service.CreateCampaign(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Deadline must be in the future")
	})

	t.Run("rejects anonymous callers", func(t *testing.T) {
		req := authedRequest(http.MethodPost, "/api/v1/campaigns", "", []byte(`{}`), nil)
		w := httptest.NewRecorder()
		service.CreateCampaign(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects an identity that never onboarded", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT id, name, COALESCE\\(email, ''\\), role FROM users WHERE token_identifier = \\$1").
			WithArgs("google|stranger").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role"}))

		req := authedRequest(http.MethodPost, "/api/v1/campaigns", "google|stranger", []byte(`{}`), nil)
		w := httptest.NewRecorder()
		service.CreateCampaign(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCampaignService_ListCampaigns(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCampaignService(db, testCrowdfundConfig())

	columns := []string{"id", "creator_id", "title", "description", "goal_amount",
		"deadline", "funded_amount", "status", "image", "created_at", "updated_at"}

	t.Run("filters by status", func(t *testing.T) {
		now := time.Now()
		dbMock.ExpectQuery("SELECT id, creator_id, title, description, goal_amount, deadline, funded_amount, status, image, created_at, updated_at FROM campaigns WHERE status = \\$1").
			WithArgs("open").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("camp-1", 1, "Mic", "desc", 100000, now.Add(time.Hour), 2500, "open", "", now, now))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?status=open", nil)
		w := httptest.NewRecorder()
		service.ListCampaigns(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Count int `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("searches title and description", func(t *testing.T) {
		dbMock.ExpectQuery("FROM campaigns WHERE \\(title ILIKE \\$1 OR description ILIKE \\$1\\)").
			WithArgs("%mic%").
			WillReturnRows(sqlmock.NewRows(columns))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?search=mic", nil)
		w := httptest.NewRecorder()
		service.ListCampaigns(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestCampaignService_UpdateCampaign(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCampaignService(db, testCrowdfundConfig())

	t.Run("creator updates own campaign", func(t *testing.T) {
		expectUserLookup(dbMock, "google|creator", 1, "user")
		dbMock.ExpectQuery("SELECT creator_id FROM campaigns WHERE id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(1))
		dbMock.ExpectExec("UPDATE campaigns SET title = \\$1").
			WithArgs("New title", "camp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(map[string]string{"title": "New title"})
		req := authedRequest(http.MethodPatch, "/api/v1/campaigns/camp-1", "google|creator", body,
			map[string]string{"campaignId": "camp-1"})
		w := httptest.NewRecorder()
		service.UpdateCampaign(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("non-creator is forbidden", func(t *testing.T) {
		expectUserLookup(dbMock, "google|other", 9, "user")
		dbMock.ExpectQuery("SELECT creator_id FROM campaigns WHERE id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(1))

		body, _ := json.Marshal(map[string]string{"title": "Hijacked"})
		req := authedRequest(http.MethodPatch, "/api/v1/campaigns/camp-1", "google|other", body,
			map[string]string{"campaignId": "camp-1"})
		w := httptest.NewRecorder()
		service.UpdateCampaign(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin may update any campaign", func(t *testing.T) {
		expectUserLookup(dbMock, "google|admin", 9, "admin")
		dbMock.ExpectQuery("SELECT creator_id FROM campaigns WHERE id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(1))
		dbMock.ExpectExec("UPDATE campaigns SET title = \\$1").
			WithArgs("Moderated title", "camp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(map[string]string{"title": "Moderated title"})
		req := authedRequest(http.MethodPatch, "/api/v1/campaigns/camp-1", "google|admin", body,
			map[string]string{"campaignId": "camp-1"})
		w := httptest.NewRecorder()
		service.UpdateCampaign(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		expectUserLookup(dbMock, "google|creator", 1, "user")
		dbMock.ExpectQuery("SELECT creator_id FROM campaigns WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"creator_id"}))

		req := authedRequest(http.MethodPatch, "/api/v1/campaigns/missing", "google|creator", []byte(`{}`),
			map[string]string{"campaignId": "missing"})
		w := httptest.NewRecorder()
		service.UpdateCampaign(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCampaignService_CanUserPledge(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCampaignService(db, testCrowdfundConfig())

	check := func(t *testing.T, campaignID string) bool {
		req := authedRequest(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%s/can-pledge", campaignID), "", nil,
			map[string]string{"campaignId": campaignID})
		w := httptest.NewRecorder()
		service.CanUserPledge(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]bool
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp["canPledge"]
	}

	t.Run("open campaign accepts pledges", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))

		assert.True(t, check(t, "camp-1"))
	})

	t.Run("settled campaign does not", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1").
			WithArgs("camp-2").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("succeeded"))

		assert.False(t, check(t, "camp-2"))
	})

	t.Run("unknown campaign does not", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		assert.False(t, check(t, "missing"))
	})
}

func TestCampaignService_ShareQR(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCampaignService(db, testCrowdfundConfig())

	t.Run("renders a png", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM campaigns WHERE id = \\$1\\)").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		req := authedRequest(http.MethodGet, "/api/v1/campaigns/camp-1/qr", "", nil,
			map[string]string{"campaignId": "camp-1"})
		w := httptest.NewRecorder()
		service.ShareQR(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Body.Bytes())
	})

	t.Run("unknown campaign", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM campaigns WHERE id = \\$1\\)").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		req := authedRequest(http.MethodGet, "/api/v1/campaigns/missing/qr", "", nil,
			map[string]string{"campaignId": "missing"})
		w := httptest.NewRecorder()
		service.ShareQR(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
