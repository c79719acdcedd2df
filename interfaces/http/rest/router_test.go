package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"decivue/infrastructure/config"
	"decivue/infrastructure/di"
	"decivue/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Pagination *struct {
			Page       int `json:"page"`
			PageSize   int `json:"page_size"`
			TotalItems int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type decisionDetail struct {
	Decision struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		Status            string `json:"status"`
		CurrentConfidence int    `json:"current_confidence"`
		Version           int    `json:"version"`
	} `json:"decision"`
	Assumptions []struct {
		ID          string `json:"id"`
		Content     string `json:"content"`
		IsValidated bool   `json:"is_validated"`
	} `json:"assumptions"`
	Events []struct {
		EventType string `json:"event_type"`
	} `json:"events"`
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newAPI(t *testing.T, mutate func(cfg *config.Config)) *apiClient {
	t.Helper()
	cfg := config.Default()
	cfg.LogLevel = "error"
	if mutate != nil {
		mutate(cfg)
	}

	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return &apiClient{
		t:       t,
		handler: container.HTTPHandler(nil),
		token:   tokenFor(t, "user-1"),
	}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	gen := auth.NewJWTGenerator(di.DevJWTSecret, "", []string{"authenticated"}, time.Hour)
	token, err := gen.GenerateToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func (c *apiClient) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func createDecision(t *testing.T, api *apiClient, title string, confidence int) decisionDetail {
	t.Helper()
	rec, env := api.do(http.MethodPost, "/api/v1/decisions", map[string]interface{}{
		"title":            title,
		"category":         "fitness",
		"confidence":       confidence,
		"perceived_risk":   "medium",
		"perceived_impact": "high",
		"assumptions":      []string{"I can train three times a week"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var detail decisionDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	return detail
}

func TestRouter_HealthAndReadiness(t *testing.T) {
	api := newAPI(t, nil)
	api.token = ""

	rec, _ := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"ok"`)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	api := newAPI(t, nil)
	createDecision(t, api, "Run a 10k", 70)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "decivue_commands_total")
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	api := newAPI(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api.token = tt.token
			rec, env := api.do(http.MethodGet, "/api/v1/decisions", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "UNAUTHORIZED", env.Error.Type)
		})
	}
}

func TestRouter_DecisionLifecycle(t *testing.T) {
	api := newAPI(t, nil)

	created := createDecision(t, api, "Switch to morning runs", 80)
	id := created.Decision.ID
	assert.Equal(t, "fresh", created.Decision.Status)
	assert.Equal(t, 80, created.Decision.CurrentConfidence)
	require.Len(t, created.Assumptions, 1)

	// revise
	rec, env := api.do(http.MethodPost, "/api/v1/decisions/"+id+"/review", map[string]interface{}{
		"action":     "revise",
		"confidence": 60,
		"notes":      "knee is sore",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var revised decisionDetail
	require.NoError(t, json.Unmarshal(env.Data, &revised))
	assert.Equal(t, "fresh", revised.Decision.Status)
	assert.Equal(t, 60, revised.Decision.CurrentConfidence)

	// validate the assumption
	assumptionID := created.Assumptions[0].ID
	rec, env = api.do(http.MethodPost, "/api/v1/decisions/"+id+"/assumptions/"+assumptionID+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var validated decisionDetail
	require.NoError(t, json.Unmarshal(env.Data, &validated))
	require.Len(t, validated.Assumptions, 1)
	assert.True(t, validated.Assumptions[0].IsValidated)

	// timeline
	rec, env = api.do(http.MethodGet, "/api/v1/decisions/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline []struct {
		EventType string `json:"event_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	require.Len(t, timeline, 2)
	assert.Equal(t, "revised", timeline[0].EventType)
	assert.Equal(t, "created", timeline[1].EventType)

	// stats
	rec, env = api.do(http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total         int `json:"total"`
		AvgConfidence int `json:"avg_confidence"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 60, stats.AvgConfidence)

	// delete
	rec, _ = api.do(http.MethodDelete, "/api/v1/decisions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = api.do(http.MethodGet, "/api/v1/decisions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Type)
}

func TestRouter_LowConfidenceKeepsReviewedStatus(t *testing.T) {
	for _, threshold := range []int{0, 20} {
		api := newAPI(t, func(cfg *config.Config) {
			cfg.Lifecycle.LowConfidenceThreshold = threshold
		})

		created := createDecision(t, api, "Take the night shift", 10)
		assert.Equal(t, "fresh", created.Decision.Status, "threshold %d", threshold)

		other := createDecision(t, api, "Learn the cello", 80)
		rec, env := api.do(http.MethodPost, "/api/v1/decisions/"+other.Decision.ID+"/review", map[string]interface{}{
			"action":     "revise",
			"confidence": 5,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var revised decisionDetail
		require.NoError(t, json.Unmarshal(env.Data, &revised))
		assert.Equal(t, "fresh", revised.Decision.Status, "threshold %d", threshold)
		assert.Equal(t, 5, revised.Decision.CurrentConfidence)

		rec, env = api.do(http.MethodGet, "/api/v1/decisions/"+created.Decision.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var loaded decisionDetail
		require.NoError(t, json.Unmarshal(env.Data, &loaded))
		assert.Equal(t, "fresh", loaded.Decision.Status, "threshold %d", threshold)
	}
}

func TestRouter_ListDecisionsPaginates(t *testing.T) {
	api := newAPI(t, nil)
	for _, title := range []string{"Cut sugar", "Sleep by 11", "Walk daily"} {
		createDecision(t, api, title, 75)
	}

	rec, env := api.do(http.MethodGet, "/api/v1/decisions?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var decisions []struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &decisions))
	assert.Len(t, decisions, 2)
	require.NotNil(t, env.Meta)
	require.NotNil(t, env.Meta.Pagination)
	assert.Equal(t, 3, env.Meta.Pagination.TotalItems)

	rec, env = api.do(http.MethodGet, "/api/v1/decisions?search=sleep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "Sleep by 11", decisions[0].Title)
}

func TestRouter_ListDecisionsPastTheLastPage(t *testing.T) {
	api := newAPI(t, nil)
	createDecision(t, api, "Cut sugar", 75)

	for _, page := range []string{"2", "184467440737095518", "9223372036854775807"} {
		rec, env := api.do(http.MethodGet, "/api/v1/decisions?page="+page, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var decisions []struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &decisions))
		assert.Empty(t, decisions, "page %s", page)
		require.NotNil(t, env.Meta)
		require.NotNil(t, env.Meta.Pagination)
		assert.Equal(t, 1, env.Meta.Pagination.TotalItems)
	}
}

func TestRouter_DecisionsAreScopedToOwner(t *testing.T) {
	api := newAPI(t, nil)
	created := createDecision(t, api, "Private decision", 70)

	api.token = tokenFor(t, "user-2")
	rec, _ := api.do(http.MethodGet, "/api/v1/decisions/"+created.Decision.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	api := newAPI(t, nil)
	created := createDecision(t, api, "Quit coffee", 70)
	id := created.Decision.ID

	rec, env := api.do(http.MethodPost, "/api/v1/decisions/"+id+"/review", map[string]interface{}{"action": "invalidate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantType   string
	}{
		{
			name:       "missing confidence",
			method:     http.MethodPost,
			path:       "/api/v1/decisions",
			body:       map[string]interface{}{"title": "x", "category": "sleep", "perceived_risk": "low", "perceived_impact": "low"},
			wantStatus: http.StatusBadRequest,
			wantType:   "VALIDATION",
		},
		{
			name:       "unknown field",
			method:     http.MethodPost,
			path:       "/api/v1/decisions",
			body:       map[string]interface{}{"title": "x", "colour": "blue"},
			wantStatus: http.StatusBadRequest,
			wantType:   "VALIDATION",
		},
		{
			name:       "reaffirm invalidated",
			method:     http.MethodPost,
			path:       "/api/v1/decisions/" + id + "/review",
			body:       map[string]interface{}{"action": "reaffirm", "confidence": 50},
			wantStatus: http.StatusConflict,
			wantType:   "INVALID_TRANSITION",
		},
		{
			name:       "stale expected version",
			method:     http.MethodPost,
			path:       "/api/v1/decisions/" + id + "/review",
			body:       map[string]interface{}{"action": "invalidate", "expected_version": 99},
			wantStatus: http.StatusConflict,
			wantType:   "CONFLICT",
		},
		{
			name:       "malformed id",
			method:     http.MethodGet,
			path:       "/api/v1/decisions/not-a-uuid",
			wantStatus: http.StatusBadRequest,
			wantType:   "VALIDATION",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env = api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantType, env.Error.Type)
		})
	}
}

func TestRouter_ComputeLifeScore(t *testing.T) {
	api := newAPI(t, nil)

	rec, env := api.do(http.MethodPost, "/api/v1/life-score", map[string]float64{
		"habit": 80, "nutrition": 70, "mood": 60, "finance": 50, "consistency": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var score struct {
		Score float64 `json:"score"`
		Label string  `json:"label"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &score))
	assert.Greater(t, score.Score, 0.0)
	assert.NotEmpty(t, score.Label)
}

func TestRouter_RateLimitsPerUser(t *testing.T) {
	api := newAPI(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerWindow = 2
		cfg.RateLimit.Window = time.Minute
	})

	for i := 0; i < 2; i++ {
		rec, _ := api.do(http.MethodGet, "/api/v1/decisions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := api.do(http.MethodGet, "/api/v1/decisions", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMIT", env.Error.Type)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	api.token = tokenFor(t, "someone-else")
	rec, _ = api.do(http.MethodGet, "/api/v1/decisions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	api := newAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/decisions", strings.NewReader(""))
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
