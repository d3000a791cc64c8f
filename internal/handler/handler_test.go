package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kksr-counter/internal/config"
	"kksr-counter/internal/container"
	"kksr-counter/internal/domain"
	"kksr-counter/internal/service"
	apperrors "kksr-counter/pkg/errors"
	"kksr-counter/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type      string                 `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details"`
		RequestID string                 `json:"request_id"`
	} `json:"error"`
}

type testServer struct {
	t         *testing.T
	container *container.Container
	handler   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Environment:       "development",
		AllowedOrigins:    []string{"http://localhost:3000"},
		SessionSecret:     "test-secret",
		SessionCookieName: "kksr_session",
		SessionTTL:        time.Hour,
		RegenerateTimeout: time.Minute,
	}

	c, err := container.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	if c.MemorySessions != nil {
		t.Cleanup(c.MemorySessions.Stop)
	}

	return &testServer{t: t, container: c, handler: NewRouter(c)}
}

func (s *testServer) addObject(id int64, objectType domain.ObjectType) {
	s.t.Helper()
	obj := &domain.Object{ID: id, Type: objectType, Status: "publish"}
	require.NoError(s.t, s.container.Repositories.Object.Upsert(context.Background(), obj))
}

func (s *testServer) do(method, target, body string, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test/1.0")
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func pageViewBody(id int64, objectType string) string {
	return fmt.Sprintf(`{"object_id":%d,"object_type":%q}`, id, objectType)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func withCookies(cookies []*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func TestPageView_AdmitsThenThrottles(t *testing.T) {
	s := newTestServer(t)
	s.addObject(10, domain.ObjectProduct)

	rec, env := s.do(http.MethodPost, "/api/pageview", pageViewBody(10, "product"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	first := decodeData[PageViewResponse](t, env)
	require.Len(t, first.Decisions, 2)
	for _, d := range first.Decisions {
		assert.True(t, d.Allowed, "metric %s", d.Metric)
		assert.Equal(t, domain.ReasonAdmitted, d.Reason)
	}

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "a session cookie is issued on first view")
	assert.Equal(t, "kksr_session", cookies[0].Name)

	t.Run("same session is marked", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/pageview", pageViewBody(10, "product"), withCookies(cookies))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeData[PageViewResponse](t, env)
		for _, d := range resp.Decisions {
			assert.False(t, d.Allowed)
			assert.Equal(t, domain.ReasonSession, d.Reason)
		}
	})

	t.Run("new session hits the cooldown", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/pageview", pageViewBody(10, "product"))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeData[PageViewResponse](t, env)
		for _, d := range resp.Decisions {
			assert.False(t, d.Allowed)
			assert.Equal(t, domain.ReasonCooldown, d.Reason)
		}
	})

	t.Run("another visitor is admitted", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/pageview", pageViewBody(10, "product"), func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "203.0.113.9")
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeData[PageViewResponse](t, env)
		for _, d := range resp.Decisions {
			assert.True(t, d.Allowed)
		}
	})

	counters, err := s.container.Services.Counters.Get(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters.RatingCount)
	assert.Equal(t, int64(2), counters.Sales)
}

func TestPageView_Errors(t *testing.T) {
	s := newTestServer(t)
	s.addObject(1, domain.ObjectPost)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"malformed body", `{"object_id":`, http.StatusBadRequest, "validation"},
		{"unknown field", `{"object_id":1,"object_type":"post","extra":true}`, http.StatusBadRequest, "validation"},
		{"non-positive id", pageViewBody(0, "post"), http.StatusBadRequest, "validation"},
		{"unknown object type", pageViewBody(1, "page"), http.StatusBadRequest, "validation"},
		{"type mismatch", pageViewBody(1, "product"), http.StatusBadRequest, "validation"},
		{"unknown object", pageViewBody(999, "post"), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(http.MethodPost, "/api/pageview", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.NotEmpty(t, env.Error.RequestID)
		})
	}
}

func TestObjects_SavedSeedsAndCountersReadBack(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/objects/42/saved", `{"object_type":"post","status":"publish"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeData[service.SeedResult](t, env)
	assert.Equal(t, service.SeedApplied, result.Outcome)
	assert.GreaterOrEqual(t, result.Counters.RatingCount, int64(100))
	assert.LessOrEqual(t, result.Counters.RatingCount, int64(500))

	rec, env = s.do(http.MethodGet, "/api/objects/42/counters", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	counters := decodeData[CountersResponse](t, env)
	assert.Equal(t, int64(42), counters.ObjectID)
	assert.Equal(t, domain.ObjectPost, counters.ObjectType)
	assert.Equal(t, result.Counters.RatingCount, counters.RatingCount)
	assert.Equal(t, domain.RoundTo(counters.RatingAverage, 1), counters.RatingAverage)
	assert.Nil(t, counters.TotalSales, "posts carry no sales counter")

	t.Run("second save keeps the seeded counters", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/objects/42/saved", `{"object_type":"post"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		// seeded counts are never below the default threshold_votes
		again := decodeData[service.SeedResult](t, env)
		assert.Equal(t, service.SeedSkippedThreshold, again.Outcome)
		assert.Equal(t, result.Counters.RatingCount, again.Counters.RatingCount)
	})
}

func TestObjects_CountersForProductIncludeSales(t *testing.T) {
	s := newTestServer(t)
	s.addObject(7, domain.ObjectProduct)

	rec, env := s.do(http.MethodGet, "/api/objects/7/counters", "")
	require.Equal(t, http.StatusOK, rec.Code)

	counters := decodeData[CountersResponse](t, env)
	require.NotNil(t, counters.TotalSales)
	assert.Equal(t, int64(0), *counters.TotalSales)
}

func TestObjects_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"counters of unknown object", http.MethodGet, "/api/objects/5/counters", "", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/api/objects/abc/counters", "", http.StatusBadRequest},
		{"negative id", http.MethodPost, "/api/objects/-3/saved", `{"object_type":"post"}`, http.StatusBadRequest},
		{"saved with unknown type", http.MethodPost, "/api/objects/5/saved", `{"object_type":"attachment"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
		})
	}
}

func TestAdmin_SettingsLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DefaultSettings(), decodeData[domain.Settings](t, env))

	rec, env = s.do(http.MethodPut, "/api/admin/settings", `{"rating_cooldown_days":3,"sales_auto_increment":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeData[domain.Settings](t, env)
	assert.Equal(t, 3, updated.RatingCooldownDays)
	assert.False(t, updated.SalesAutoIncrement)

	rec, env = s.do(http.MethodGet, "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, updated, decodeData[domain.Settings](t, env))

	rec, env = s.do(http.MethodPut, "/api/admin/settings", `{"rating_min_stars":6}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", env.Error.Type)
	assert.NotEmpty(t, env.Error.Details)

	rec, env = s.do(http.MethodDelete, "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DefaultSettings(), decodeData[domain.Settings](t, env))

	rec, env = s.do(http.MethodGet, "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DefaultSettings(), decodeData[domain.Settings](t, env))
}

func TestAdmin_Regenerate(t *testing.T) {
	s := newTestServer(t)
	s.addObject(1, domain.ObjectPost)
	s.addObject(2, domain.ObjectProduct)

	rec, env := s.do(http.MethodPut, "/api/admin/settings", `{"threshold_votes":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/admin/regenerate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary := decodeData[service.RegenerateSummary](t, env)
	assert.Equal(t, service.RegenerateSummary{Total: 2, Seeded: 2}, summary)

	rec, env = s.do(http.MethodPost, "/api/admin/regenerate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.RegenerateSummary{Total: 2, Skipped: 2}, decodeData[service.RegenerateSummary](t, env))

	// forced runs rewrite counters that still hold seed values
	rec, env = s.do(http.MethodPost, "/api/admin/regenerate?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.RegenerateSummary{Total: 2, Seeded: 2}, decodeData[service.RegenerateSummary](t, env))

	rec, _ = s.do(http.MethodPost, "/api/admin/regenerate?force=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_PurgeThrottle(t *testing.T) {
	s := newTestServer(t)
	s.addObject(3, domain.ObjectProduct)

	rec, _ := s.do(http.MethodPost, "/api/pageview", pageViewBody(3, "product"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := s.do(http.MethodDelete, "/api/admin/throttle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"deleted": 2}, decodeData[map[string]int64](t, env))

	// Throttle cleared, a new session for the same visitor is admitted again
	rec, env = s.do(http.MethodPost, "/api/pageview", pageViewBody(3, "product"))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, d := range decodeData[PageViewResponse](t, env).Decisions {
		assert.True(t, d.Allowed)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "memory", resp.Checks["database"])
	assert.Equal(t, "disabled", resp.Checks["redis"])
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:80", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:80", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.7:5555", "192.0.2.7"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"ipv6 loopback", nil, "[::1]:8080", "127.0.0.1"},
		{"remote addr without port", nil, "192.0.2.8", "192.0.2.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestToAppError(t *testing.T) {
	validation := apperrors.NewValidationError("bad", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"app error passes through", validation, http.StatusBadRequest},
		{"not found", fmt.Errorf("load: %w", domain.ErrObjectNotFound), http.StatusNotFound},
		{"unknown type", domain.ErrUnknownObjectType, http.StatusBadRequest},
		{"retryable", fmt.Errorf("%w: %w", domain.ErrRetryable, errors.New("conn reset")), http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, toAppError(tt.err).StatusCode)
		})
	}
}
