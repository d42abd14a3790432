package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/http/handlers"
	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/pkg/auth"
)

// memRules keeps the same duplicate invariant the Postgres repository
// enforces: one rule per (user, day, start, end), checked atomically.
type memRules struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.AvailabilityRule
}

func (m *memRules) Create(_ context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == rule.UserID && r.DayOfWeek == rule.DayOfWeek &&
			r.StartTime == rule.StartTime && r.EndTime == rule.EndTime {
			return nil, &domain.ValidationError{Field: "start_time", Reason: "identical rule already exists for this day"}
		}
	}
	m.nextID++
	created := *rule
	created.ID = m.nextID
	m.rows = append(m.rows, created)
	return &created, nil
}

func (m *memRules) GetByID(_ context.Context, id int64) (*domain.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			r := m.rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memRules) ListByUser(_ context.Context, userID int64) ([]domain.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AvailabilityRule
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) Update(_ context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == rule.ID {
			m.rows[i] = *rule
			return rule, nil
		}
	}
	return nil, nil
}

func (m *memRules) Delete(_ context.Context, id, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(_ context.Context, _ int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

func postRule(t *testing.T, router http.Handler, userID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.CtxClaims, &auth.Claims{Sub: userID})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestCreateRule_RejectsIdenticalRuleForSameDay(t *testing.T) {
	rules := &memRules{}
	invalidator := &countingInvalidator{}
	router := handlers.NewRulesHandler(rules, invalidator).Routes()

	body := `{"day_of_week":1,"start_time":"09:00","end_time":"17:00","buffer_minutes":15}`

	rec := postRule(t, router, 1, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, invalidator.calls)

	rec = postRule(t, router, 1, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, response.CodeInvalidInput, errBody.Code)
	assert.Equal(t, "start_time", errBody.Details)

	stored, err := rules.ListByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "the duplicate must not be stored")
	assert.Equal(t, 1, invalidator.calls, "a rejected create must not invalidate cached slots")
}

func TestCreateRule_SameWindowDifferentUsersBothSucceed(t *testing.T) {
	rules := &memRules{}
	router := handlers.NewRulesHandler(rules, &countingInvalidator{}).Routes()

	body := `{"day_of_week":2,"start_time":"10:00","end_time":"12:00"}`

	rec := postRule(t, router, 1, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postRule(t, router, 2, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
