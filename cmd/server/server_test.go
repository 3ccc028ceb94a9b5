package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affiliumhq/affilium/automation"
	"github.com/affiliumhq/affilium/segments"
	"github.com/affiliumhq/affilium/smartlink"
)

// newTestServer wires the server on the in-memory store without touching
// the process-global metrics registry.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	segEngine, err := segments.NewEngine()
	require.NoError(t, err)

	s := &Server{
		engine:   automation.NewEngine(automation.NewInMemoryRuleStore(), automation.Senders{}),
		segments: segEngine,
		router:   smartlink.NewRouter(segEngine),
		log:      slog.Default(),
	}
	s.setupRoutes()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRuleCRUD(t *testing.T) {
	s := newTestServer(t)

	create := doJSON(t, s, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name": "vip commission",
		"conditions": []map[string]any{
			{"field": "orderValue", "operator": "GREATER_THAN", "value": 100},
		},
		"actions": []map[string]any{
			{"type": "APPROVE", "enabled": true},
		},
	})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	var created automation.Rule
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID, "server should assign an ID")
	assert.Equal(t, automation.StatusActive, created.Status, "status defaults to ACTIVE")

	get := doJSON(t, s, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, get.Code)

	update := doJSON(t, s, http.MethodPut, "/api/v1/rules/"+created.ID, map[string]any{
		"name":   "vip commission v2",
		"status": "PAUSED",
	})
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())

	var updated automation.Rule
	require.NoError(t, json.Unmarshal(update.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID, "ID comes from the URL")

	del := doJSON(t, s, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, del.Code)

	missing := doJSON(t, s, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateRuleValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rules/", map[string]any{
		"conditions": []map[string]any{{"field": "x", "operator": "EQUALS", "value": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")
}

func TestEvaluateEndpoint(t *testing.T) {
	s := newTestServer(t)

	create := doJSON(t, s, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name": "approve big orders",
		"conditions": []map[string]any{
			{"field": "orderValue", "operator": "GREATER_THAN", "value": 100},
		},
		"payoutPolicy": map[string]any{
			"payoutType":       "PERCENTAGE",
			"payoutPercentage": 10,
		},
		"actions": []map[string]any{
			{"type": "APPROVE", "enabled": true},
		},
	})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]any{
		"record": map[string]any{"orderValue": 150, "affiliateId": "aff-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	assert.True(t, result.Met)
	require.NotNil(t, result.Amount)
	assert.InDelta(t, 15.0, *result.Amount, 1e-9)
	require.Len(t, result.ActionResults, 1)
	assert.Equal(t, automation.ActionSucceeded, result.ActionResults[0].Status)
}

func TestEvaluateRequiresRecord(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "record is required")
}

func TestEvaluateSpecificRulesSkipsUnknown(t *testing.T) {
	s := newTestServer(t)

	create := doJSON(t, s, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name": "only rule",
	})
	require.Equal(t, http.StatusCreated, create.Code)
	var created automation.Rule
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &created))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]any{
		"record": map[string]any{},
		"rules":  []string{created.ID, "does-not-exist"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 1, "unknown rule IDs are skipped")
}

func TestPayoutPreview(t *testing.T) {
	s := newTestServer(t)

	t.Run("tiered policy", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/payout/preview", map[string]any{
			"payoutPolicy": map[string]any{
				"payoutType": "TIERED",
				"tieredRates": []map[string]any{
					{"min": 0, "max": 99, "rate": 5, "type": "FIXED"},
					{"min": 100, "rate": 10, "type": "PERCENTAGE"},
				},
			},
			"record": map[string]any{"orderValue": 150},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp map[string]float64
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.InDelta(t, 15.0, resp["amount"], 1e-9)
	})

	t.Run("malformed formula is a 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/payout/preview", map[string]any{
			"payoutPolicy": map[string]any{
				"payoutType":    "CUSTOM",
				"customFormula": "{{orderValue}} * rate",
			},
			"record": map[string]any{"orderValue": 100},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSegmentEndpointRejectsInvalidExpression(t *testing.T) {
	s := newTestServer(t)

	ok := doJSON(t, s, http.MethodPost, "/api/v1/segments", map[string]any{
		"name":       "germans",
		"expression": `visitor.country == "DE"`,
	})
	assert.Equal(t, http.StatusCreated, ok.Code, ok.Body.String())

	bad := doJSON(t, s, http.MethodPost, "/api/v1/segments", map[string]any{
		"name":       "broken",
		"expression": `visitor.country ==`,
	})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSmartLinkRedirect(t *testing.T) {
	s := newTestServer(t)

	seg := doJSON(t, s, http.MethodPost, "/api/v1/segments", map[string]any{
		"id":         "de-visitors",
		"name":       "German visitors",
		"expression": `visitor.country == "DE"`,
	})
	require.Equal(t, http.StatusCreated, seg.Code, seg.Body.String())

	link := doJSON(t, s, http.MethodPost, "/api/v1/links/", map[string]any{
		"slug":       "summer-sale",
		"defaultUrl": "https://shop.example.com/summer",
		"routes": []map[string]any{
			{"segmentId": "de-visitors", "url": "https://shop.example.com/de/sommer"},
		},
	})
	require.Equal(t, http.StatusCreated, link.Code, link.Body.String())

	t.Run("segment match redirects to route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/r/summer-sale?country=DE", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://shop.example.com/de/sommer", rec.Header().Get("Location"))
	})

	t.Run("no match falls back to default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/r/summer-sale?country=US", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://shop.example.com/summer", rec.Header().Get("Location"))
	})

	t.Run("unknown slug is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/r/nope", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	list := doJSON(t, s, http.MethodGet, "/api/v1/links/", nil)
	assert.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "summer-sale")
}
