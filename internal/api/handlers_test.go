package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rewired-gh/forecastodds/internal/analytics"
	"github.com/rewired-gh/forecastodds/internal/engine"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	e := engine.New(s)
	h := NewHandler(e, analytics.FromEngine(e), s, 30, 10)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, wantStatus int, out interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s: status = %d, want %d (%s)", method, path, resp.StatusCode, wantStatus, e.Message)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	var body map[string]interface{}
	do(t, srv, http.MethodGet, "/health", "", http.StatusOK, &body)
	if body["status"] != "healthy" {
		t.Errorf("health = %v", body)
	}
}

func TestPredictionFlow(t *testing.T) {
	srv := newServer(t)

	do(t, srv, http.MethodPost, "/api/forecasters", `{"id":"a","display_name":"Ada"}`, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/api/forecasters", `{"id":"b","display_name":"Bob"}`, http.StatusCreated, nil)

	var market models.Market
	do(t, srv, http.MethodPost, "/api/markets", `{"id":"m1","question":"Will it rain?","category":"weather"}`, http.StatusCreated, &market)
	if market.Status != models.StatusProposed {
		t.Errorf("Status = %s, want proposed", market.Status)
	}
	do(t, srv, http.MethodPost, "/api/markets/m1/open", "", http.StatusOK, &market)

	do(t, srv, http.MethodPost, "/api/markets/m1/predictions",
		`{"forecasterId":"a","probability":40,"confidence":"medium"}`, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/api/markets/m1/predictions",
		`{"forecasterId":"b","probability":60,"confidence":"medium","reasoning":"radar"}`, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/api/markets/m1/predictions",
		`{"anonymousToken":"tok","isAnonymous":true,"probability":10,"confidence":"low"}`, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/api/markets/m1/predictions",
		`{"anonymousToken":"tok","isAnonymous":true,"probability":90,"confidence":"low"}`, http.StatusOK, nil)

	var current analytics.CurrentOdds
	do(t, srv, http.MethodGet, "/api/markets/m1/odds", "", http.StatusOK, &current)
	if current.PredictionCount != 3 || *current.Statistics.Median != 60 || current.Confidence.Low != 1 {
		t.Errorf("current odds = %+v", current)
	}

	var raw map[string]interface{}
	do(t, srv, http.MethodGet, "/api/markets/m1/analytics?period=3-monthly&limit=5&changes=2", "", http.StatusOK, &raw)
	if raw["period"] != "quarterly" {
		t.Errorf("period = %v", raw["period"])
	}
	snaps := raw["snapshots"].([]interface{})
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %v", snaps)
	}
	snap := snaps[0].(map[string]interface{})
	for _, key := range []string{"date", "predictionCount", "stdDeviation", "odds", "distribution", "inProgress"} {
		if _, ok := snap[key]; !ok {
			t.Errorf("snapshot missing key %q", key)
		}
	}
	if dist := snap["distribution"].(map[string]interface{}); dist["range_75_100"] != float64(1) {
		t.Errorf("distribution = %v", dist)
	}
	if changes := raw["recentChanges"].([]interface{}); len(changes) != 2 {
		t.Errorf("recentChanges = %v", changes)
	}
	if m := raw["market"].(map[string]interface{}); m["status"] != "open" {
		t.Errorf("market = %v", m)
	}

	var changes struct {
		Changes []models.ChangeEvent `json:"changes"`
		Count   int                  `json:"count"`
	}
	do(t, srv, http.MethodGet, "/api/markets/m1/changes", "", http.StatusOK, &changes)
	if changes.Count != 4 || changes.Changes[0].TriggerType != models.TriggerUpdatedPrediction {
		t.Errorf("changes = %+v", changes)
	}

	do(t, srv, http.MethodPost, "/api/markets/m1/resolve", `{"outcome":100,"resolutionSource":"met office"}`, http.StatusOK, &market)
	if !market.IsResolved() {
		t.Errorf("market = %+v", market)
	}

	var board []models.LeaderboardEntry
	do(t, srv, http.MethodGet, "/api/leaderboard", "", http.StatusOK, &board)
	if len(board) != 2 || board[0].UserID != "b" || board[0].DisplayName != "Bob" || board[0].Rank != 1 || board[1].Rank != 2 {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestLeaderboardEmptyList(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/leaderboard")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.TrimSpace(string(raw)); got != "[]" {
		t.Errorf("empty leaderboard body = %s, want []", got)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	do(t, srv, http.MethodPost, "/api/forecasters", `{"id":"a","display_name":"Ada"}`, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/api/markets", `{"id":"m1","question":"Q","category":"c","status":"open"}`, http.StatusCreated, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad probability", http.MethodPost, "/api/markets/m1/predictions", `{"forecasterId":"a","probability":120,"confidence":"low"}`, http.StatusBadRequest},
		{"bad confidence", http.MethodPost, "/api/markets/m1/predictions", `{"forecasterId":"a","probability":20,"confidence":"sure"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/markets/m1/predictions", `{"forecasterId":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/markets/m1/predictions", `{"forecasterId":"a","probability":20,"confidence":"low","stake":5}`, http.StatusBadRequest},
		{"unknown forecaster", http.MethodPost, "/api/markets/m1/predictions", `{"forecasterId":"x","probability":20,"confidence":"low"}`, http.StatusNotFound},
		{"unknown market odds", http.MethodGet, "/api/markets/nope/odds", "", http.StatusNotFound},
		{"unknown market analytics", http.MethodGet, "/api/markets/nope/analytics", "", http.StatusNotFound},
		{"bad period", http.MethodGet, "/api/markets/m1/analytics?period=hourly", "", http.StatusBadRequest},
		{"open twice", http.MethodPost, "/api/markets/m1/open", "", http.StatusConflict},
		{"duplicate market", http.MethodPost, "/api/markets", `{"id":"m1","question":"Q","category":"c"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, srv, tt.method, tt.path, tt.body, tt.want, nil)
		})
	}

	do(t, srv, http.MethodPost, "/api/markets/m1/resolve", `{"outcome":0}`, http.StatusOK, nil)
	do(t, srv, http.MethodPost, "/api/markets/m1/resolve", `{"outcome":100}`, http.StatusConflict, nil)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", models.ErrValidation), http.StatusBadRequest},
		{models.ErrMarketNotFound, http.StatusNotFound},
		{models.ErrForecasterNotFound, http.StatusNotFound},
		{models.ErrInvalidState, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("closed") }

func TestHealthUnavailable(t *testing.T) {
	h := NewHandler(nil, nil, downDB{}, 30, 10)
	rec := httptest.NewRecorder()
	NewRouter(h, []string{"https://example.org"}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
