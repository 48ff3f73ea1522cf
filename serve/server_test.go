package serve

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer_StatusCodes(t *testing.T) {
	ready := NewServer(testService(t), nil, nil)
	empty := NewServer(NewInferenceService(nil, nil), nil, nil)

	tests := []struct {
		name     string
		server   *Server
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"root", ready, http.MethodGet, "/", "", http.StatusOK},
		{"health ready", ready, http.MethodGet, "/health", "", http.StatusOK},
		{"health degraded still 200", empty, http.MethodGet, "/health", "", http.StatusOK},
		{"predict ok", ready, http.MethodPost, "/predict",
			`{"cart":[{"product_id":"103"}],"top_k":3}`, http.StatusOK},
		{"predict bad top_k", ready, http.MethodPost, "/predict",
			`{"cart":[],"top_k":999}`, http.StatusBadRequest},
		{"predict malformed body", ready, http.MethodPost, "/predict",
			`{"cart":`, http.StatusBadRequest},
		{"predict not ready", empty, http.MethodPost, "/predict",
			`{"cart":[],"top_k":3}`, http.StatusServiceUnavailable},
		{"stats ok", ready, http.MethodGet, "/stats", "", http.StatusOK},
		{"stats not ready", empty, http.MethodGet, "/stats", "", http.StatusServiceUnavailable},
		{"products without catalog", ready, http.MethodGet, "/products", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			tt.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("%s %s = %d, want %d (body: %s)",
					tt.method, tt.path, rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(testService(t), nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS /predict = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
