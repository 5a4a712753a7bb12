package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDashboardMetricsWithNamespace(t *testing.T) {
	m := NewDashboardMetricsWithNamespace("test", "dashboard")

	if m == nil {
		t.Fatal("Expected non-nil DashboardMetrics")
	}
}

func TestDashboardMetricsMiddleware(t *testing.T) {
	m := NewDashboardMetricsWithNamespace("test", "dashboard1")

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	})

	wrappedHandler := m.Middleware(testHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	if rec.Body.String() != "test response" {
		t.Errorf("Expected 'test response', got '%s'", rec.Body.String())
	}
}

func TestDashboardMetricsMiddlewareWithDifferentStatusCodes(t *testing.T) {
	m := NewDashboardMetricsWithNamespace("test", "dashboard2")

	tests := []struct {
		name       string
		statusCode int
		path       string
		method     string
	}{
		{"success", http.StatusOK, "/healthz", "GET"},
		{"not found", http.StatusNotFound, "/missing", "GET"},
		{"server error", http.StatusInternalServerError, "/ws", "GET"},
		{"created", http.StatusCreated, "/create", "POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			wrappedHandler := m.Middleware(testHandler)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(rec, req)

			if rec.Code != tt.statusCode {
				t.Errorf("Expected status %d, got %d", tt.statusCode, rec.Code)
			}
		})
	}
}

func TestDashboardMetricsMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	m := NewDashboardMetricsWithNamespace("test", "dashboard3")

	called := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := m.Middleware(testHandler)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(rec, req)

	if !called {
		t.Error("Expected the /metrics request to still reach the handler")
	}
}

func TestDashboardResponseWriterWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapper := &dashboardResponseWriter{
		ResponseWriter: rec,
		statusCode:     http.StatusOK,
		responseSize:   0,
	}

	wrapper.WriteHeader(http.StatusCreated)
	if wrapper.statusCode != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, wrapper.statusCode)
	}

	testData := []byte("test response data")
	n, err := wrapper.Write(testData)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if n != len(testData) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(testData), n)
	}
	if wrapper.responseSize != int64(len(testData)) {
		t.Errorf("Expected size %d, got %d", len(testData), wrapper.responseSize)
	}
}

func TestDashboardMetricsMiddlewareChain(t *testing.T) {
	m := NewDashboardMetricsWithNamespace("test", "dashboard4")

	finalHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "success")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("final response"))
	})

	wrappedHandler := m.Middleware(finalHandler)

	req := httptest.NewRequest("POST", "/ws", nil)
	rec := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	if rec.Header().Get("X-Test") != "success" {
		t.Errorf("Expected header X-Test=success, got %s", rec.Header().Get("X-Test"))
	}

	if rec.Body.String() != "final response" {
		t.Errorf("Expected 'final response', got '%s'", rec.Body.String())
	}
}

func BenchmarkDashboardMetricsMiddleware(b *testing.B) {
	m := NewDashboardMetricsWithNamespace("bench", "dashboard")

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("benchmark response"))
	})

	wrappedHandler := m.Middleware(testHandler)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/benchmark", nil)
		rec := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rec, req)
	}
}
