package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// recordingCollector はStatusRecorderのテスト用実装。
type recordingCollector struct {
	statuses []int
}

func (r *recordingCollector) RecordHTTPStatus(statusCode int) {
	r.statuses = append(r.statuses, statusCode)
}

func TestMetricsMiddleware_RecordsStatusCode(t *testing.T) {
	collector := &recordingCollector{}
	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/register", nil))

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusConflict {
		t.Errorf("recorded statuses = %v, want [409]", collector.statuses)
	}
}

func TestMetricsMiddleware_RecordsImplicit200(t *testing.T) {
	collector := &recordingCollector{}
	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // WriteHeaderを明示しない
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusOK {
		t.Errorf("recorded statuses = %v, want [200]", collector.statuses)
	}
}
