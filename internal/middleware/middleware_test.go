package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/varsilias/mpt-chat/internal/logging"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "from-proxy")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "from-proxy", seen)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, "info", false)
	h := AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/api/chat")
}

func TestAccessLog_RequestID(t *testing.T) {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	for name, h := range map[string]func(*bytes.Buffer) http.Handler{
		"id outside": func(buf *bytes.Buffer) http.Handler {
			return RequestID()(AccessLog(logging.NewWriter(buf, "info", false))(noop))
		},
		"id inside": func(buf *bytes.Buffer) http.Handler {
			return AccessLog(logging.NewWriter(buf, "info", false))(RequestID()(noop))
		},
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", "abc123")
			h(&buf).ServeHTTP(httptest.NewRecorder(), req)
			assert.Contains(t, buf.String(), "req_id=abc123")
		})
	}
}

func TestVersionHeader(t *testing.T) {
	h := VersionHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "dev", rec.Header().Get("X-App-Version"))
}

func TestRemoteIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", remoteIP("10.0.0.1:5555"))
	assert.Equal(t, "[::1]", remoteIP("[::1]:8080"))
	assert.Equal(t, "pipe", remoteIP("pipe"))
}
