package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct public", "203.0.113.5:4000", "", "", "203.0.113.5"},
		{"public ignores xff", "203.0.113.5:4000", "1.1.1.1", "", "203.0.113.5"},
		{"trusted proxy xff", "10.0.0.2:4000", "198.51.100.9, 10.0.0.3", "", "198.51.100.9"},
		{"trusted proxy real ip", "127.0.0.1:4000", "", "198.51.100.10", "198.51.100.10"},
		{"trusted proxy garbage", "192.168.1.1:4000", "not-an-ip", "", "192.168.1.1"},
		{"no port", "198.51.100.11", "", "", "198.51.100.11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "100.64.0.7:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.20")

	if got := d.ExtractClientIP(r); got != "100.64.0.7" {
		t.Fatalf("before AddTrustedProxy got %q", got)
	}
	if err := d.AddTrustedProxy("100.64.0.0/10"); err != nil {
		t.Fatalf("AddTrustedProxy() error = %v", err)
	}
	if got := d.ExtractClientIP(r); got != "198.51.100.20" {
		t.Errorf("after AddTrustedProxy got %q, want 198.51.100.20", got)
	}
	if err := d.AddTrustedProxy("100.64.0.7"); err == nil {
		t.Error("AddTrustedProxy() accepted a bare address")
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/api/dashboard", http.StatusOK},
		{http.MethodGet, "/.env", http.StatusBadRequest},
		{http.MethodGet, "/api/goals?x=../../etc/passwd", http.StatusBadRequest},
		{"TRACE", "/", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
		}
	}
	if got := d.GetMetrics().SuspiciousRequests; got != 3 {
		t.Errorf("SuspiciousRequests = %d, want 3", got)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}
