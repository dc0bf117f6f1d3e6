package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/polls/pkg/api"
	"github.com/rhuss/polls/pkg/auth"
	"github.com/rhuss/polls/pkg/transport"
)

// pollsBackend records the principal seen by a protected handler.
type pollsBackend struct {
	calls     int
	principal *auth.Principal
}

func (b *pollsBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls++
	b.principal = auth.PrincipalFromContext(r.Context())
	transport.WriteJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
}

func TestPolicyThroughServer(t *testing.T) {
	backend := &pollsBackend{}
	f := newFixture(t, withDownstream(backend))
	alice := f.addUser("alice", "wonderland", "USER")
	root := f.addUser("root", "toor1234", "USER", "ADMIN")

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
		wantReason api.ReasonCode
	}{
		{"public read without token", http.MethodGet, "/api/polls/42", "", http.StatusOK, ""},
		{"public read with token", http.MethodGet, "/api/polls/42", f.tokenFor(alice), http.StatusOK, ""},
		{"public read with garbage token", http.MethodGet, "/api/polls/42", "garbage", http.StatusOK, ""},
		{"create poll without token", http.MethodPost, "/api/polls", "", http.StatusUnauthorized, api.ReasonUnauthenticated},
		{"create poll with token", http.MethodPost, "/api/polls", f.tokenFor(alice), http.StatusOK, ""},
		{"create poll with garbage token", http.MethodPost, "/api/polls", "not.a.token", http.StatusUnauthorized, api.ReasonUnauthenticated},
		{"admin as user", http.MethodGet, "/api/admin/stats", f.tokenFor(alice), http.StatusForbidden, api.ReasonForbidden},
		{"admin as admin", http.MethodGet, "/api/admin/stats", f.tokenFor(root), http.StatusOK, ""},
		{"admin anonymous", http.MethodGet, "/api/admin/stats", "", http.StatusUnauthorized, api.ReasonUnauthenticated},
		{"dot segments cannot escape", http.MethodGet, "/api/polls/../admin/stats", "", http.StatusUnauthorized, api.ReasonUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.target, tt.token, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantReason == "" {
				return
			}
			if got := decodeError(t, rec).ReasonCode; got != tt.wantReason {
				t.Errorf("reasonCode = %q, want %q", got, tt.wantReason)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}

func TestDownstreamSeesPrincipal(t *testing.T) {
	backend := &pollsBackend{}
	f := newFixture(t, withDownstream(backend))
	alice := f.addUser("alice", "wonderland", "USER")

	f.do(http.MethodPost, "/api/polls", f.tokenFor(alice), nil)
	if backend.principal == nil || backend.principal.ID != alice.ID {
		t.Fatalf("principal = %+v, want id %s", backend.principal, alice.ID)
	}

	// A public route still sees who is calling when a valid token is sent.
	backend.principal = nil
	f.do(http.MethodGet, "/api/polls/1", f.tokenFor(alice), nil)
	if backend.principal == nil {
		t.Error("principal missing on public route with valid token")
	}

	backend.principal = nil
	f.do(http.MethodGet, "/api/polls/1", "", nil)
	if backend.principal != nil {
		t.Errorf("anonymous request carried principal %+v", backend.principal)
	}
}

func TestExpiredToken(t *testing.T) {
	backend := &pollsBackend{}
	f := newFixture(t, withDownstream(backend))
	alice := f.addUser("alice", "wonderland")
	token := f.tokenFor(alice)

	f.now = f.now.Add(2 * time.Hour)

	rec := f.do(http.MethodPost, "/api/polls", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeError(t, rec).ReasonCode; got != api.ReasonTokenExpired {
		t.Errorf("reasonCode = %q, want %q", got, api.ReasonTokenExpired)
	}
	if backend.calls != 0 {
		t.Errorf("protected handler ran %d times", backend.calls)
	}
}

func TestDeletedUserToken(t *testing.T) {
	f := newFixture(t, withDownstream(&pollsBackend{}))
	alice := f.addUser("alice", "wonderland")
	token := f.tokenFor(alice)

	if err := f.store.DeleteUser(context.Background(), alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	rec := f.do(http.MethodPost, "/api/polls", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeError(t, rec).ReasonCode; got != api.ReasonUnauthenticated {
		t.Errorf("reasonCode = %q", got)
	}
}

func TestRequestIDOnResponses(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/healthz", "/api/admin/stats"} {
		rec := f.do(http.MethodGet, target, "", nil)
		if rec.Header().Get(transport.RequestIDHeader) == "" {
			t.Errorf("%s: missing %s", target, transport.RequestIDHeader)
		}
	}
}

func TestCORSPreflightBypassesAuth(t *testing.T) {
	f := newFixture(t)
	f.server = NewServer(
		f.adapter,
		f.guard,
		WithCORS(transport.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
	)

	req := httptest.NewRequest(http.MethodOptions, "/api/polls", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code == http.StatusUnauthorized {
		t.Fatal("preflight was rejected by the access policy")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServeAndShutdown(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.adapter, f.guard,
		WithShutdownTimeout(2*time.Second),
		WithTimeouts(5*time.Second, 5*time.Second),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerOptions(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.adapter, f.guard,
		WithAddr(":9999"),
		WithTimeouts(3*time.Second, 4*time.Second),
	)
	if srv.httpServer.Addr != ":9999" {
		t.Errorf("Addr = %q", srv.httpServer.Addr)
	}
	if srv.httpServer.ReadTimeout != 3*time.Second || srv.httpServer.WriteTimeout != 4*time.Second {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
}
