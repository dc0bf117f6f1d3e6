package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/polls/pkg/api"
	"github.com/rhuss/polls/pkg/auth"
	authjwt "github.com/rhuss/polls/pkg/auth/jwt"
	"github.com/rhuss/polls/pkg/storage"
	"github.com/rhuss/polls/pkg/storage/memory"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fixture is a fully wired server backed by the in-memory store.
type fixture struct {
	t      *testing.T
	store  *memory.Store
	codec  *authjwt.Codec
	server  *Server
	adapter *Adapter
	guard   Guard
	now     time.Time
}

type fixtureOption func(*fixtureSetup)

type fixtureSetup struct {
	limiter    auth.RateLimiter
	downstream http.Handler
	store      storage.UserStore
}

func withLimiter(l auth.RateLimiter) fixtureOption {
	return func(s *fixtureSetup) { s.limiter = l }
}

func withDownstream(h http.Handler) fixtureOption {
	return func(s *fixtureSetup) { s.downstream = h }
}

func withStore(st storage.UserStore) fixtureOption {
	return func(s *fixtureSetup) { s.store = st }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var setup fixtureSetup
	for _, opt := range opts {
		opt(&setup)
	}

	f := &fixture{t: t, store: memory.New(), now: time.Now()}
	var users storage.UserStore = f.store
	if setup.store != nil {
		users = setup.store
	}

	codec, err := authjwt.NewCodec(authjwt.Config{Secret: testSecret, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	f.codec = codec

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return f.now }

	policy, err := auth.NewPolicy(auth.DefaultRules())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	entry := auth.NewEntryPoint(auth.WithEntryPointLogger(logger))
	filter := auth.NewFilter(codec, auth.NewResolver(users), auth.WithClock(clock), auth.WithLogger(logger))

	cfg := DefaultConfig()
	cfg.Downstream = setup.downstream

	adapterOpts := []AdapterOption{WithAdapterClock(clock), WithAdapterLogger(logger)}
	if setup.limiter != nil {
		adapterOpts = append(adapterOpts, WithSigninLimiter(setup.limiter))
	}
	f.adapter = NewAdapter(users, codec, entry, cfg, adapterOpts...)
	f.guard = Guard{Filter: filter, Policy: policy, EntryPoint: entry}
	f.server = NewServer(f.adapter, f.guard, WithLogger(logger))
	return f
}

// addUser stores a user with a bcrypt hash of password.
func (f *fixture) addUser(username, password string, roles ...string) *storage.User {
	f.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("hashing password: %v", err)
	}
	u := &storage.User{
		Name:         username + " Example",
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Roles:        roles,
	}
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		f.t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// tokenFor issues a token for u at the fixture's current time.
func (f *fixture) tokenFor(u *storage.User) string {
	f.t.Helper()
	token, _, err := f.codec.Issue(auth.NewPrincipal(u.ID, u.Username, u.Name, u.Roles), f.now)
	if err != nil {
		f.t.Fatalf("Issue: %v", err)
	}
	return token
}

func (f *fixture) do(method, target, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.APIError {
	t.Helper()
	var apiErr api.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return apiErr
}
