package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/polls/pkg/api"
	"github.com/rhuss/polls/pkg/storage"
	"github.com/rhuss/polls/pkg/storage/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeVerifier maps token strings to verification results.
type fakeVerifier struct {
	claims map[string]*Claims
	errs   map[string]error
	calls  atomic.Int32
}

func (v *fakeVerifier) Verify(token string, _ time.Time) (*Claims, error) {
	v.calls.Add(1)
	if err, ok := v.errs[token]; ok {
		return nil, err
	}
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, NewTokenError(ErrMalformed, nil)
}

// countingLookup counts GetUser calls against a wrapped lookup.
type countingLookup struct {
	storage.UserLookup
	calls atomic.Int32
}

func (c *countingLookup) GetUser(ctx context.Context, id string) (*storage.User, error) {
	c.calls.Add(1)
	return c.UserLookup.GetUser(ctx, id)
}

// blockingLookup waits for the context to end.
type blockingLookup struct{}

func (blockingLookup) GetUser(ctx context.Context, _ string) (*storage.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowLookup answers after delay without honouring the context.
type slowLookup struct {
	delay time.Duration
	user  *storage.User
}

func (s slowLookup) GetUser(_ context.Context, _ string) (*storage.User, error) {
	time.Sleep(s.delay)
	return s.user, nil
}

func newStore(t *testing.T, users ...*storage.User) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, u := range users {
		if err := st.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%s): %v", u.Username, err)
		}
	}
	return st
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) api.APIError {
	t.Helper()
	var apiErr api.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return apiErr
}
