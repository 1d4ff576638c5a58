package idempotency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLookupAndSave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hash := HashRequest("post", "/v1/escrows", []byte(`{"amount":1}`))
	require.Equal(t, hash, HashRequest("POST", "/v1/escrows", []byte(`{"amount":1}`)))
	require.NotEqual(t, hash, HashRequest("POST", "/v1/escrows", []byte(`{"amount":2}`)))

	resp, err := store.Lookup(ctx, "alice", "k1", hash)
	require.NoError(t, err)
	require.Nil(t, resp)

	require.NoError(t, store.Save(ctx, &Response{Subject: "alice", Key: "k1", RequestHash: hash, Status: 201, Body: []byte("ok")}))
	require.NoError(t, store.Save(ctx, &Response{Subject: "alice", Key: "k1", RequestHash: hash, Status: 409, Body: []byte("late")}))

	resp, err = store.Lookup(ctx, "alice", "k1", hash)
	require.NoError(t, err)
	require.Equal(t, 201, resp.Status)
	require.Equal(t, []byte("ok"), resp.Body)

	_, err = store.Lookup(ctx, "alice", "k1", "other")
	require.ErrorIs(t, err, ErrMismatch)

	resp, err = store.Lookup(ctx, "bob", "k1", hash)
	require.NoError(t, err)
	require.Nil(t, resp)

	removed, err := store.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestMiddlewareReplays(t *testing.T) {
	store := newTestStore(t)
	var calls int32
	handler := Middleware(store, func(*http.Request) string { return "alice" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, "call %d %s", n, body)
	}))

	do := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/escrows", strings.NewReader(body))
		if key != "" {
			req.Header.Set(HeaderKey, key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := do("abc", "x")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, "call 1 x", first.Body.String())

	replay := do("abc", "x")
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "call 1 x", replay.Body.String())
	require.Equal(t, "true", replay.Header().Get(HeaderReplay))

	conflict := do("abc", "y")
	require.Equal(t, http.StatusConflict, conflict.Code)

	fresh := do("", "x")
	require.Equal(t, "call 2 x", fresh.Body.String())
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddlewareSkipsServerErrors(t *testing.T) {
	store := newTestStore(t)
	var calls int32
	handler := Middleware(store, func(*http.Request) string { return "alice" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/escrows/k/confirm", nil)
		req.Header.Set(HeaderKey, "retry")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddlewareRetriesLedgerRefusal(t *testing.T) {
	store := newTestStore(t)
	var calls int32
	handler := Middleware(store, func(*http.Request) string { return "alice" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"code":"insufficient_funds"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/escrows", strings.NewReader("x"))
		req.Header.Set(HeaderKey, "topup")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusUnprocessableEntity, do().Code)

	second := do()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Empty(t, second.Header().Get(HeaderReplay))

	third := do()
	require.Equal(t, "created", third.Body.String())
	require.Equal(t, "true", third.Header().Get(HeaderReplay))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheable(t *testing.T) {
	require.True(t, cacheable(http.StatusCreated))
	require.True(t, cacheable(http.StatusConflict))
	require.True(t, cacheable(http.StatusBadRequest))
	require.False(t, cacheable(http.StatusUnprocessableEntity))
	require.False(t, cacheable(http.StatusBadGateway))
}
