package utils

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffRetriesUntilSuccess(t *testing.T) {
	var calls []int
	err := NewBackoff(time.Millisecond, 4).Do(context.Background(), func(i int) error {
		calls = append(calls, i)
		if i < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
}

func TestBackoffGivesUp(t *testing.T) {
	n := 0
	boom := errors.New("boom")
	err := NewBackoff(time.Millisecond, 2).Do(context.Background(), func(int) error { n++; return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, n)
}

func TestBackoffPermanent(t *testing.T) {
	n := 0
	boom := errors.New("rejected")
	err := NewBackoff(time.Millisecond, 5).Do(context.Background(), func(int) error { n++; return Permanent(boom) })
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, n)
}

func TestBackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := 0
	err := NewBackoff(time.Hour, 5).Do(ctx, func(int) error { n++; return errors.New("down") })
	require.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 16)
	assert.Contains(t, buf.String(), `"status":418`)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}
