package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuerierFrom_NoScope(t *testing.T) {
	_, err := QuerierFrom(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database scope")
}

func TestScopeTransactor_NoScope(t *testing.T) {
	called := false
	err := NewTransactor().InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
}

func TestScope_CloseWithoutConn(t *testing.T) {
	s := &Scope{}
	assert.NotPanics(t, s.Close)
	assert.False(t, s.InTx())
}

func TestGetScope_RoundTrip(t *testing.T) {
	s := &Scope{}
	ctx := SetScope(context.Background(), s)

	got, ok := GetScope(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusServiceUnavailable, "database_error", "Database connection error")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"database_error","message":"Database connection error"}`, rec.Body.String())
}
