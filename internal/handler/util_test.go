package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrResumeUnavailable, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWriteDomainErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("artifact abc123: %w", model.ErrForbidden))
	assert.NotContains(t, rec.Body.String(), "abc123")
}

func TestSendSSEEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	err := sendSSEEvent(rec, rec, "delta", map[string]string{"payload": "hi"})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "event: delta\n")
	assert.Contains(t, body, `data: {"payload":"hi"}`)
	assert.True(t, rec.Flushed)
}
