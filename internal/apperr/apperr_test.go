package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedChain(t *testing.T) {
	base := errors.New("disk gone")
	err := fmt.Errorf("loading top items: %w", Wrap(KindStorageReadMiss, base, "reading %s", "items_top25__x"))

	assert.Equal(t, KindStorageReadMiss, KindOf(err))
	assert.True(t, Is(err, KindStorageReadMiss))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "reading items_top25__x: disk gone")
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorDetail(t *testing.T) {
	err := New(KindUpstream, "search API returned HTTP %d", 503).WithDetail("try later")
	assert.Equal(t, "search API returned HTTP 503: try later", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConfiguration, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindUpstream, http.StatusBadGateway},
		{KindSerialization, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "x")))
		})
	}
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("Query", "q")))
}
