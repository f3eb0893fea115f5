// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDo_NoLimiter(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := Do(context.Background(), ts.Client(), nil, req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_DoesNotRetry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := Do(context.Background(), ts.Client(), nil, req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	// One token per minute: the second request has to wait.
	limiter := rate.NewLimiter(rate.Every(time.Minute), 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	_, err = Do(ctx, ts.Client(), limiter, req)
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-1))

	l := NewLimiter(5)
	require.NotNil(t, l)
	assert.Equal(t, rate.Limit(5), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		want    map[string]int
	}{
		{name: "ok", status: 200, body: `{"a":1}`, want: map[string]int{"a": 1}},
		{name: "non-200 carries body", status: 503, body: "upstream busy\n", wantErr: "HTTP 503: upstream busy"},
		{name: "bad json", status: 200, body: `{`, wantErr: "decoding response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			resp, err := ts.Client().Get(ts.URL)
			require.NoError(t, err)

			var got map[string]int
			err = ReadJSON(resp, &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusErrorWithoutBody(t *testing.T) {
	assert.Equal(t, "HTTP 500", (&StatusError{StatusCode: 500}).Error())
}
