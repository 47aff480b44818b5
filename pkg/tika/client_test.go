package tika

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4", string(body))
		_, _ = w.Write([]byte("Sorting algorithms\n"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	text, err := c.ExtractText(context.Background(), strings.NewReader("%PDF-1.4"), "week1.pdf")

	require.NoError(t, err)
	assert.Equal(t, "Sorting algorithms\n", text)
}

func TestExtractTextStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("cannot parse"))
	}))
	defer srv.Close()

	_, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).ExtractText(context.Background(), strings.NewReader("x"), "a.pdf")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
	assert.False(t, errs.IsTransient(err))
}

func TestResilientRetriesUnavailableTika(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4", string(body))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("Heaps"))
	}))
	defer srv.Close()

	caller := retry.NewCaller(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, Multiplier: 2})
	r := NewResilient(NewClient(config.TikaConfig{ServerURL: srv.URL}), caller)
	text, err := r.ExtractText(context.Background(), strings.NewReader("%PDF-1.4"), "week2.pdf")

	require.NoError(t, err)
	assert.Equal(t, "Heaps", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestResilientDoesNotRetryUnparseableFile(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	caller := retry.NewCaller(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, Multiplier: 2})
	_, err := NewResilient(NewClient(config.TikaConfig{ServerURL: srv.URL}), caller).
		ExtractText(context.Background(), strings.NewReader("x"), "a.pdf")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/pdf", detectMimeType("x.pdf"))
}
