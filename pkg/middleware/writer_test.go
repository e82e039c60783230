package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockFlusherWriter struct {
	http.ResponseWriter
	flushed bool
}

func (m *mockFlusherWriter) Flush() { m.flushed = true }

type mockHijackerWriter struct {
	http.ResponseWriter
	hijacked bool
}

func (m *mockHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	m.hijacked = true
	return nil, nil, nil
}

// minimalResponseWriter is a bare http.ResponseWriter without Flusher/Hijacker.
type minimalResponseWriter struct {
	header http.Header
}

func (m *minimalResponseWriter) Header() http.Header {
	if m.header == nil {
		m.header = make(http.Header)
	}
	return m.header
}

func (m *minimalResponseWriter) Write(b []byte) (int, error) { return len(b), nil }

func (m *minimalResponseWriter) WriteHeader(int) {}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
}

func TestStatusRecorder_CountsBytes(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	_, _ = rw.Write([]byte("hello"))
	_, _ = rw.Write([]byte(" world"))
	assert.Equal(t, 11, rw.bytes)
	assert.Equal(t, http.StatusOK, rw.statusCode)
}

func TestStatusRecorder_Flush(t *testing.T) {
	mock := &mockFlusherWriter{ResponseWriter: httptest.NewRecorder()}
	newStatusRecorder(mock).Flush()
	assert.True(t, mock.flushed)

	// No panic when unsupported.
	newStatusRecorder(&minimalResponseWriter{}).Flush()
}

func TestStatusRecorder_Hijack(t *testing.T) {
	mock := &mockHijackerWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := newStatusRecorder(mock).Hijack()
	assert.NoError(t, err)
	assert.True(t, mock.hijacked)

	_, _, err = newStatusRecorder(&minimalResponseWriter{}).Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestStatusRecorder_Unwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	assert.Same(t, inner, newStatusRecorder(inner).Unwrap())
}
