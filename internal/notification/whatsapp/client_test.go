package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "2348030000000", r.PostForm.Get("target"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
	}))
	defer srv.Close()

	c := New(srv.URL, "key-1")
	require.NoError(t, c.Send(context.Background(), "0803 000 0000", "hello"))
}

func TestSend_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, "bad").Send(context.Background(), "2348030000000", "hello")
	assert.EqualError(t, err, "whatsapp API error: 401")
}

func TestSend_MockModeWithoutKey(t *testing.T) {
	assert.NoError(t, New("http://127.0.0.1:1", "").Send(context.Background(), "0803", "hello"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "2348030000000", NormalizePhone("08030000000"))
	assert.Equal(t, "2348030000000", NormalizePhone("+234 803-000-0000"))
	assert.Equal(t, "", NormalizePhone(""))
}
