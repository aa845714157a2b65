// internal/signer/client_test.go
package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serveStatus(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sign-and-send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestSignAndSend_Success(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"signature": "5KtP9smoke"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	resp, err := c.SignAndSend(context.Background(), "user-1", "walletPub", "base64tx")
	require.NoError(t, err)

	assert.Equal(t, "5KtP9smoke", resp.Signature)
	assert.False(t, resp.Uncertain)
	assert.Equal(t, "user-1", received["userId"])
	assert.Equal(t, "walletPub", received["walletPublicKey"])
	assert.Equal(t, "base64tx", received["serializedTransaction"])
}

func TestSignAndSend_AcceptedIsUncertainNotError(t *testing.T) {
	server := serveStatus(t, http.StatusAccepted,
		`{"signature": "abc", "message": "sent, confirmation pending"}`)
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	resp, err := c.SignAndSend(context.Background(), "u", "w", "tx")
	require.NoError(t, err)

	assert.True(t, resp.Uncertain)
	assert.Equal(t, "abc", resp.Signature)
	assert.Equal(t, "sent, confirmation pending", resp.Message)
}

func TestSignAndSend_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"user not found", http.StatusNotFound, `{}`, ErrUserNotFound},
		{"missing secret", http.StatusBadRequest, `{}`, ErrMissingSecret},
		{"signing failure", http.StatusInternalServerError,
			`{"error": "simulation failed", "logs": ["Program log: insufficient funds"]}`,
			ErrSigningFailed},
		{"unexpected status", http.StatusBadGateway, ``, ErrSigningFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serveStatus(t, tt.status, tt.body)
			defer server.Close()

			c := NewClient(server.URL, zaptest.NewLogger(t))
			_, err := c.SignAndSend(context.Background(), "u", "w", "tx")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignAndSend_EmptySignatureOn200(t *testing.T) {
	server := serveStatus(t, http.StatusOK, `{}`)
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := c.SignAndSend(context.Background(), "u", "w", "tx")
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestSignAndSend_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", zaptest.NewLogger(t))
	_, err := c.SignAndSend(context.Background(), "u", "w", "tx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
