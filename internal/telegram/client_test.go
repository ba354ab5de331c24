package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: testToken, Timeout: 5 * time.Second})
	require.NoError(t, err)
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{Token: "  "})
	require.Error(t, err)
}

func TestSendMessagePostsJSON(t *testing.T) {
	var gotPath string
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	})

	require.NoError(t, client.SendMessage(context.Background(), 42, "привет"))
	assert.Equal(t, "/bot"+testToken+"/sendMessage", gotPath)
	assert.Equal(t, float64(42), payload["chat_id"])
	assert.Equal(t, "привет", payload["text"])
}

func TestSendPhotoUploadsMultipart(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendPhoto"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "7", r.FormValue("chat_id"))
		assert.Equal(t, "Динамика цен", r.FormValue("caption"))
		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "chart.png", header.Filename)
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, png, body)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	})

	require.NoError(t, client.SendPhoto(context.Background(), 7, png, "Динамика цен"))
}

func TestGetUpdatesDecodesResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		assert.Equal(t, "1", r.URL.Query().Get("timeout"))
		_, _ = io.WriteString(w, `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":5,"chat":{"id":99,"type":"private"},"text":"Apple март"}},
			{"update_id":11}
		]}`)
	})

	updates, err := client.GetUpdates(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, int64(99), updates[0].Message.Chat.ID)
	assert.Equal(t, "Apple март", updates[0].Message.Text)
	assert.Nil(t, updates[1].Message)
}

func TestAPIErrorCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`)
	})

	err := client.SendMessage(context.Background(), 1, "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
}

func TestSendWithRetryBacksOffOnServerErrors(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	var slept []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	attempts := 0
	err := client.SendWithRetry(context.Background(), 2, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &APIError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestSendWithRetryStopsOnClientError(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	attempts := 0
	err := client.SendWithRetry(context.Background(), 3, func(context.Context) error {
		attempts++
		return &APIError{StatusCode: http.StatusBadRequest, Description: "chat not found"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTransportErrorDoesNotLeakToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: baseURL, Token: testToken, Timeout: time.Second})
	require.NoError(t, err)
	err = client.SendMessage(context.Background(), 1, "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
}
