package completion_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graydnsapconet/tgbot/internal/backoff"
	"github.com/graydnsapconet/tgbot/internal/completion"
)

func fastStrategy(t *testing.T) *backoff.Strategy {
	t.Helper()
	s, err := backoff.New(
		backoff.Base(time.Millisecond),
		backoff.Min(time.Millisecond),
		backoff.Max(2*time.Millisecond),
	)
	require.NoError(t, err)
	return s
}

func choicesReply(text string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
	})
	return body
}

func TestCompleteSendsModelMessagesAndMaxTokens(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(choicesReply("hi back"))
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{
		Endpoint:     srv.URL,
		Model:        "relay-7b",
		MaxTokens:    128,
		SystemPrompt: "be brief",
	}, srv.Client(), fastStrategy(t), nil)

	reply, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi back", reply)

	assert.Equal(t, "relay-7b", got.Model)
	assert.Equal(t, 128, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be brief", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestCompleteRetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(choicesReply("recovered"))
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{Endpoint: srv.URL}, srv.Client(), fastStrategy(t), nil)
	reply, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteFailsAfterSecondTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{Endpoint: srv.URL}, srv.Client(), fastStrategy(t), nil)
	_, err := client.Complete(context.Background(), "hi")
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
}

func TestCompleteHonorsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int32
	var gap time.Duration
	var first time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			gap = time.Since(first)
			w.Write(choicesReply("ok now"))
		}
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{Endpoint: srv.URL}, srv.Client(), fastStrategy(t), nil)
	reply, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok now", reply)
	assert.GreaterOrEqual(t, gap, time.Second)
}

func TestCompleteDoesNotRetryNonTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{Endpoint: srv.URL}, srv.Client(), fastStrategy(t), nil)
	_, err := client.Complete(context.Background(), "hi")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := completion.NewHTTPClient(completion.Config{Endpoint: srv.URL}, srv.Client(), fastStrategy(t), nil)
	_, err := client.Complete(context.Background(), "hi")
	assert.Error(t, err)
}
