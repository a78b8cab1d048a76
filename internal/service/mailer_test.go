package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendGridMailerPostsMessage(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		payload map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := NewSendGridMailer("sg-key", "Virtual Hand", "noreply@example.com", testLogger())
	mailer.host = server.URL

	err := mailer.Send(context.Background(), MailMessage{To: "pupil@example.com", Subject: "Hello", Text: "Body"})
	require.NoError(t, err)
	require.Equal(t, sendGridEndpoint, gotPath)
	require.Equal(t, "Bearer sg-key", gotAuth)

	from, ok := payload["from"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "noreply@example.com", from["email"])
}

func TestSendGridMailerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	mailer := NewSendGridMailer("bad-key", "Virtual Hand", "noreply@example.com", testLogger())
	mailer.host = server.URL

	err := mailer.Send(context.Background(), MailMessage{To: "pupil@example.com", Subject: "Hello", Text: "Body"})
	require.Error(t, err)
}

func TestLogMailerAlwaysSucceeds(t *testing.T) {
	require.NoError(t, NewLogMailer(testLogger()).Send(context.Background(), MailMessage{To: "a@b.c"}))
}
