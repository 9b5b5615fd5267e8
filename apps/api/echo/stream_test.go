package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/stream"
)

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	parent := env.seedParent(t, sch.ID, "+27821230060")

	t.Run("rejects missing and refresh tokens", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/stream", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		refresh, err := GenerateToken(env.conf, newClaims(env.conf, parent, tokenKindRefresh, env.conf.Auth.RefreshTokenTTL))
		require.NoError(t, err)
		rec = env.do(t, http.MethodGet, "/v1/stream?token="+refresh, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("relays published events to the connected client", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/v1/stream?token="+env.accessToken(t, parent), nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			env.app.ServeHTTP(rec, req)
			close(done)
		}()

		require.Eventually(t, func() bool { return env.dispatcher.NumSubscribers() == 1 },
			time.Second, 5*time.Millisecond, "client never registered")

		env.dispatcher.Publish([]string{parent.ID}, stream.NewAnnouncementEvent("ann-1", "ch-1", "Sports day moved", "urgent"))

		// long enough for the event and at least one keepalive tick
		time.Sleep(5 * env.conf.Stream.KeepaliveInterval)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler did not return after cancellation")
		}

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, `"type":"connected"`)
		assert.Contains(t, body, `"user_id":"`+parent.ID+`"`)
		assert.Contains(t, body, `"announcement_id":"ann-1"`)
		assert.Contains(t, body, ": keepalive\n\n")
		for _, line := range strings.Split(body, "\n") {
			if line != "" && !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, ": ") {
				t.Fatalf("unexpected frame line %q", line)
			}
		}

		assert.Equal(t, 0, env.dispatcher.NumSubscribers(), "disconnect must unregister the queue")
	})
}
