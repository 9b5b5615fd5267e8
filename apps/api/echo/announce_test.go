package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/user"
)

func TestAnnouncements(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230020")
	env.seedLearner(t, sch.ID, "", parent)
	ch := env.seedSchoolChannel(t, sch.ID)

	create := func(t *testing.T, title string) announce.Announcement {
		rec := env.do(t, http.MethodPost, "/v1/announcements", env.accessToken(t, teacher), announce.NewAnnouncement{
			ChannelID: ch.ID,
			Title:     title,
			Body:      "Details to follow.",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ann announce.Announcement
		decodeBody(t, rec.Body, &ann)
		return ann
	}

	t.Run("parents cannot publish", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/announcements", env.accessToken(t, parent), announce.NewAnnouncement{
			ChannelID: ch.ID,
			Title:     "nope",
			Body:      "nope",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("publishing fans out to the channel audience", func(t *testing.T) {
		q := env.dispatcher.Register(parent.ID)
		defer env.dispatcher.Unregister(parent.ID, q)

		ann := create(t, "Sports day moved")

		select {
		case payload := <-q.C():
			var ev map[string]interface{}
			require.NoError(t, json.Unmarshal(payload, &ev))
			assert.Equal(t, "announcement.new", ev["type"])
			assert.Equal(t, ann.ID, ev["announcement_id"])
		default:
			t.Fatal("no event delivered to the guardian queue")
		}

		var queued bool
		for _, entry := range env.db.Notifications() {
			if entry.UserID == parent.ID && entry.Subject == ann.Title {
				queued = entry.Channel == notify.ChannelPush && entry.Status == notify.StatusQueued
			}
		}
		assert.True(t, queued, "a push delivery entry must be queued for the guardian")
	})

	t.Run("guardians see channels and announcements", func(t *testing.T) {
		token := env.accessToken(t, parent)
		rec := env.do(t, http.MethodGet, "/v1/channels", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var chans []announce.Channel
		decodeBody(t, rec.Body, &chans)
		require.Len(t, chans, 1)

		rec = env.do(t, http.MethodGet, "/v1/channels/"+ch.ID+"/announcements", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var anns []announce.Announcement
		decodeBody(t, rec.Body, &anns)
		assert.NotEmpty(t, anns)
	})

	t.Run("read receipts keep the first timestamp and feed stats", func(t *testing.T) {
		ann := create(t, "Report cards out")
		token := env.accessToken(t, parent)

		rec := env.do(t, http.MethodPost, "/v1/announcements/"+ann.ID+"/read", token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, http.MethodPost, "/v1/announcements/"+ann.ID+"/read", token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/announcements/"+ann.ID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got announce.Announcement
		decodeBody(t, rec.Body, &got)
		require.NotNil(t, got.ReadAt)

		rec = env.do(t, http.MethodGet, "/v1/announcements/"+ann.ID+"/stats", env.accessToken(t, teacher), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var stats announce.Stats
		decodeBody(t, rec.Body, &stats)
		assert.Equal(t, 1, stats.TotalRecipients)
		assert.Equal(t, 1, stats.ReadCount)
		assert.Equal(t, 0, stats.UnreadCount)
		assert.Equal(t, 100.0, stats.ReadPercentage)

		rec = env.do(t, http.MethodGet, "/v1/announcements/"+ann.ID+"/reads", env.accessToken(t, teacher), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var reads []announce.ReadReceipt
		decodeBody(t, rec.Body, &reads)
		require.Len(t, reads, 1)
		assert.Equal(t, parent.ID, reads[0].UserID)
	})

	t.Run("stats are staff-only", func(t *testing.T) {
		ann := create(t, "Principals meeting")
		rec := env.do(t, http.MethodGet, "/v1/announcements/"+ann.ID+"/stats", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("teachers delete only their own", func(t *testing.T) {
		ann := create(t, "Posted in error")
		otherTeacher := env.seedStaff(t, sch.ID, "teacher2@greenvalley.test", user.RoleTeacher)

		rec := env.do(t, http.MethodDelete, "/v1/announcements/"+ann.ID, env.accessToken(t, otherTeacher), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodDelete, "/v1/announcements/"+ann.ID, env.accessToken(t, teacher), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/announcements/"+ann.ID, env.accessToken(t, teacher), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("another school's channel does not exist here", func(t *testing.T) {
		schB := env.seedSchool(t, "Hillside High", "hillside")
		chB := env.seedSchoolChannel(t, schB.ID)
		rec := env.do(t, http.MethodGet, "/v1/channels/"+chB.ID+"/announcements", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
