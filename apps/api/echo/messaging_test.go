package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/user"
)

func TestConversations(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230010")
	learner := env.seedLearner(t, sch.ID, "", parent)

	newConv := func(t *testing.T) messaging.Summary {
		rec := env.do(t, http.MethodPost, "/v1/conversations", env.accessToken(t, teacher), messaging.NewConversation{
			LearnerID:     learner.ID,
			ParticipantID: parent.ID,
			Subject:       "Homework",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var sum messaging.Summary
		decodeBody(t, rec.Body, &sum)
		return sum
	}

	t.Run("creating twice returns the same conversation", func(t *testing.T) {
		first := newConv(t)
		second := newConv(t)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, first.Participants, 2)
	})

	t.Run("sending delivers to the other participant", func(t *testing.T) {
		conv := newConv(t)
		q := env.dispatcher.Register(parent.ID)
		defer env.dispatcher.Unregister(parent.ID, q)

		rec := env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, teacher),
			messaging.NewMessage{Body: "Thandi forgot her reader today."})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var msg messaging.Message
		decodeBody(t, rec.Body, &msg)
		assert.Equal(t, teacher.ID, msg.SenderID)

		select {
		case payload := <-q.C():
			var ev map[string]interface{}
			require.NoError(t, json.Unmarshal(payload, &ev))
			assert.Equal(t, "message.new", ev["type"])
			assert.Equal(t, conv.ID, ev["conversation_id"])
		default:
			t.Fatal("no event delivered to the recipient queue")
		}
	})

	t.Run("participants list and read messages", func(t *testing.T) {
		conv := newConv(t)
		rec := env.do(t, http.MethodGet, "/v1/conversations", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var sums []messaging.Summary
		decodeBody(t, rec.Body, &sums)
		require.Len(t, sums, 1)
		assert.Equal(t, conv.ID, sums[0].ID)

		rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/read", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("an outsider parent cannot read the conversation", func(t *testing.T) {
		conv := newConv(t)
		other := env.seedParent(t, sch.ID, "+27821230011")
		rec := env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, other), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("another school's admin sees nothing at all", func(t *testing.T) {
		conv := newConv(t)
		schB := env.seedSchool(t, "Hillside High", "hillside")
		adminB := env.seedStaff(t, schB.ID, "admin@hillside.test", user.RoleSchoolAdmin)
		rec := env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, adminB), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMessageRateLimit(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230012")
	learner := env.seedLearner(t, sch.ID, "", parent)

	rec := env.do(t, http.MethodPost, "/v1/conversations", env.accessToken(t, teacher), messaging.NewConversation{
		LearnerID:     learner.ID,
		ParticipantID: parent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv messaging.Summary
	decodeBody(t, rec.Body, &conv)

	token := env.accessToken(t, teacher)
	for i := 0; i < 3; i++ {
		rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", token,
			messaging.NewMessage{Body: fmt.Sprintf("message %d", i+1)})
		require.Equal(t, http.StatusCreated, rec.Code, "message %d should pass", i+1)
	}

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", token,
		messaging.NewMessage{Body: "one too many"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// the rejected message was never written
	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []messaging.Message
	decodeBody(t, rec.Body, &msgs)
	assert.Len(t, msgs, 3)
}

func TestConversationModeration(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230013")
	learner := env.seedLearner(t, sch.ID, "", parent)

	rec := env.do(t, http.MethodPost, "/v1/conversations", env.accessToken(t, teacher), messaging.NewConversation{
		LearnerID:     learner.ID,
		ParticipantID: parent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv messaging.Summary
	decodeBody(t, rec.Body, &conv)

	t.Run("parents cannot mute or block", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/mute", env.accessToken(t, parent),
			messaging.MuteRequest{Muted: true})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/block", env.accessToken(t, parent),
			messaging.BlockRequest{UserID: teacher.ID, Blocked: true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("muting inserts a system message", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/mute", env.accessToken(t, teacher),
			messaging.MuteRequest{Muted: true})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var msgs []messaging.Message
		decodeBody(t, rec.Body, &msgs)
		require.NotEmpty(t, msgs)
		assert.True(t, msgs[len(msgs)-1].IsSystem)
	})

	t.Run("a blocked participant cannot send", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/block", env.accessToken(t, teacher),
			messaging.BlockRequest{UserID: parent.ID, Blocked: true})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, parent),
			messaging.NewMessage{Body: "hello?"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAdminOversightIsAudited(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	admin := env.seedStaff(t, sch.ID, "admin@greenvalley.test", user.RoleSchoolAdmin)
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230014")
	learner := env.seedLearner(t, sch.ID, "", parent)

	rec := env.do(t, http.MethodPost, "/v1/conversations", env.accessToken(t, teacher), messaging.NewConversation{
		LearnerID:     learner.ID,
		ParticipantID: parent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv messaging.Summary
	decodeBody(t, rec.Body, &conv)

	adminToken := env.accessToken(t, admin)
	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/audit-log?action="+audit.ActionViewConversation, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []audit.Entry
	decodeBody(t, rec.Body, &entries)
	require.Len(t, entries, 1, "oversight access must be audited exactly once")
	assert.Equal(t, admin.ID, entries[0].UserID)
	assert.Equal(t, conv.ID, entries[0].EntityID)

	// participants reading their own conversation leave no trail
	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", env.accessToken(t, teacher), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/audit-log?action="+audit.ActionViewConversation, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	decodeBody(t, rec.Body, &entries)
	assert.Len(t, entries, 1)
}
