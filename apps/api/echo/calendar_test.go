package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/user"
)

func TestCalendarEvents(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	admin := env.seedStaff(t, sch.ID, "admin@greenvalley.test", user.RoleSchoolAdmin)
	parent := env.seedParent(t, sch.ID, "+27821230050")

	create := func(t *testing.T, title string, startsAt time.Time) calendar.Event {
		rec := env.do(t, http.MethodPost, "/v1/events", env.accessToken(t, admin), calendar.NewEvent{
			Title:    title,
			StartsAt: startsAt,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ev calendar.Event
		decodeBody(t, rec.Body, &ev)
		return ev
	}

	t.Run("parents cannot create or delete events", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/events", env.accessToken(t, parent), calendar.NewEvent{
			Title:    "nope",
			StartsAt: time.Now().UTC(),
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("listing defaults to upcoming events", func(t *testing.T) {
		now := time.Now().UTC()
		create(t, "Past bake sale", now.Add(-48*time.Hour))
		upcoming := create(t, "Athletics trials", now.Add(48*time.Hour))

		rec := env.do(t, http.MethodGet, "/v1/events", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var evs []calendar.Event
		decodeBody(t, rec.Body, &evs)
		require.Len(t, evs, 1)
		assert.Equal(t, upcoming.ID, evs[0].ID)
		assert.Equal(t, calendar.TypeGeneral, evs[0].EventType)
	})

	t.Run("an explicit range includes past events", func(t *testing.T) {
		from := time.Now().UTC().Add(-72 * time.Hour).Format(time.RFC3339)
		rec := env.do(t, http.MethodGet, "/v1/events?from="+from, env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var evs []calendar.Event
		decodeBody(t, rec.Body, &evs)
		assert.Len(t, evs, 2)
	})

	t.Run("staff delete events", func(t *testing.T) {
		ev := create(t, "Cancelled rehearsal", time.Now().UTC().Add(24*time.Hour))

		rec := env.do(t, http.MethodDelete, "/v1/events/"+ev.ID, env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodDelete, "/v1/events/"+ev.ID, env.accessToken(t, admin), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/events/"+ev.ID, env.accessToken(t, admin), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
