package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/user"
)

func TestConsentForms(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230040")
	learner := env.seedLearner(t, sch.ID, "", parent)

	createForm := func(t *testing.T, deadline *time.Time) consent.Form {
		rec := env.do(t, http.MethodPost, "/v1/consent-forms", env.accessToken(t, teacher), consent.NewForm{
			Title:       "Zoo excursion",
			Description: "Permission for the grade 3 outing.",
			Deadline:    deadline,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var form consent.Form
		decodeBody(t, rec.Body, &form)
		return form
	}

	t.Run("parents cannot create forms", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/consent-forms", env.accessToken(t, parent), consent.NewForm{Title: "nope"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("one response per form and learner", func(t *testing.T) {
		form := createForm(t, nil)
		token := env.accessToken(t, parent)

		rec := env.do(t, http.MethodPost, "/v1/consent-forms/"+form.ID+"/responses", token, consent.NewResponse{
			LearnerID: learner.ID,
			Granted:   true,
			Comment:   "Have fun!",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp consent.Response
		decodeBody(t, rec.Body, &resp)
		assert.True(t, resp.Granted)
		assert.Equal(t, parent.ID, resp.GuardianID)

		// the second answer conflicts instead of overwriting the first
		rec = env.do(t, http.MethodPost, "/v1/consent-forms/"+form.ID+"/responses", token, consent.NewResponse{
			LearnerID: learner.ID,
			Granted:   false,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("only the learner's guardian may respond", func(t *testing.T) {
		form := createForm(t, nil)
		stranger := env.seedParent(t, sch.ID, "+27821230041")
		rec := env.do(t, http.MethodPost, "/v1/consent-forms/"+form.ID+"/responses", env.accessToken(t, stranger),
			consent.NewResponse{LearnerID: learner.ID, Granted: true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("a past deadline closes the form", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		form := createForm(t, &past)
		rec := env.do(t, http.MethodPost, "/v1/consent-forms/"+form.ID+"/responses", env.accessToken(t, parent),
			consent.NewResponse{LearnerID: learner.ID, Granted: true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("staff list responses with counts", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/consent-forms", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var forms []consent.Form
		decodeBody(t, rec.Body, &forms)
		require.NotEmpty(t, forms)

		var answered consent.Form
		for _, f := range forms {
			if f.ResponseCount > 0 {
				answered = f
			}
		}
		require.NotEmpty(t, answered.ID)

		rec = env.do(t, http.MethodGet, "/v1/consent-forms/"+answered.ID+"/responses", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/consent-forms/"+answered.ID+"/responses", env.accessToken(t, teacher), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resps []consent.Response
		decodeBody(t, rec.Body, &resps)
		require.Len(t, resps, 1)
		assert.Equal(t, learner.ID, resps[0].LearnerID)
	})
}
