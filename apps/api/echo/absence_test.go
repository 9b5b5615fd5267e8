package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/user"
)

func TestAbsenceReports(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	teacher := env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)
	parent := env.seedParent(t, sch.ID, "+27821230030")
	stranger := env.seedParent(t, sch.ID, "+27821230031")
	learner := env.seedLearner(t, sch.ID, "", parent)

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	file := func(t *testing.T) absence.Report {
		rec := env.do(t, http.MethodPost, "/v1/absences", env.accessToken(t, parent), absence.NewReport{
			LearnerID: learner.ID,
			Reason:    absence.ReasonIllness,
			Note:      "Flu, doctor's note attached.",
			DateFrom:  day,
			DateTo:    day.AddDate(0, 0, 2),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var rep absence.Report
		decodeBody(t, rec.Body, &rep)
		return rep
	}

	t.Run("a guardian files a report", func(t *testing.T) {
		rep := file(t)
		assert.Equal(t, absence.StatusPending, rep.Status)
		assert.Equal(t, parent.ID, rep.ReportedByID)
	})

	t.Run("only the learner's guardians may file", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/absences", env.accessToken(t, stranger), absence.NewReport{
			LearnerID: learner.ID,
			Reason:    absence.ReasonIllness,
			DateFrom:  day,
			DateTo:    day,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("an invalid reason is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/absences", env.accessToken(t, parent), absence.NewReport{
			LearnerID: learner.ID,
			Reason:    "overslept",
			DateFrom:  day,
			DateTo:    day,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("guardians only see their own reports", func(t *testing.T) {
		file(t)
		rec := env.do(t, http.MethodGet, "/v1/absences", env.accessToken(t, stranger), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var reps []absence.Report
		decodeBody(t, rec.Body, &reps)
		assert.Empty(t, reps)

		rec = env.do(t, http.MethodGet, "/v1/absences", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		reps = nil
		decodeBody(t, rec.Body, &reps)
		assert.NotEmpty(t, reps)
	})

	t.Run("staff review moves the status", func(t *testing.T) {
		rep := file(t)

		rec := env.do(t, http.MethodPost, "/v1/absences/"+rep.ID+"/review", env.accessToken(t, parent),
			absence.Review{Status: absence.StatusExcused})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/absences/"+rep.ID+"/review", env.accessToken(t, teacher),
			absence.Review{Status: absence.StatusExcused})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reviewed absence.Report
		decodeBody(t, rec.Body, &reviewed)
		assert.Equal(t, absence.StatusExcused, reviewed.Status)
		assert.Equal(t, teacher.ID, reviewed.ReviewedByID)
		assert.NotNil(t, reviewed.ReviewedAt)
	})
}
