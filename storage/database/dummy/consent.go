package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/consent"
)

type consentRepository struct {
	db *DB
}

var _ consent.Repository = (*consentRepository)(nil) // interface compliance check

func NewConsentRepository(db *DB) consent.Repository {
	return &consentRepository{db: db}
}

func (repo *consentRepository) responseCount(formID string) int {
	var count int
	for _, resp := range repo.db.consentResponses {
		if resp.FormID == formID {
			count++
		}
	}
	return count
}

func (repo *consentRepository) CreateForm(_ context.Context, sess core.Session, form consent.Form) (consent.Form, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	form.ID = uuid.NewString()
	repo.db.consentForms[form.ID] = &form
	return form, nil
}

func (repo *consentRepository) GetFormByID(_ context.Context, sess core.Session, id string) (consent.Form, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if form, ok := repo.db.consentForms[id]; ok && sees(sess, form.SchoolID) {
		f := *form
		f.ResponseCount = repo.responseCount(id)
		return f, nil
	}
	return consent.Form{}, consent.ErrNotFound
}

func (repo *consentRepository) ListActiveForms(_ context.Context, sess core.Session) ([]consent.Form, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var forms []consent.Form
	for _, form := range repo.db.consentForms {
		if !form.IsActive || !sees(sess, form.SchoolID) {
			continue
		}
		f := *form
		f.ResponseCount = repo.responseCount(f.ID)
		forms = append(forms, f)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].CreatedAt.After(forms[j].CreatedAt) })
	return forms, nil
}

func (repo *consentRepository) HasResponse(_ context.Context, sess core.Session, formID, learnerID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, resp := range repo.db.consentResponses {
		if resp.FormID == formID && resp.LearnerID == learnerID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *consentRepository) CreateResponse(_ context.Context, sess core.Session, resp consent.Response) (consent.Response, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	resp.ID = uuid.NewString()
	repo.db.consentResponses[resp.ID] = &resp
	return resp, nil
}

func (repo *consentRepository) ListResponses(_ context.Context, sess core.Session, formID string) ([]consent.Response, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var resps []consent.Response
	for _, resp := range repo.db.consentResponses {
		if resp.FormID != formID {
			continue
		}
		r := *resp
		if l, ok := repo.db.learners[r.LearnerID]; ok {
			r.LearnerFirstName = l.FirstName
			r.LearnerLastName = l.LastName
		}
		resps = append(resps, r)
	}
	sort.Slice(resps, func(i, j int) bool { return resps[i].RespondedAt.After(resps[j].RespondedAt) })
	return resps, nil
}
