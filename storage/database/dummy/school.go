package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(_ context.Context, sess core.Session, sch school.School) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sch.ID = uuid.NewString()
	repo.db.schools[sch.ID] = &sch
	return sch, nil
}

// The school table itself is not tenant-filtered; slugs resolve globally.
func (repo *schoolRepository) GetSchoolByID(_ context.Context, sess core.Session, id string) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sch, ok := repo.db.schools[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) GetSchoolBySlug(_ context.Context, sess core.Session, slug string) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, sch := range repo.db.schools {
		if sch.Slug == slug {
			return *sch, nil
		}
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) GetLearnerByID(_ context.Context, sess core.Session, id string) (school.Learner, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.learners[id]; ok && sees(sess, l.SchoolID) {
		return *l, nil
	}
	return school.Learner{}, school.ErrLearnerNotFound
}

func (repo *schoolRepository) IsGuardianOf(_ context.Context, sess core.Session, guardianID, learnerID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	l, ok := repo.db.learners[learnerID]
	if !ok || !sees(sess, l.SchoolID) {
		return false, nil
	}
	return repo.db.guardians[guardianID][learnerID], nil
}

// guardianIDs returns the distinct active guardians of the learners matched
// by keep.
func (repo *schoolRepository) guardianIDs(sess core.Session, keep func(l school.Learner, classID string) bool) []string {
	set := make(map[string]bool)
	for guardianID, learnerIDs := range repo.db.guardians {
		usr, ok := repo.db.users[guardianID]
		if !ok || !usr.IsActive {
			continue
		}
		for learnerID := range learnerIDs {
			l, ok := repo.db.learners[learnerID]
			if !ok || !l.IsActive || !sees(sess, l.SchoolID) {
				continue
			}
			if keep(*l, repo.db.learnerClasses[learnerID]) {
				set[guardianID] = true
				break
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (repo *schoolRepository) GuardianIDsForSchool(_ context.Context, sess core.Session, schoolID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.guardianIDs(sess, func(l school.Learner, _ string) bool {
		return l.SchoolID == schoolID
	}), nil
}

func (repo *schoolRepository) GuardianIDsForGrade(_ context.Context, sess core.Session, gradeID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.guardianIDs(sess, func(_ school.Learner, classID string) bool {
		cls, ok := repo.db.classes[classID]
		return ok && cls.GradeID == gradeID
	}), nil
}

func (repo *schoolRepository) GuardianIDsForClass(_ context.Context, sess core.Session, classID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.guardianIDs(sess, func(_ school.Learner, cid string) bool {
		return cid == classID && cid != ""
	}), nil
}
