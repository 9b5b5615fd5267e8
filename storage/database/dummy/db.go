// Package dummydb is an in-memory stand-in for the Postgres store, used in
// tests. Sessions emulate tenant row filtering: a scoped session only ever
// sees rows of its bound school, an unscoped one sees everything (matching
// what a storage administrator would).
package dummydb

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
)

type (
	DB struct {
		sync.RWMutex

		schools  map[string]*school.School
		learners map[string]*school.Learner
		// learnerClasses maps learner id to class id, classes map class id
		// to its grade and teacher.
		learnerClasses map[string]string
		classes        map[string]*classRec
		// guardians maps guardian id to the set of their learner ids.
		guardians map[string]map[string]bool

		users   map[string]*user.User
		devices map[string]*user.PushDevice

		channels      map[string]*announce.Channel
		announcements map[string]*announce.Announcement
		// reads maps announcement id to user id to read time.
		reads map[string]map[string]time.Time

		conversations map[string]*messaging.Conversation
		participants  map[string]map[string]*messaging.Participant
		messages      map[string][]messaging.Message

		absences         map[string]*absence.Report
		consentForms     map[string]*consent.Form
		consentResponses map[string]*consent.Response
		events           map[string]*calendar.Event
		audits           []audit.Entry
		notifications    []notify.Entry
	}

	classRec struct {
		SchoolID  string
		GradeID   string
		TeacherID string
	}
)

func Open() (*DB, error) {
	db := &DB{
		schools:          make(map[string]*school.School),
		learners:         make(map[string]*school.Learner),
		learnerClasses:   make(map[string]string),
		classes:          make(map[string]*classRec),
		guardians:        make(map[string]map[string]bool),
		users:            make(map[string]*user.User),
		devices:          make(map[string]*user.PushDevice),
		channels:         make(map[string]*announce.Channel),
		announcements:    make(map[string]*announce.Announcement),
		reads:            make(map[string]map[string]time.Time),
		conversations:    make(map[string]*messaging.Conversation),
		participants:     make(map[string]map[string]*messaging.Participant),
		messages:         make(map[string][]messaging.Message),
		absences:         make(map[string]*absence.Report),
		consentForms:     make(map[string]*consent.Form),
		consentResponses: make(map[string]*consent.Response),
		events:           make(map[string]*calendar.Event),
	}
	return db, nil
}

var _ core.SessionStore = (*DB)(nil)

func (db *DB) Begin(_ context.Context, tenantID string) (core.Session, error) {
	return &Session{db: db, tenantID: tenantID}, nil
}

// AddClass seeds class structure for tests; there is no service-level
// operation for it.
func (db *DB) AddClass(id, schoolID, gradeID, teacherID string) {
	db.Lock()
	defer db.Unlock()
	db.classes[id] = &classRec{SchoolID: schoolID, GradeID: gradeID, TeacherID: teacherID}
}

// AddLearner seeds a learner, optionally placed in a class.
func (db *DB) AddLearner(l school.Learner, classID string) {
	db.Lock()
	defer db.Unlock()
	db.learners[l.ID] = &l
	if classID != "" {
		db.learnerClasses[l.ID] = classID
	}
}

// LinkGuardian links a guardian user to a learner.
func (db *DB) LinkGuardian(guardianID, learnerID string) {
	db.Lock()
	defer db.Unlock()
	if db.guardians[guardianID] == nil {
		db.guardians[guardianID] = make(map[string]bool)
	}
	db.guardians[guardianID][learnerID] = true
}

// AddChannel seeds a channel for tests.
func (db *DB) AddChannel(ch announce.Channel) {
	db.Lock()
	defer db.Unlock()
	db.channels[ch.ID] = &ch
}

// Session satisfies core.Session without a real transaction: writes apply
// immediately and Commit/Rollback only flip the done flag.
type Session struct {
	db       *DB
	tenantID string
	done     bool
}

var _ core.Session = (*Session)(nil)

func (s *Session) TenantID() string { return s.tenantID }

func (s *Session) SetTenant(_ context.Context, tenantID string) error {
	s.tenantID = tenantID
	return nil
}

func (s *Session) Commit() error {
	s.done = true
	return nil
}

func (s *Session) Rollback() error {
	s.done = true
	return nil
}

// The raw SQL surface is never exercised by the dummy repositories.
func (s *Session) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("dummydb: raw SQL not supported")
}

func (s *Session) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("dummydb: raw SQL not supported")
}

func (s *Session) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// sees reports whether a session scoped to tenantID may see a row owned by
// schoolID.
func sees(sess core.Session, schoolID string) bool {
	return sess.TenantID() == "" || sess.TenantID() == schoolID
}
