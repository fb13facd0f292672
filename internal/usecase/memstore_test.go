package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fintherapy-backend/internal/domain"
)

// memState is a plain copy of every table the sync core touches
type memState struct {
	users      map[string]domain.User                 // by id
	sessions   map[string]domain.UserSession          // by external session id
	pending    map[string]domain.PendingTherapist     // by email
	therapists map[string]domain.Therapist            // by user id
	employers  map[string]domain.Employer             // by name
	groups     map[string]domain.SponsoredGroup       // by employer|name|type
	members    map[string]domain.SponsoredGroupMember // by user|group
	onboarding map[string]domain.UserOnboarding       // by user id
}

func newMemState() *memState {
	return &memState{
		users:      map[string]domain.User{},
		sessions:   map[string]domain.UserSession{},
		pending:    map[string]domain.PendingTherapist{},
		therapists: map[string]domain.Therapist{},
		employers:  map[string]domain.Employer{},
		groups:     map[string]domain.SponsoredGroup{},
		members:    map[string]domain.SponsoredGroupMember{},
		onboarding: map[string]domain.UserOnboarding{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		users:      cloneMap(s.users),
		sessions:   cloneMap(s.sessions),
		pending:    cloneMap(s.pending),
		therapists: cloneMap(s.therapists),
		employers:  cloneMap(s.employers),
		groups:     cloneMap(s.groups),
		members:    cloneMap(s.members),
		onboarding: cloneMap(s.onboarding),
	}
}

// memDB is a Transactor whose transactions are serialized and roll back by
// restoring a snapshot. Savepoints snapshot the same way.
type memDB struct {
	mu    sync.Mutex
	state *memState

	failOn map[string]error
	calls  map[string]int

	// beforeCreate runs inside CreateIfAbsent before the uniqueness check,
	// letting a test slip in a concurrent insert
	beforeCreate func(s *memState)

	commits   int
	rollbacks int
}

func newMemDB() *memDB {
	return &memDB{
		state:  newMemState(),
		failOn: map[string]error{},
		calls:  map[string]int{},
	}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.state.clone()
	if err := fn(ctx, &memTx{db: db}); err != nil {
		db.state = snapshot
		db.rollbacks++
		return err
	}
	db.commits++
	return nil
}

func (db *memDB) check(op string) error {
	db.calls[op]++
	if err, ok := db.failOn[op]; ok {
		return err
	}
	return nil
}

// snapshot returns a copy of the committed state for assertions
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

func (db *memDB) seedUser(u domain.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.users[u.ID] = u
}

func (db *memDB) seedPending(p domain.PendingTherapist) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.pending[domain.NormalizeEmail(p.Email)] = p
}

type memTx struct {
	db *memDB
}

func (t *memTx) Users() domain.UserRepository            { return &memUsers{db: t.db} }
func (t *memTx) Sessions() domain.SessionRepository      { return &memSessions{db: t.db} }
func (t *memTx) Therapists() domain.TherapistRepository  { return &memTherapists{db: t.db} }
func (t *memTx) Employers() domain.EmployerRepository    { return &memEmployers{db: t.db} }
func (t *memTx) Onboarding() domain.OnboardingRepository { return &memOnboarding{db: t.db} }

func (t *memTx) Savepoint(ctx context.Context, fn func(tx domain.Store) error) error {
	snapshot := t.db.state.clone()
	if err := fn(t); err != nil {
		t.db.state = snapshot
		return err
	}
	return nil
}

type memUsers struct{ db *memDB }

func (r *memUsers) find(match func(u domain.User) bool) (*domain.User, error) {
	for _, u := range r.db.state.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUsers) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	if err := r.db.check("Users.GetByExternalID"); err != nil {
		return nil, err
	}
	return r.find(func(u domain.User) bool { return u.ExternalID == externalID })
}

func (r *memUsers) LockByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	if err := r.db.check("Users.LockByExternalID"); err != nil {
		return nil, err
	}
	return r.find(func(u domain.User) bool { return u.ExternalID == externalID })
}

func (r *memUsers) LockByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := r.db.check("Users.LockByEmail"); err != nil {
		return nil, err
	}
	email = domain.NormalizeEmail(email)
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *memUsers) CreateIfAbsent(ctx context.Context, user *domain.User) (bool, error) {
	if err := r.db.check("Users.CreateIfAbsent"); err != nil {
		return false, err
	}
	if r.db.beforeCreate != nil {
		hook := r.db.beforeCreate
		r.db.beforeCreate = nil
		hook(r.db.state)
	}
	for _, u := range r.db.state.users {
		if u.ExternalID == user.ExternalID || u.Email == domain.NormalizeEmail(user.Email) {
			return false, nil
		}
	}
	user.Email = domain.NormalizeEmail(user.Email)
	user.UpdatedAt = user.CreatedAt
	r.db.state.users[user.ID] = *user
	return true, nil
}

func (r *memUsers) UpdateProfile(ctx context.Context, userID string, profile domain.UserProfile) (*domain.User, error) {
	if err := r.db.check("Users.UpdateProfile"); err != nil {
		return nil, err
	}
	u, ok := r.db.state.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Email = domain.NormalizeEmail(profile.Email)
	u.FirstName, u.LastName, u.ImageURL = profile.FirstName, profile.LastName, profile.ImageURL
	u.UpdatedAt = time.Now().UTC()
	r.db.state.users[userID] = u
	return &u, nil
}

func (r *memUsers) Relink(ctx context.Context, userID, externalID string, profile domain.UserProfile) (*domain.User, error) {
	if err := r.db.check("Users.Relink"); err != nil {
		return nil, err
	}
	u, ok := r.db.state.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.ExternalID = externalID
	u.Email = domain.NormalizeEmail(profile.Email)
	u.FirstName, u.LastName, u.ImageURL = profile.FirstName, profile.LastName, profile.ImageURL
	u.UpdatedAt = time.Now().UTC()
	r.db.state.users[userID] = u
	return &u, nil
}

func (r *memUsers) SetEmployer(ctx context.Context, userID, employerID string) error {
	if err := r.db.check("Users.SetEmployer"); err != nil {
		return err
	}
	u, ok := r.db.state.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	id := employerID
	u.EmployerID = &id
	r.db.state.users[userID] = u
	return nil
}

func (r *memUsers) Deactivate(ctx context.Context, externalID string) (int64, error) {
	if err := r.db.check("Users.Deactivate"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range r.db.state.users {
		if u.ExternalID == externalID {
			u.IsActive = false
			r.db.state.users[id] = u
			n++
		}
	}
	return n, nil
}

func (r *memUsers) TouchActivity(ctx context.Context, externalID string, at time.Time) (int64, error) {
	if err := r.db.check("Users.TouchActivity"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range r.db.state.users {
		if u.ExternalID == externalID {
			ts := at
			u.LastActiveAt = &ts
			r.db.state.users[id] = u
			n++
		}
	}
	return n, nil
}

type memSessions struct{ db *memDB }

func (r *memSessions) GetByExternalID(ctx context.Context, externalSessionID string) (*domain.UserSession, error) {
	if err := r.db.check("Sessions.GetByExternalID"); err != nil {
		return nil, err
	}
	s, ok := r.db.state.sessions[externalSessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *memSessions) Insert(ctx context.Context, s *domain.UserSession) (bool, error) {
	if err := r.db.check("Sessions.Insert"); err != nil {
		return false, err
	}
	if _, exists := r.db.state.sessions[s.ExternalSessionID]; exists {
		return false, nil
	}
	r.db.state.sessions[s.ExternalSessionID] = *s
	return true, nil
}

func (r *memSessions) MarkEnded(ctx context.Context, externalSessionID string, status domain.SessionStatus, endedAt time.Time) (int64, error) {
	if err := r.db.check("Sessions.MarkEnded"); err != nil {
		return 0, err
	}
	s, ok := r.db.state.sessions[externalSessionID]
	if !ok {
		return 0, nil
	}
	s.Status = status
	s.EndedAt = &endedAt
	r.db.state.sessions[externalSessionID] = s
	return 1, nil
}

type memTherapists struct{ db *memDB }

func (r *memTherapists) GetPendingByEmail(ctx context.Context, email string) (*domain.PendingTherapist, error) {
	if err := r.db.check("Therapists.GetPendingByEmail"); err != nil {
		return nil, err
	}
	p, ok := r.db.state.pending[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memTherapists) DeletePending(ctx context.Context, id string) error {
	if err := r.db.check("Therapists.DeletePending"); err != nil {
		return err
	}
	for email, p := range r.db.state.pending {
		if p.ID == id {
			delete(r.db.state.pending, email)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memTherapists) GetByUserID(ctx context.Context, userID string) (*domain.Therapist, error) {
	if err := r.db.check("Therapists.GetByUserID"); err != nil {
		return nil, err
	}
	t, ok := r.db.state.therapists[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *memTherapists) Create(ctx context.Context, t *domain.Therapist) error {
	if err := r.db.check("Therapists.Create"); err != nil {
		return err
	}
	r.db.state.therapists[t.UserID] = *t
	return nil
}

type memEmployers struct{ db *memDB }

func groupKey(employerID, name, groupType string) string {
	return employerID + "|" + name + "|" + groupType
}

func (r *memEmployers) GetEmployerByName(ctx context.Context, name string) (*domain.Employer, error) {
	if err := r.db.check("Employers.GetEmployerByName"); err != nil {
		return nil, err
	}
	e, ok := r.db.state.employers[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *memEmployers) CreateEmployer(ctx context.Context, e *domain.Employer) (bool, error) {
	if err := r.db.check("Employers.CreateEmployer"); err != nil {
		return false, err
	}
	if _, exists := r.db.state.employers[e.Name]; exists {
		return false, nil
	}
	r.db.state.employers[e.Name] = *e
	return true, nil
}

func (r *memEmployers) GetGroup(ctx context.Context, employerID, name, groupType string) (*domain.SponsoredGroup, error) {
	if err := r.db.check("Employers.GetGroup"); err != nil {
		return nil, err
	}
	g, ok := r.db.state.groups[groupKey(employerID, name, groupType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

func (r *memEmployers) CreateGroup(ctx context.Context, g *domain.SponsoredGroup) (bool, error) {
	if err := r.db.check("Employers.CreateGroup"); err != nil {
		return false, err
	}
	key := groupKey(g.EmployerID, g.Name, g.GroupType)
	if _, exists := r.db.state.groups[key]; exists {
		return false, nil
	}
	r.db.state.groups[key] = *g
	return true, nil
}

func (r *memEmployers) GetMembership(ctx context.Context, userID, groupID string) (*domain.SponsoredGroupMember, error) {
	if err := r.db.check("Employers.GetMembership"); err != nil {
		return nil, err
	}
	m, ok := r.db.state.members[userID+"|"+groupID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (r *memEmployers) CreateMembership(ctx context.Context, m *domain.SponsoredGroupMember) (bool, error) {
	if err := r.db.check("Employers.CreateMembership"); err != nil {
		return false, err
	}
	key := m.UserID + "|" + m.GroupID
	if _, exists := r.db.state.members[key]; exists {
		return false, nil
	}
	r.db.state.members[key] = *m
	return true, nil
}

type memOnboarding struct{ db *memDB }

func (r *memOnboarding) Upsert(ctx context.Context, userID string, answers json.RawMessage) (*domain.UserOnboarding, error) {
	if err := r.db.check("Onboarding.Upsert"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o, ok := r.db.state.onboarding[userID]
	if !ok {
		o = domain.UserOnboarding{UserID: userID, CreatedAt: now}
	}
	o.Answers = answers
	o.Version++
	o.UpdatedAt = now
	r.db.state.onboarding[userID] = o
	return &o, nil
}
