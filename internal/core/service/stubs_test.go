package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Registration repository
// ---------------------------------------------------------------------------

type stubRegistrationRepo struct {
	mu        sync.Mutex
	byTicket  map[string]*domain.Registration
	order     []string
	scans     map[string][]*domain.Scan
	createErr error
	nextScan  int

	// findKeyErr fails idempotency lookups; keyMisses forces the next lookups
	// to miss so tests can reach the insert race.
	findKeyErr error
	keyMisses  int
}

func newStubRegistrationRepo() *stubRegistrationRepo {
	return &stubRegistrationRepo{
		byTicket: make(map[string]*domain.Registration),
		scans:    make(map[string][]*domain.Scan),
	}
}

func cloneRegistration(r *domain.Registration) *domain.Registration {
	if r == nil {
		return nil
	}
	c := *r
	if r.Demographics != nil {
		c.Demographics = make(map[string]string, len(r.Demographics))
		for k, v := range r.Demographics {
			c.Demographics[k] = v
		}
	}
	if r.ConfirmedAt != nil {
		at := *r.ConfirmedAt
		c.ConfirmedAt = &at
	}
	return &c
}

func (r *stubRegistrationRepo) Create(_ context.Context, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.byTicket[reg.TicketNumber]; ok {
		return domain.ErrDuplicateTicket
	}
	for _, existing := range r.byTicket {
		if reg.EmailHash != "" && existing.EmailHash == reg.EmailHash {
			return domain.ErrDuplicateEmail
		}
		if reg.IdempotencyKey != "" && existing.IdempotencyKey == reg.IdempotencyKey {
			return domain.ErrIdempotencyKeyReused
		}
	}
	reg.ID = "reg-" + strconv.Itoa(len(r.order)+1)
	r.byTicket[reg.TicketNumber] = cloneRegistration(reg)
	r.order = append(r.order, reg.TicketNumber)
	return nil
}

func (r *stubRegistrationRepo) FindByTicketNumber(_ context.Context, ticket string) (*domain.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byTicket[ticket]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	return cloneRegistration(reg), nil
}

func (r *stubRegistrationRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findKeyErr != nil {
		return nil, r.findKeyErr
	}
	if r.keyMisses > 0 {
		r.keyMisses--
		return nil, domain.ErrRegistrationNotFound
	}

	for _, reg := range r.byTicket {
		if reg.IdempotencyKey == key {
			return cloneRegistration(reg), nil
		}
	}
	return nil, domain.ErrRegistrationNotFound
}

func (r *stubRegistrationRepo) ExistsByPersonHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.byTicket {
		if reg.PersonHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubRegistrationRepo) ExistsByEmailHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.byTicket {
		if reg.EmailHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubRegistrationRepo) List(_ context.Context, f ports.ListRegistrationsFilter) ([]*domain.Registration, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.Registration
	for _, ticket := range r.order {
		reg := r.byTicket[ticket]
		if f.RegistrationType != "" && string(reg.RegistrationType) != f.RegistrationType {
			continue
		}
		if f.BadgeStatus != "" && string(reg.BadgeStatus) != f.BadgeStatus {
			continue
		}
		if f.Confirmed != nil && reg.Confirmed != *f.Confirmed {
			continue
		}
		matched = append(matched, cloneRegistration(reg))
	}

	start := (f.Page - 1) * f.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], int64(len(matched)), nil
}

func (r *stubRegistrationRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byTicket)), nil
}

func (r *stubRegistrationRepo) SetAssetPath(_ context.Context, ticket, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byTicket[ticket]
	if !ok {
		return domain.ErrRegistrationNotFound
	}
	reg.QRAssetPath = path
	return nil
}

func (r *stubRegistrationRepo) Transition(_ context.Context, ticket string, fn ports.TransitionFunc) (*domain.Registration, *domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byTicket[ticket]
	if !ok {
		return nil, nil, domain.ErrRegistrationNotFound
	}
	working := cloneRegistration(current)
	scan, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	working.Version++
	r.byTicket[ticket] = working
	if scan != nil {
		r.nextScan++
		scan.ID = "scan-" + strconv.Itoa(r.nextScan)
		r.scans[ticket] = append(r.scans[ticket], scan)
	}
	return cloneRegistration(working), scan, nil
}

func (r *stubRegistrationRepo) Scans(_ context.Context, ticket string) ([]*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Scan(nil), r.scans[ticket]...), nil
}

func (r *stubRegistrationRepo) scanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.scans {
		n += len(s)
	}
	return n
}

// ---------------------------------------------------------------------------
// Reference data and gates
// ---------------------------------------------------------------------------

type stubStatusRepo struct {
	rows map[string]domain.PrintStatus
}

func newStubStatusRepo() *stubStatusRepo {
	r := &stubStatusRepo{rows: make(map[string]domain.PrintStatus)}
	for _, st := range domain.DefaultPrintStatuses() {
		_ = r.Upsert(context.Background(), st)
	}
	return r
}

func (r *stubStatusRepo) Find(_ context.Context, t domain.PrintStatusType, name domain.PrintStatusName) (*domain.PrintStatus, error) {
	st, ok := r.rows[string(t)+"/"+string(name)]
	if !ok {
		return nil, domain.ErrPrintStatusMissing
	}
	return &st, nil
}

func (r *stubStatusRepo) Upsert(_ context.Context, st domain.PrintStatus) error {
	r.rows[string(st.Type)+"/"+string(st.Name)] = st
	return nil
}

type stubModeRepo struct {
	rows      []*domain.ServerModeRecord
	appendErr error
}

func modeRepoWith(mode domain.ServerMode) *stubModeRepo {
	return &stubModeRepo{rows: []*domain.ServerModeRecord{{ID: "1", Mode: mode, ActivatedBy: "seed"}}}
}

func (r *stubModeRepo) Latest(_ context.Context) (*domain.ServerModeRecord, error) {
	if len(r.rows) == 0 {
		return nil, domain.ErrServerModeMissing
	}
	rec := *r.rows[len(r.rows)-1]
	return &rec, nil
}

func (r *stubModeRepo) Append(_ context.Context, rec *domain.ServerModeRecord) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	rec.ID = strconv.Itoa(len(r.rows) + 1)
	r.rows = append(r.rows, rec)
	return nil
}

func (r *stubModeRepo) History(_ context.Context, page, limit int) ([]*domain.ServerModeRecord, int64, error) {
	newest := make([]*domain.ServerModeRecord, 0, len(r.rows))
	for i := len(r.rows) - 1; i >= 0; i-- {
		newest = append(newest, r.rows[i])
	}
	start := (page - 1) * limit
	if start > len(newest) {
		start = len(newest)
	}
	end := start + limit
	if end > len(newest) {
		end = len(newest)
	}
	return newest[start:end], int64(len(newest)), nil
}

// ---------------------------------------------------------------------------
// Security collaborators
// ---------------------------------------------------------------------------

// stubHasher is deterministic and readable; it is not a real one-way hash.
type stubHasher struct{}

func (stubHasher) Hash(domain, normalized string) string {
	return domain + ":" + normalized
}

type stubLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	err    error
	denied bool
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[string]bool)}
}

func (l *stubLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied || l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

// ---------------------------------------------------------------------------
// Assets
// ---------------------------------------------------------------------------

type stubAssets struct {
	mu          sync.Mutex
	generateErr error
	enqueueErr  error
	generated   []string
	enqueued    []string
}

func (a *stubAssets) Generate(_ context.Context, ticket string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generateErr != nil {
		return "", a.generateErr
	}
	a.generated = append(a.generated, ticket)
	return "qr/" + ticket[:2] + "/" + ticket + ".png", nil
}

func (a *stubAssets) Enqueue(_ context.Context, ticket string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enqueueErr != nil {
		return a.enqueueErr
	}
	a.enqueued = append(a.enqueued, ticket)
	return nil
}

// stubEncoder returns the content itself as the "image".
type stubEncoder struct {
	err error
}

func (e stubEncoder) Encode(content string) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []byte("PNG:" + content), nil
}

type stubStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newStubStore() *stubStore {
	return &stubStore{files: make(map[string][]byte)}
}

func (s *stubStore) Path(ticket string) string {
	return "qr/" + ticket[:2] + "/" + ticket + ".png"
}

func (s *stubStore) Put(_ context.Context, ticket string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	p := s.Path(ticket)
	s.files[p] = append([]byte(nil), data...)
	return p, nil
}

func (s *stubStore) Open(_ context.Context, ticket string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[s.Path(ticket)]
	if !ok {
		return nil, domain.ErrAssetPending
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

type stubQueue struct {
	jobs []ports.AssetJob
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job ports.AssetJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// ---------------------------------------------------------------------------
// Auth repository
// ---------------------------------------------------------------------------

type stubAuthRepo struct {
	users   map[string]*domain.User
	roles   map[string]domain.Role
	findErr error
}

func newStubAuthRepo() *stubAuthRepo {
	r := &stubAuthRepo{
		users: make(map[string]*domain.User),
		roles: make(map[string]domain.Role),
	}
	for _, role := range domain.DefaultRoles() {
		r.roles[role.Name] = role
	}
	return r
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubAuthRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubAuthRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, exists := r.users[user.Username]; exists {
		return nil, domain.ErrUserExists
	}
	copy := cloneUser(user)
	if copy.ID == "" {
		copy.ID = user.Username
	}
	r.users[copy.Username] = cloneUser(copy)
	return cloneUser(copy), nil
}

func (r *stubAuthRepo) SetDisabled(_ context.Context, username string, disabled bool) error {
	u, ok := r.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Disabled = disabled
	return nil
}

func (r *stubAuthRepo) Delete(_ context.Context, username string) error {
	if _, ok := r.users[username]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, username)
	return nil
}

func (r *stubAuthRepo) FindRole(_ context.Context, name string) (*domain.Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return &role, nil
}

func (r *stubAuthRepo) UpsertRole(_ context.Context, role domain.Role) error {
	r.roles[role.Name] = role
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var errBoom = errors.New("boom")

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
