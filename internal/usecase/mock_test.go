//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/i18n"
	"khm-membership/internal/usecase"
)

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	mu    sync.Mutex
	Locks []string

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

func (m *MockTxManager) AdvisoryLock(ctx context.Context, tx repository.Tx, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locks = append(m.Locks, key)
	return nil
}

// ---- Mock IdempotencyStore ----

type MockIdempotencyStore struct {
	mu        sync.Mutex
	processed map[string]map[string]any
	MarkCalls int

	HasProcessedFunc func(ctx context.Context, tx repository.Tx, eventID string) (bool, error)
}

var _ repository.IdempotencyStore = (*MockIdempotencyStore)(nil)

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{processed: map[string]map[string]any{}}
}

func (m *MockIdempotencyStore) HasProcessed(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	if m.HasProcessedFunc != nil {
		return m.HasProcessedFunc(ctx, tx, eventID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, tx repository.Tx, eventID, gateway string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkCalls++
	if _, ok := m.processed[eventID]; !ok {
		m.processed[eventID] = metadata
	}
	return nil
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*model.Order

	CreateFunc func(ctx context.Context, tx repository.Tx, o *model.Order) error
	UpdateFunc func(ctx context.Context, tx repository.Tx, id int64, c model.OrderChanges) error
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: map[int64]*model.Order{}}
}

// Seed stores a copy of o, assigning an id when it has none.
func (m *MockOrderRepo) Seed(o *model.Order) *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
	} else if o.ID > m.nextID {
		m.nextID = o.ID
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	cp := *o
	m.orders[o.ID] = &cp
	return o
}

// All returns copies of every stored order ordered by id.
func (m *MockOrderRepo) All() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.Code == o.Code {
			return domain.ErrAlreadyExists
		}
	}
	m.nextID++
	o.ID = m.nextID
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	if o.GatewayEnvironment == "" {
		o.GatewayEnvironment = model.GatewayEnvProduction
	}
	o.Timestamp = time.Now()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) Update(ctx context.Context, tx repository.Tx, id int64, c model.OrderChanges) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, id, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.ApplyTo(o)
	return nil
}

func (m *MockOrderRepo) find(match func(o *model.Order) bool) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Order
	for _, o := range m.orders {
		if match(o) && (best == nil || o.ID > best.ID) {
			best = o
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return o.ID == id })
}

func (m *MockOrderRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return o.Code == code })
}

func (m *MockOrderRepo) FindByPaymentTransactionID(ctx context.Context, tx repository.Tx, txnID string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return txnID != "" && o.PaymentTransactionID == txnID })
}

func (m *MockOrderRepo) FindLastBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return subscriptionID != "" && o.SubscriptionTransactionID == subscriptionID })
}

func (m *MockOrderRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64, f model.OrderFilter) ([]*model.Order, error) {
	var out []*model.Order
	for _, o := range m.All() {
		if o.UserID != userID {
			continue
		}
		if f.MembershipID != 0 && o.MembershipID != f.MembershipID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Gateway != "" && o.Gateway != f.Gateway {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MockOrderRepo) CodeExists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	_, err := m.FindByCode(ctx, tx, code)
	return err == nil, nil
}

func (m *MockOrderRepo) GetWithRelations(ctx context.Context, tx repository.Tx, id int64) (*model.OrderWithRelations, error) {
	o, err := m.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return &model.OrderWithRelations{Order: *o}, nil
}

func (m *MockOrderRepo) GetManyWithRelations(ctx context.Context, tx repository.Tx, ids []int64) ([]*model.OrderWithRelations, error) {
	var out []*model.OrderWithRelations
	for _, id := range ids {
		if o, err := m.GetWithRelations(ctx, tx, id); err == nil {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) Paginate(ctx context.Context, tx repository.Tx, q model.OrderQuery) (*model.OrderPage, error) {
	page := &model.OrderPage{}
	for _, o := range m.All() {
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		page.Items = append(page.Items, &model.OrderWithRelations{Order: *o})
	}
	page.Total = len(page.Items)
	return page, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus, notes string) error {
	return m.Update(ctx, tx, id, model.OrderChanges{Status: &status, Notes: &notes})
}

func (m *MockOrderRepo) UpdateNotes(ctx context.Context, tx repository.Tx, id int64, notes string) error {
	return m.Update(ctx, tx, id, model.OrderChanges{Notes: &notes})
}

func (m *MockOrderRepo) RecordRefund(ctx context.Context, tx repository.Tx, id int64, amount decimal.Decimal, reason string, refundedAt time.Time) error {
	status := model.OrderStatusRefunded
	return m.Update(ctx, tx, id, model.OrderChanges{Status: &status, RefundAmount: &amount, RefundReason: &reason, RefundedAt: &refundedAt})
}

func (m *MockOrderRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

// ---- Mock MembershipRepository ----

type membershipKey struct{ user, level int64 }

type MockMembershipRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[membershipKey]*model.Membership
	Calls  []string

	FindExpiredFunc  func(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Membership, error)
	FindExpiringFunc func(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Membership, error)
}

var _ repository.MembershipRepository = (*MockMembershipRepo)(nil)

func NewMockMembershipRepo() *MockMembershipRepo {
	return &MockMembershipRepo{rows: map[membershipKey]*model.Membership{}}
}

func (m *MockMembershipRepo) Seed(ms *model.Membership) *model.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ms.ID = m.nextID
	if ms.Status == "" {
		ms.Status = model.MembershipStatusActive
	}
	cp := *ms
	m.rows[membershipKey{ms.UserID, ms.MembershipID}] = &cp
	return ms
}

// Get returns a copy of the (user, level) row or nil.
func (m *MockMembershipRepo) Get(userID, levelID int64) *model.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[membershipKey{userID, levelID}]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (m *MockMembershipRepo) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockMembershipRepo) Assign(ctx context.Context, tx repository.Tx, userID, levelID int64, opts model.AssignOptions) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("assign:%d:%d", userID, levelID))
	k := membershipKey{userID, levelID}
	r, ok := m.rows[k]
	if !ok {
		m.nextID++
		r = &model.Membership{ID: m.nextID, UserID: userID, MembershipID: levelID, StartDate: time.Now()}
		m.rows[k] = r
	}
	r.Status = opts.Status
	if r.Status == "" {
		r.Status = model.MembershipStatusActive
	}
	r.StatusReason = ""
	if opts.EndDate != nil {
		r.EndDate = opts.EndDate
	}
	cp := *r
	return &cp, nil
}

func (m *MockMembershipRepo) Find(ctx context.Context, tx repository.Tx, userID, levelID int64) (*model.Membership, error) {
	if r := m.Get(userID, levelID); r != nil {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockMembershipRepo) filter(match func(r *model.Membership) bool) []*model.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Membership
	for _, r := range m.rows {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockMembershipRepo) FindActive(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Membership, error) {
	return m.filter(func(r *model.Membership) bool {
		return r.UserID == userID && r.Status == model.MembershipStatusActive
	}), nil
}

func (m *MockMembershipRepo) FindByLevel(ctx context.Context, tx repository.Tx, levelID int64, status model.MembershipStatus) ([]*model.Membership, error) {
	return m.filter(func(r *model.Membership) bool {
		return r.MembershipID == levelID && (status == "" || r.Status == status)
	}), nil
}

func (m *MockMembershipRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Membership, error) {
	if m.FindExpiredFunc != nil {
		return m.FindExpiredFunc(ctx, tx, now)
	}
	return m.filter(func(r *model.Membership) bool {
		return r.Status == model.MembershipStatusActive && r.EndDate != nil && !r.EndDate.After(now)
	}), nil
}

func (m *MockMembershipRepo) FindExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Membership, error) {
	if m.FindExpiringFunc != nil {
		return m.FindExpiringFunc(ctx, tx, from, to)
	}
	return m.filter(func(r *model.Membership) bool {
		return r.Status == model.MembershipStatusActive && r.EndDate != nil &&
			!r.EndDate.Before(from) && !r.EndDate.After(to)
	}), nil
}

func (m *MockMembershipRepo) HasAccess(ctx context.Context, tx repository.Tx, userID, levelID int64) (bool, error) {
	r := m.Get(userID, levelID)
	return r != nil && r.Status == model.MembershipStatusActive, nil
}

func (m *MockMembershipRepo) mutate(call string, userID, levelID int64, fn func(r *model.Membership)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[membershipKey{userID, levelID}]
	if !ok {
		return domain.ErrNotFound
	}
	m.record(fmt.Sprintf("%s:%d:%d", call, userID, levelID))
	fn(r)
	return nil
}

func (m *MockMembershipRepo) SetStatus(ctx context.Context, tx repository.Tx, userID, levelID int64, status model.MembershipStatus, reason string) error {
	return m.mutate("status", userID, levelID, func(r *model.Membership) {
		r.Status, r.StatusReason = status, reason
	})
}

func (m *MockMembershipRepo) MarkPastDue(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return m.mutate("past_due", userID, levelID, func(r *model.Membership) {
		r.Status, r.StatusReason = model.MembershipStatusPastDue, reason
	})
}

func (m *MockMembershipRepo) Cancel(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return m.mutate("cancel", userID, levelID, func(r *model.Membership) {
		now := time.Now()
		r.Status, r.StatusReason, r.EndDate = model.MembershipStatusCancelled, reason, &now
	})
}

func (m *MockMembershipRepo) Expire(ctx context.Context, tx repository.Tx, userID, levelID int64) error {
	return m.mutate("expire", userID, levelID, func(r *model.Membership) {
		r.Status, r.StatusReason = model.MembershipStatusExpired, "Membership expired"
	})
}

func (m *MockMembershipRepo) Pause(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return m.mutate("pause", userID, levelID, func(r *model.Membership) {
		r.Status, r.StatusReason = model.MembershipStatusPaused, reason
	})
}

func (m *MockMembershipRepo) Resume(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return m.mutate("resume", userID, levelID, func(r *model.Membership) {
		r.Status, r.StatusReason = model.MembershipStatusActive, reason
	})
}

func (m *MockMembershipRepo) UpdateEndDate(ctx context.Context, tx repository.Tx, userID, levelID int64, endDate *time.Time) error {
	return m.mutate("enddate", userID, levelID, func(r *model.Membership) { r.EndDate = endDate })
}

func (m *MockMembershipRepo) UpdateBillingProfile(ctx context.Context, tx repository.Tx, userID, levelID int64, p model.BillingProfile) error {
	return m.mutate("billing", userID, levelID, func(r *model.Membership) {
		if p.BillingAmount != nil {
			r.BillingAmount = *p.BillingAmount
		}
		if p.CycleNumber != nil {
			r.CycleNumber = *p.CycleNumber
		}
		if p.CyclePeriod != nil {
			r.CyclePeriod = *p.CyclePeriod
		}
	})
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	r := &MockUserRepo{users: map[int64]*model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *MockUserRepo) find(match func(u *model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *MockUserRepo) FindByLogin(ctx context.Context, tx repository.Tx, login string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Login == login })
}

func (r *MockUserRepo) FindByStripeCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.StripeCustomerID != "" && u.StripeCustomerID == customerID })
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		u.ID = int64(len(r.users) + 1)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// ---- Mock LevelRepository ----

type MockLevelRepo struct {
	mu     sync.Mutex
	levels map[int64]*model.Level
}

var _ repository.LevelRepository = (*MockLevelRepo)(nil)

func NewMockLevelRepo(levels ...*model.Level) *MockLevelRepo {
	r := &MockLevelRepo{levels: map[int64]*model.Level{}}
	for _, l := range levels {
		r.levels[l.ID] = l
	}
	return r
}

func (r *MockLevelRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.levels[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockLevelRepo) FindByStripePlanID(ctx context.Context, tx repository.Tx, planID string) (*model.Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.levels {
		if l.StripePlanID != "" && l.StripePlanID == planID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockLevelRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Level
	for _, l := range r.levels {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockLevelRepo) Save(ctx context.Context, tx repository.Tx, l *model.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == 0 {
		l.ID = int64(len(r.levels) + 1)
	}
	cp := *l
	r.levels[l.ID] = &cp
	return nil
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{entries: make(map[string]struct{})}
}

func (r *MockNotificationLogRepo) makeKey(membershipID int64, kind string) string {
	return fmt.Sprintf("%d:%s", membershipID, kind)
}

func (r *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, membershipID, userID int64, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.makeKey(membershipID, kind)] = struct{}{}
	return nil
}

func (r *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, membershipID int64, kind string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[r.makeKey(membershipID, kind)]
	return ok, nil
}

// ---- Mock EmailLogRepository ----

type MockEmailLogRepo struct {
	mu     sync.Mutex
	nextID int64
	logs   map[int64]*model.EmailLog
}

var _ repository.EmailLogRepository = (*MockEmailLogRepo)(nil)

func NewMockEmailLogRepo() *MockEmailLogRepo {
	return &MockEmailLogRepo{logs: map[int64]*model.EmailLog{}}
}

func (r *MockEmailLogRepo) Get(id int64) *model.EmailLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[id]; ok {
		cp := *l
		return &cp
	}
	return nil
}

func (r *MockEmailLogRepo) Create(ctx context.Context, tx repository.Tx, l *model.EmailLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	l.CreatedAt = time.Now()
	cp := *l
	r.logs[l.ID] = &cp
	return l.ID, nil
}

func (r *MockEmailLogRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.EmailStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status, l.ErrorMessage = status, errMsg
	return nil
}

func (r *MockEmailLogRepo) Stats(ctx context.Context, tx repository.Tx) (model.EmailStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s model.EmailStats
	for _, l := range r.logs {
		switch l.Status {
		case model.EmailStatusSent:
			s.Sent++
		case model.EmailStatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
		s.Total++
	}
	return s, nil
}

func (r *MockEmailLogRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, l := range r.logs {
		done := l.Status == model.EmailStatusSent || l.Status == model.EmailStatusFailed
		if done && l.CreatedAt.Before(cutoff) {
			delete(r.logs, id)
			n++
		}
	}
	return n, nil
}

// ---- Mock EmailQueueRepository ----

type MockEmailQueueRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.QueuedEmail
}

var _ repository.EmailQueueRepository = (*MockEmailQueueRepo)(nil)

func NewMockEmailQueueRepo() *MockEmailQueueRepo {
	return &MockEmailQueueRepo{rows: map[int64]*model.QueuedEmail{}}
}

func (r *MockEmailQueueRepo) Get(id int64) *model.QueuedEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.rows[id]; ok {
		cp := *q
		return &cp
	}
	return nil
}

func (r *MockEmailQueueRepo) Enqueue(ctx context.Context, tx repository.Tx, q *model.QueuedEmail) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	q.ID = r.nextID
	if q.Status == "" {
		q.Status = model.EmailStatusPending
	}
	q.CreatedAt = time.Now()
	cp := *q
	r.rows[q.ID] = &cp
	return q.ID, nil
}

func (r *MockEmailQueueRepo) FetchDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.QueuedEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.QueuedEmail
	for _, q := range r.rows {
		if q.Status == model.EmailStatusPending && !q.NextRetry.After(now) {
			cp := *q
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		if !due[i].NextRetry.Equal(due[j].NextRetry) {
			return due[i].NextRetry.Before(due[j].NextRetry)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MockEmailQueueRepo) set(id int64, fn func(q *model.QueuedEmail)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(q)
	return nil
}

func (r *MockEmailQueueRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	return r.set(id, func(q *model.QueuedEmail) { q.Status, q.ProcessedAt = model.EmailStatusProcessing, &at })
}

func (r *MockEmailQueueRepo) ReclaimStale(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, q := range r.rows {
		if q.Status == model.EmailStatusProcessing && q.ProcessedAt != nil && q.ProcessedAt.Before(before) {
			q.Status = model.EmailStatusPending
			n++
		}
	}
	return n, nil
}

func (r *MockEmailQueueRepo) MarkSent(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	return r.set(id, func(q *model.QueuedEmail) { q.Status, q.SentAt = model.EmailStatusSent, &at })
}

func (r *MockEmailQueueRepo) ScheduleRetry(ctx context.Context, tx repository.Tx, id int64, retryCount int, nextRetry time.Time, errMsg string) error {
	return r.set(id, func(q *model.QueuedEmail) {
		q.Status, q.RetryCount, q.NextRetry, q.Error = model.EmailStatusPending, retryCount, nextRetry, errMsg
	})
}

func (r *MockEmailQueueRepo) MarkFailed(ctx context.Context, tx repository.Tx, id int64, retryCount int, errMsg string) error {
	return r.set(id, func(q *model.QueuedEmail) {
		q.Status, q.RetryCount, q.Error = model.EmailStatusFailed, retryCount, errMsg
	})
}

func (r *MockEmailQueueRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.rows {
		if q.Status == model.EmailStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *MockEmailQueueRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, q := range r.rows {
		done := q.Status == model.EmailStatusSent || q.Status == model.EmailStatusFailed
		if done && q.CreatedAt.Before(cutoff) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

// ---- Mock SettingsRepository ----

type MockSettingsRepo struct {
	mu     sync.Mutex
	groups map[string][]byte
}

var _ repository.SettingsRepository = (*MockSettingsRepo)(nil)

func NewMockSettingsRepo() *MockSettingsRepo {
	return &MockSettingsRepo{groups: map[string][]byte{}}
}

func (r *MockSettingsRepo) Get(ctx context.Context, tx repository.Tx, group string, dst any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.groups[group]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(raw, dst)
}

func (r *MockSettingsRepo) Put(ctx context.Context, tx repository.Tx, group string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group] = raw
	return nil
}

// Raw returns the stored JSON of a group.
func (r *MockSettingsRepo) Raw(group string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.groups[group])
}

// =============================
// Adapters
// =============================

// ---- Mock StripeGateway ----

type MockStripeGateway struct {
	mu    sync.Mutex
	Calls []string

	Updates []adapter.SubscriptionUpdate

	CancelSubscriptionFunc    func(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
	UpdateSubscriptionFunc    func(ctx context.Context, subscriptionID string, upd adapter.SubscriptionUpdate) error
	CreateSetupIntentFunc     func(ctx context.Context, p adapter.SetupIntentParams) (*adapter.SetupIntent, error)
	AttachPaymentMethodFunc   func(ctx context.Context, paymentMethodID, customerID string) error
	RetrievePaymentMethodFunc func(ctx context.Context, paymentMethodID string) (*adapter.PaymentMethod, error)

	SetupParams *adapter.SetupIntentParams
}

var _ adapter.StripeGateway = (*MockStripeGateway)(nil)

func (g *MockStripeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, call)
}

func (g *MockStripeGateway) PublishableKey() string { return "pk_test_123" }

func (g *MockStripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*adapter.GatewaySubscription, error) {
	g.record("retrieve_subscription:" + subscriptionID)
	return &adapter.GatewaySubscription{ID: subscriptionID, CustomerID: "cus_123", Status: "active"}, nil
}

func (g *MockStripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	g.record(fmt.Sprintf("cancel:%s:%t", subscriptionID, atPeriodEnd))
	if g.CancelSubscriptionFunc != nil {
		return g.CancelSubscriptionFunc(ctx, subscriptionID, atPeriodEnd)
	}
	return nil
}

func (g *MockStripeGateway) UpdateSubscription(ctx context.Context, subscriptionID string, upd adapter.SubscriptionUpdate) error {
	g.record("update:" + subscriptionID)
	g.mu.Lock()
	g.Updates = append(g.Updates, upd)
	g.mu.Unlock()
	if g.UpdateSubscriptionFunc != nil {
		return g.UpdateSubscriptionFunc(ctx, subscriptionID, upd)
	}
	return nil
}

func (g *MockStripeGateway) CreateSetupIntent(ctx context.Context, p adapter.SetupIntentParams) (*adapter.SetupIntent, error) {
	g.record("setup_intent:" + p.CustomerID)
	g.mu.Lock()
	g.SetupParams = &p
	g.mu.Unlock()
	if g.CreateSetupIntentFunc != nil {
		return g.CreateSetupIntentFunc(ctx, p)
	}
	return &adapter.SetupIntent{ID: "seti_1", ClientSecret: "seti_1_secret"}, nil
}

func (g *MockStripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	g.record("attach:" + paymentMethodID + ":" + customerID)
	if g.AttachPaymentMethodFunc != nil {
		return g.AttachPaymentMethodFunc(ctx, paymentMethodID, customerID)
	}
	return nil
}

func (g *MockStripeGateway) SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	g.record("customer_default:" + customerID + ":" + paymentMethodID)
	return nil
}

func (g *MockStripeGateway) RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*adapter.PaymentMethod, error) {
	g.record("retrieve_pm:" + paymentMethodID)
	if g.RetrievePaymentMethodFunc != nil {
		return g.RetrievePaymentMethodFunc(ctx, paymentMethodID)
	}
	return &adapter.PaymentMethod{ID: paymentMethodID, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}, nil
}

// ---- Mock WebhookVerifier ----

type MockWebhookVerifier struct {
	Err error
}

var _ adapter.WebhookVerifier = (*MockWebhookVerifier)(nil)

func (v *MockWebhookVerifier) Verify(payload []byte, header http.Header, secret string) error {
	return v.Err
}

// ---- Mock TemplateSource ----

type MockTemplateSource struct {
	Templates map[string]string
	Subjects  map[string]string
}

var _ adapter.TemplateSource = (*MockTemplateSource)(nil)

func NewMockTemplateSource() *MockTemplateSource {
	return &MockTemplateSource{
		Templates: map[string]string{
			"welcome":           "<p>Welcome !!user_name!! to !!sitename!!</p>",
			"newsletter":        "<p>news</p>",
			"checkout_paid":     "<p>paid !!total!!</p>",
			"gift_notification": "<p>gift</p>",
			"test":              "<p>test from !!sitename!!</p>",
			"default":           "<p>!!body!!</p>",
		},
		Subjects: map[string]string{
			"welcome": "Welcome to %s",
			"test":    "Test email from %s",
			"default": "Membership notification",
		},
	}
}

func (s *MockTemplateSource) Load(key string) (string, error) {
	if t, ok := s.Templates[key]; ok {
		return t, nil
	}
	return "", domain.ErrTemplateNotFound
}

func (s *MockTemplateSource) Subject(key string) (string, bool) {
	v, ok := s.Subjects[key]
	return v, ok
}

// ---- Mock Mailer / MailerFactory ----

type MockMailer struct {
	mu   sync.Mutex
	Sent []model.Envelope

	SendFunc func(ctx context.Context, env model.Envelope) error
}

var _ adapter.Mailer = (*MockMailer)(nil)

func (m *MockMailer) Method() model.DeliveryMethod { return model.DeliveryDefault }

func (m *MockMailer) Send(ctx context.Context, env model.Envelope) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, env); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, env)
	return nil
}

func (m *MockMailer) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, e := range m.Sent {
		out[i] = e.To
	}
	return out
}

type MockMailerFactory struct {
	Mailer *MockMailer
	Err    error
	Last   model.EmailSettings
}

var _ adapter.MailerFactory = (*MockMailerFactory)(nil)

func (f *MockMailerFactory) For(settings model.EmailSettings) (adapter.Mailer, error) {
	f.Last = settings
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Mailer, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

// Hold marks key as taken by someone else.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "other"
}

func (l *MockLocker) IsHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// =============================
// Use case doubles
// =============================

// MockEmailUseCase records Send calls for the notifier and task tests.
type MockEmailUseCase struct {
	mu   sync.Mutex
	Sent []model.Message

	SendFunc func(ctx context.Context, msg model.Message) error
}

var _ usecase.EmailUseCase = (*MockEmailUseCase)(nil)

func (m *MockEmailUseCase) Send(ctx context.Context, msg model.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Templates lists the template keys sent so far.
func (m *MockEmailUseCase) Templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, s := range m.Sent {
		out[i] = s.TemplateKey
	}
	return out
}

func (m *MockEmailUseCase) Render(key string, data map[string]any) (string, error) {
	return "", nil
}

func (m *MockEmailUseCase) ProcessQueue(ctx context.Context) (int, error) { return 0, nil }

func (m *MockEmailUseCase) Cleanup(ctx context.Context, olderThan time.Duration) (model.CleanupResult, error) {
	return model.CleanupResult{}, nil
}

func (m *MockEmailUseCase) Stats(ctx context.Context) (model.EmailStats, error) {
	return model.EmailStats{}, nil
}

func (m *MockEmailUseCase) SendTest(ctx context.Context, to string) error { return nil }

func (m *MockEmailUseCase) Settings(ctx context.Context) (model.EmailSettings, error) {
	return model.EmailSettings{}, nil
}

func (m *MockEmailUseCase) SaveSettings(ctx context.Context, s model.EmailSettings) error {
	return nil
}

// MockBillingNotifier captures notices emitted after a webhook commit.
type MockBillingNotifier struct {
	mu      sync.Mutex
	Notices []usecase.BillingNotice
}

var _ usecase.BillingNotifier = (*MockBillingNotifier)(nil)

func (n *MockBillingNotifier) Notify(ctx context.Context, notice usecase.BillingNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, notice)
	return nil
}

// =============================
// Helpers
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestTranslator loads the embedded English catalogue.
func newTestTranslator() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLocale)
	if err != nil {
		panic(err)
	}
	return tr
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
