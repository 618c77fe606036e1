//go:build !integration

package web

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- users ----

type mockUsers struct{ byID map[int64]*model.User }

func newMockUsers(users ...*model.User) *mockUsers {
	m := &mockUsers{byID: map[int64]*model.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *mockUsers) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockUsers) find(match func(*model.User) bool) (*model.User, error) {
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockUsers) FindByEmail(_ context.Context, _ repository.Tx, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *mockUsers) FindByLogin(_ context.Context, _ repository.Tx, login string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Login == login })
}

func (m *mockUsers) FindByStripeCustomerID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.StripeCustomerID == id })
}

func (m *mockUsers) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	m.byID[u.ID] = u
	return nil
}

// ---- limiter ----

type mockLimiter struct {
	counts map[string]int
	err    error
}

func (m *mockLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

// ---- subscriptions / payment methods ----

type subCall struct {
	Op          string
	UserID      int64
	LevelID     int64
	AtPeriodEnd bool
	ResumeAt    *time.Time
}

type mockSubscriptions struct {
	Calls []subCall
	Err   error
}

func (m *mockSubscriptions) record(c subCall) (string, error) {
	m.Calls = append(m.Calls, c)
	if m.Err != nil {
		return "", m.Err
	}
	return c.Op + " ok", nil
}

func (m *mockSubscriptions) Cancel(_ context.Context, uid, lid int64, atPeriodEnd bool) (string, error) {
	return m.record(subCall{Op: "cancel", UserID: uid, LevelID: lid, AtPeriodEnd: atPeriodEnd})
}

func (m *mockSubscriptions) Reactivate(_ context.Context, uid, lid int64) (string, error) {
	return m.record(subCall{Op: "reactivate", UserID: uid, LevelID: lid})
}

func (m *mockSubscriptions) Pause(_ context.Context, uid, lid int64, resumeAt *time.Time) (string, error) {
	return m.record(subCall{Op: "pause", UserID: uid, LevelID: lid, ResumeAt: resumeAt})
}

func (m *mockSubscriptions) Resume(_ context.Context, uid, lid int64) (string, error) {
	return m.record(subCall{Op: "resume", UserID: uid, LevelID: lid})
}

type mockPaymentMethods struct {
	Applied string
	Err     error
}

func (m *mockPaymentMethods) CreateSetupIntent(context.Context, int64, int64) (*usecase.SetupIntentResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &usecase.SetupIntentResult{ClientSecret: "seti_1_secret", PublishableKey: "pk_test_123"}, nil
}

func (m *mockPaymentMethods) ApplyPaymentMethod(_ context.Context, _, _ int64, pm string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.Applied = pm
	return "Payment method updated successfully.", nil
}

// ---- orders ----

type mockOrders struct {
	orders  map[int64]*model.OrderWithRelations
	lastQ   model.OrderQuery
	refunds []decimal.Decimal
	status  map[int64]model.OrderStatus
}

func newMockOrders(orders ...*model.OrderWithRelations) *mockOrders {
	m := &mockOrders{orders: map[int64]*model.OrderWithRelations{}, status: map[int64]model.OrderStatus{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrders) GenerateCode(context.Context) (string, error) { return "ABCDEF1234", nil }

func (m *mockOrders) CalculateTax(*model.Order) decimal.Decimal { return decimal.Zero }

func (m *mockOrders) Create(context.Context, repository.Tx, *model.Order) error { return nil }

func (m *mockOrders) Get(_ context.Context, id int64) (*model.OrderWithRelations, error) {
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockOrders) List(_ context.Context, q model.OrderQuery) (*model.OrderPage, error) {
	m.lastQ = q
	page := &model.OrderPage{Total: len(m.orders)}
	for _, o := range m.orders {
		page.Items = append(page.Items, o)
	}
	return page, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, id int64, status model.OrderStatus, _ string) error {
	if _, ok := m.orders[id]; !ok {
		return domain.ErrNotFound
	}
	if status != model.OrderStatusSuccess && status != model.OrderStatusCancelled {
		return domain.ErrInvalidArgument
	}
	m.status[id] = status
	return nil
}

func (m *mockOrders) Refund(_ context.Context, id int64, amount decimal.Decimal, _ string) error {
	if _, ok := m.orders[id]; !ok {
		return domain.ErrNotFound
	}
	m.refunds = append(m.refunds, amount)
	return nil
}

func (m *mockOrders) Delete(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

// ---- email ----

type mockEmail struct {
	settings  model.EmailSettings
	saved     *model.EmailSettings
	testTo    string
	processed int
	cleanup   time.Duration
	Err       error
}

func (m *mockEmail) Send(context.Context, model.Message) error { return m.Err }

func (m *mockEmail) Render(string, map[string]any) (string, error) { return "", m.Err }

func (m *mockEmail) ProcessQueue(context.Context) (int, error) { return m.processed, m.Err }

func (m *mockEmail) Cleanup(_ context.Context, olderThan time.Duration) (model.CleanupResult, error) {
	m.cleanup = olderThan
	return model.CleanupResult{QueueRows: 2, LogRows: 5}, m.Err
}

func (m *mockEmail) Stats(context.Context) (model.EmailStats, error) {
	return model.EmailStats{Pending: 1, Sent: 3, Failed: 1, Total: 5}, m.Err
}

func (m *mockEmail) SendTest(_ context.Context, to string) error {
	m.testTo = to
	return m.Err
}

func (m *mockEmail) Settings(context.Context) (model.EmailSettings, error) { return m.settings, m.Err }

func (m *mockEmail) SaveSettings(_ context.Context, s model.EmailSettings) error {
	if m.Err != nil {
		return m.Err
	}
	m.saved = &s
	return nil
}
