package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"fintherapy-backend/internal/domain"
)

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) GetUser(ctx context.Context, externalID string) (*domain.UserPayload, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPayload), args.Error(1)
}

func (m *MockIdentityProvider) UpdateUserMetadata(ctx context.Context, externalID string, public map[string]interface{}) error {
	return m.Called(ctx, externalID, public).Error(0)
}

func (m *MockIdentityProvider) DeleteUser(ctx context.Context, externalID string) error {
	return m.Called(ctx, externalID).Error(0)
}

type MockOrphanRepo struct {
	mock.Mock
}

func (m *MockOrphanRepo) Record(ctx context.Context, orphan *domain.OrphanedIdentity) error {
	return m.Called(ctx, orphan).Error(0)
}

func (m *MockOrphanRepo) GetByID(ctx context.Context, id string) (*domain.OrphanedIdentity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrphanedIdentity), args.Error(1)
}

func (m *MockOrphanRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.OrphanedIdentity, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OrphanedIdentity), args.Error(1)
}

func (m *MockOrphanRepo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockOrphanRepo) IncrementAttempts(ctx context.Context, id, lastError string) error {
	return m.Called(ctx, id, lastError).Error(0)
}

type MockBillingProvisioner struct {
	mock.Mock
}

func (m *MockBillingProvisioner) CreateCustomer(ctx context.Context, user *domain.User, idempotencyKey string) (string, error) {
	args := m.Called(ctx, user, idempotencyKey)
	return args.String(0), args.Error(1)
}

type MockBillingRepo struct {
	mock.Mock
}

func (m *MockBillingRepo) GetByUserID(ctx context.Context, userID string) (*domain.BillingCustomer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillingCustomer), args.Error(1)
}

func (m *MockBillingRepo) Create(ctx context.Context, customer *domain.BillingCustomer) error {
	return m.Called(ctx, customer).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	return m.Called(ctx, key, event).Error(0)
}

// fakeAudit records what the sync core reported
type fakeAudit struct {
	mu          sync.Mutex
	compensated []string
	orphaned    []string
	anomalies   []string
}

func (a *fakeAudit) CompensationSucceeded(ctx context.Context, externalID string, attempts int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compensated = append(a.compensated, externalID)
}

func (a *fakeAudit) OrphanedRemoteAccount(ctx context.Context, externalID, email string, attempts int, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orphaned = append(a.orphaned, externalID)
}

func (a *fakeAudit) TherapistPromotionAnomaly(ctx context.Context, userID, email, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anomalies = append(a.anomalies, email)
}

type fakeMetrics struct {
	mu            sync.Mutex
	events        map[string]int
	compensations map[string]int
	enrichment    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{events: map[string]int{}, compensations: map[string]int{}, enrichment: map[string]int{}}
}

func (f *fakeMetrics) ObserveEvent(eventType domain.EventType, status domain.ResultStatus, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[string(eventType)+"/"+string(status)]++
}

func (f *fakeMetrics) IncCompensation(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensations[outcome]++
}

func (f *fakeMetrics) IncEnrichmentFailure(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrichment[step]++
}
