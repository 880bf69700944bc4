package services

import (
	"context"
	"sort"

	"github.com/stretchr/testify/mock"
	"rms-connector-service/internal/clients"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
)

// mockGateway is a testify mock of the storefront gateway.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FetchRecentOrders(ctx context.Context, filter clients.OrderFilter, pageSize int, cursor string) (*clients.OrdersPage, error) {
	args := m.Called(ctx, filter, pageSize, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.OrdersPage), args.Error(1)
}

func (m *mockGateway) FetchOrderByID(ctx context.Context, externalID string) (*models.StorefrontOrder, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StorefrontOrder), args.Error(1)
}

// mockCustomerStore is a testify mock of the customer store.
type mockCustomerStore struct {
	mock.Mock
}

func (m *mockCustomerStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *mockCustomerStore) CreateCustomer(ctx context.Context, customer *models.Customer) (int64, error) {
	args := m.Called(ctx, customer)
	return args.Get(0).(int64), args.Error(1)
}

// mockItemResolver resolves SKUs from a fixed table.
type mockItemResolver struct {
	items map[string]int64
	err   error
}

func (m *mockItemResolver) ResolveItemIDBySKU(ctx context.Context, sku string) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	id, ok := m.items[sku]
	return id, ok, nil
}

var _ repository.ItemResolver = (*mockItemResolver)(nil)

// fakeOrderStore is an in-memory order store with transactional sessions: a
// session mutates a copy of the state and commits only when fn returns nil.
type fakeOrderStore struct {
	orders      map[int64]models.Order
	entries     map[int64]models.OrderEntry
	histories   []models.OrderHistory
	nextID      int64
	findErr     error
	batchErr    error
	sessionErrs map[string]error // operation name → injected failure
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:      make(map[int64]models.Order),
		entries:     make(map[int64]models.OrderEntry),
		sessionErrs: make(map[string]error),
	}
}

var _ repository.OrderStore = (*fakeOrderStore)(nil)

func (s *fakeOrderStore) seedOrder(order models.Order, entries ...models.OrderEntry) int64 {
	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order
	for _, entry := range entries {
		s.nextID++
		entry.ID = s.nextID
		entry.OrderID = order.ID
		s.entries[entry.ID] = entry
	}
	return order.ID
}

func (s *fakeOrderStore) FindOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, order := range s.orders {
		if order.ReferenceNumber == ref {
			found := order
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeOrderStore) BatchCheckOrderExistence(ctx context.Context, refs []string) (map[string]bool, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	result := make(map[string]bool, len(refs))
	for _, ref := range refs {
		result[ref] = false
		for _, order := range s.orders {
			if order.ReferenceNumber == ref {
				result[ref] = true
				break
			}
		}
	}
	return result, nil
}

func (s *fakeOrderStore) WithSession(ctx context.Context, fn func(session repository.OrderSession) error) error {
	session := &fakeSession{
		store:     s,
		orders:    cloneMap(s.orders),
		entries:   cloneMap(s.entries),
		histories: append([]models.OrderHistory(nil), s.histories...),
		nextID:    s.nextID,
	}
	if err := fn(session); err != nil {
		return err // rollback: store state untouched
	}
	s.orders = session.orders
	s.entries = session.entries
	s.histories = session.histories
	s.nextID = session.nextID
	return nil
}

func (s *fakeOrderStore) entriesOf(orderID int64) []models.OrderEntry {
	var entries []models.OrderEntry
	for _, entry := range s.entries {
		if entry.OrderID == orderID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

type fakeSession struct {
	store     *fakeOrderStore
	orders    map[int64]models.Order
	entries   map[int64]models.OrderEntry
	histories []models.OrderHistory
	nextID    int64
}

var _ repository.OrderSession = (*fakeSession)(nil)

func (s *fakeSession) fail(op string) error {
	return s.store.sessionErrs[op]
}

func (s *fakeSession) CreateOrder(header *models.Order) (int64, error) {
	if err := s.fail("CreateOrder"); err != nil {
		return 0, err
	}
	s.nextID++
	header.ID = s.nextID
	s.orders[header.ID] = *header
	return header.ID, nil
}

func (s *fakeSession) UpdateOrder(id int64, patch *models.Order) error {
	if err := s.fail("UpdateOrder"); err != nil {
		return err
	}
	existing, ok := s.orders[id]
	if !ok {
		return errs.New(errs.KindConstraintViolation, "no such order", nil)
	}
	updated := *patch
	// Closed and ReferenceNumber are never part of the update patch.
	updated.ID = id
	updated.Closed = existing.Closed
	updated.ReferenceNumber = existing.ReferenceNumber
	s.orders[id] = updated
	return nil
}

func (s *fakeSession) ListOrderEntries(orderID int64) ([]models.OrderEntry, error) {
	if err := s.fail("ListOrderEntries"); err != nil {
		return nil, err
	}
	var entries []models.OrderEntry
	for _, entry := range s.entries {
		if entry.OrderID == orderID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *fakeSession) CreateOrderEntry(entry *models.OrderEntry) (int64, error) {
	if err := s.fail("CreateOrderEntry"); err != nil {
		return 0, err
	}
	s.nextID++
	entry.ID = s.nextID
	s.entries[entry.ID] = *entry
	return entry.ID, nil
}

func (s *fakeSession) UpdateOrderEntry(id int64, patch *models.OrderEntry) error {
	if err := s.fail("UpdateOrderEntry"); err != nil {
		return err
	}
	existing, ok := s.entries[id]
	if !ok {
		return errs.New(errs.KindConstraintViolation, "no such entry", nil)
	}
	updated := *patch
	updated.ID = id
	updated.OrderID = existing.OrderID
	s.entries[id] = updated
	return nil
}

func (s *fakeSession) DeleteOrderEntry(id int64) error {
	if err := s.fail("DeleteOrderEntry"); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}

func (s *fakeSession) CreateOrderHistory(history *models.OrderHistory) error {
	if err := s.fail("CreateOrderHistory"); err != nil {
		return err
	}
	s.histories = append(s.histories, *history)
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
