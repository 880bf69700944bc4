package repository

import (
	"context"
	"errors"

	"rms-connector-service/internal/models"
	"gorm.io/gorm"
)

// OrderRepository implements OrderStore on the RMS database.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

var _ OrderStore = (*OrderRepository)(nil)

// FindOrderByReference returns the order with the given reference number,
// or nil when none exists.
func (r *OrderRepository) FindOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("\"ReferenceNumber\" = ?", ref).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyStoreError("find order by reference", err)
	}
	return &order, nil
}

// BatchCheckOrderExistence returns existence per reference in one query,
// outside any transaction.
func (r *OrderRepository) BatchCheckOrderExistence(ctx context.Context, refs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(refs))
	for _, ref := range refs {
		result[ref] = false
	}
	if len(refs) == 0 {
		return result, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("\"ReferenceNumber\" IN ?", refs).
		Pluck("\"ReferenceNumber\"", &found).Error
	if err != nil {
		return nil, classifyStoreError("batch check order existence", err)
	}
	for _, ref := range found {
		result[ref] = true
	}
	return result, nil
}

// WithSession runs fn inside a single database transaction. A nil return
// commits; any error rolls back and propagates unchanged.
func (r *OrderRepository) WithSession(ctx context.Context, fn func(session OrderSession) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&orderSession{tx: tx})
	})
}

// orderSession binds the order table operations to one transaction.
type orderSession struct {
	tx *gorm.DB
}

var _ OrderSession = (*orderSession)(nil)

func (s *orderSession) CreateOrder(header *models.Order) (int64, error) {
	if err := s.tx.Create(header).Error; err != nil {
		return 0, classifyStoreError("create order", err)
	}
	return header.ID, nil
}

func (s *orderSession) UpdateOrder(id int64, patch *models.Order) error {
	err := s.tx.Model(&models.Order{}).
		Where("\"ID\" = ?", id).
		Updates(map[string]interface{}{
			"StoreID":               patch.StoreID,
			"Time":                  patch.Time,
			"Type":                  patch.Type,
			"CustomerID":            patch.CustomerID,
			"Total":                 patch.Total,
			"Tax":                   patch.Tax,
			"Deposit":               patch.Deposit,
			"ShippingChargeOnOrder": patch.ShippingChargeOnOrder,
			"ChannelType":           patch.ChannelType,
			"Comment":               patch.CustomerEmail,
			"ShipToName":            patch.ShipToName,
			"ShipToCompany":         patch.ShopifyOrderNumber,
		}).Error
	if err != nil {
		return classifyStoreError("update order", err)
	}
	return nil
}

func (s *orderSession) ListOrderEntries(orderID int64) ([]models.OrderEntry, error) {
	var entries []models.OrderEntry
	err := s.tx.Where("\"OrderID\" = ?", orderID).
		Order("\"ID\" ASC").
		Find(&entries).Error
	if err != nil {
		return nil, classifyStoreError("list order entries", err)
	}
	return entries, nil
}

func (s *orderSession) CreateOrderEntry(entry *models.OrderEntry) (int64, error) {
	if err := s.tx.Create(entry).Error; err != nil {
		return 0, classifyStoreError("create order entry", err)
	}
	return entry.ID, nil
}

func (s *orderSession) UpdateOrderEntry(id int64, patch *models.OrderEntry) error {
	err := s.tx.Model(&models.OrderEntry{}).
		Where("\"ID\" = ?", id).
		Updates(map[string]interface{}{
			"ItemID":          patch.ItemID,
			"Price":           patch.Price,
			"FullPrice":       patch.FullPrice,
			"QuantityOnOrder": patch.QuantityOnOrder,
			"QuantityRTD":     patch.QuantityRTD,
			"Taxable":         patch.Taxable,
			"Description":     patch.Description,
		}).Error
	if err != nil {
		return classifyStoreError("update order entry", err)
	}
	return nil
}

func (s *orderSession) DeleteOrderEntry(id int64) error {
	if err := s.tx.Delete(&models.OrderEntry{}, "\"ID\" = ?", id).Error; err != nil {
		return classifyStoreError("delete order entry", err)
	}
	return nil
}

func (s *orderSession) CreateOrderHistory(history *models.OrderHistory) error {
	if err := s.tx.Create(history).Error; err != nil {
		return classifyStoreError("create order history", err)
	}
	return nil
}
