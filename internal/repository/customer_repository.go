package repository

import (
	"context"
	"errors"

	"rms-connector-service/internal/models"
	"gorm.io/gorm"
)

// CustomerRepository implements CustomerStore on the RMS database.
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository.
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

var _ CustomerStore = (*CustomerRepository)(nil)

// FindCustomerByEmail returns the customer with the exact email, or nil
// when none exists. Matching is case-sensitive; normalization is the
// caller's concern.
func (r *CustomerRepository) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("\"EmailAddress\" = ?", email).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyStoreError("find customer by email", err)
	}
	return &customer, nil
}

// CreateCustomer inserts a new customer row and returns its id.
func (r *CustomerRepository) CreateCustomer(ctx context.Context, customer *models.Customer) (int64, error) {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return 0, classifyStoreError("create customer", err)
	}
	return customer.ID, nil
}
