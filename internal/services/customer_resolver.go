package services

import (
	"context"

	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
)

// CustomerPolicy controls how orders without a usable customer are handled.
type CustomerPolicy struct {
	// AllowGuestOrders lets orders through without an RMS customer.
	AllowGuestOrders bool
	// RequireCustomerEmail rejects orders whose customer block has no email.
	RequireCustomerEmail bool
	// DefaultGuestCustomerID, when non-zero, is attached to guest orders.
	DefaultGuestCustomerID int64
}

// CustomerResolver maps the customer block of a storefront order to an RMS
// customer id, creating the customer on first sight.
type CustomerResolver struct {
	store  repository.CustomerStore
	policy CustomerPolicy
	logger *log.Entry
}

// NewCustomerResolver creates a resolver over the given customer store.
func NewCustomerResolver(store repository.CustomerStore, policy CustomerPolicy) *CustomerResolver {
	return &CustomerResolver{
		store:  store,
		policy: policy,
		logger: log.WithField("component", "customer_resolver"),
	}
}

// Resolve returns the RMS customer id for the order, or nil for a guest
// order the policy allows through. Lookup is by exact email equality; any
// normalization is the storefront's concern. A new customer is created when
// no match exists.
func (r *CustomerResolver) Resolve(ctx context.Context, order *models.StorefrontOrder) (*int64, error) {
	if order.Customer == nil {
		return r.guestFallback(order)
	}

	email := order.Customer.Email
	if email == "" {
		if r.policy.RequireCustomerEmail {
			return nil, errs.Validation("order %s has no customer email and REQUIRE_CUSTOMER_EMAIL is set", order.Name)
		}
		return r.guestFallback(order)
	}

	existing, err := r.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &existing.ID, nil
	}

	customer := r.newCustomer(order, email)
	id, err := r.store.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(log.Fields{
		"customerId": id,
		"order":      order.Name,
	}).Info("Created RMS customer for storefront order")
	return &id, nil
}

// guestFallback applies the no-customer policy.
func (r *CustomerResolver) guestFallback(order *models.StorefrontOrder) (*int64, error) {
	if !r.policy.AllowGuestOrders {
		return nil, errs.Validation("order %s has no customer and guest orders are disabled", order.Name)
	}
	if r.policy.DefaultGuestCustomerID != 0 {
		id := r.policy.DefaultGuestCustomerID
		return &id, nil
	}
	return nil, nil
}

// newCustomer builds the RMS row from the order's customer and billing
// blocks. The billing address wins over the shipping address for contact
// fields; the customer block wins for the name.
func (r *CustomerResolver) newCustomer(order *models.StorefrontOrder, email string) *models.Customer {
	customer := &models.Customer{
		EmailAddress: email,
		FirstName:    order.Customer.FirstName,
		LastName:     order.Customer.LastName,
		PhoneNumber:  order.Customer.Phone,
	}

	address := order.BillingAddress
	if address == nil {
		address = order.ShippingAddress
	}
	if address != nil {
		if customer.FirstName == "" {
			customer.FirstName = address.FirstName
		}
		if customer.LastName == "" {
			customer.LastName = address.LastName
		}
		if customer.PhoneNumber == "" {
			customer.PhoneNumber = address.Phone
		}
		customer.Address = joinAddress(address.Address1, address.Address2)
		customer.City = address.City
		customer.State = address.Province
		customer.Zip = address.Zip
		customer.Country = address.Country
	}
	return customer
}

// joinAddress merges the two street lines.
func joinAddress(line1, line2 string) string {
	switch {
	case line1 == "":
		return line2
	case line2 == "":
		return line1
	default:
		return line1 + ", " + line2
	}
}
