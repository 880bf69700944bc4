package clients

import (
	"context"
	"time"

	"rms-connector-service/internal/models"
)

// MaxPageSize is the largest page the storefront API accepts.
const MaxPageSize = 250

// OrderFilter is the structured predicate for recent-order fetches. The
// gateway encodes it in its native query syntax.
type OrderFilter struct {
	UpdatedAfter        time.Time
	FinancialStatuses   []models.FinancialStatus
	FulfillmentStatuses []string
	IncludeTestOrders   bool
}

// OrdersPage is one page of a cursor-paginated order fetch, sorted by
// updatedAt descending.
type OrdersPage struct {
	Orders    []models.StorefrontOrder
	EndCursor string
	HasNext   bool
}

// StorefrontGateway is the contract the sync core consumes. Implementations
// return errs.SyncError kinds (RATE_LIMITED, UNAUTHORIZED, TRANSIENT_API,
// PERMANENT_API) so the retry fabric can classify failures.
type StorefrontGateway interface {
	// FetchRecentOrders returns one page of orders matching the filter.
	// pageSize must be ≤ MaxPageSize; cursor is empty for the first page.
	FetchRecentOrders(ctx context.Context, filter OrderFilter, pageSize int, cursor string) (*OrdersPage, error)

	// FetchOrderByID returns a single order, or nil when it does not exist.
	FetchOrderByID(ctx context.Context, externalID string) (*models.StorefrontOrder, error)
}
