package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
)

// OrderSession is the transactional view of the RMS order tables. All
// operations in one session share a single database transaction; entries of
// one order must never span sessions.
type OrderSession interface {
	CreateOrder(header *models.Order) (int64, error)
	UpdateOrder(id int64, patch *models.Order) error
	ListOrderEntries(orderID int64) ([]models.OrderEntry, error)
	CreateOrderEntry(entry *models.OrderEntry) (int64, error)
	UpdateOrderEntry(id int64, patch *models.OrderEntry) error
	DeleteOrderEntry(id int64) error
	CreateOrderHistory(history *models.OrderHistory) error
}

// OrderStore is the RMS order store. Reads run outside any transaction;
// writes go through WithSession, which commits on a nil return and rolls
// back otherwise.
type OrderStore interface {
	FindOrderByReference(ctx context.Context, ref string) (*models.Order, error)
	BatchCheckOrderExistence(ctx context.Context, refs []string) (map[string]bool, error)
	WithSession(ctx context.Context, fn func(session OrderSession) error) error
}

// CustomerStore looks up and creates RMS customers.
type CustomerStore interface {
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) (int64, error)
}

// ItemResolver maps storefront SKUs to RMS item ids.
type ItemResolver interface {
	ResolveItemIDBySKU(ctx context.Context, sku string) (int64, bool, error)
}

// classifyStoreError reclassifies a database error into a typed sync error.
// gorm.ErrRecordNotFound is intentionally not handled here; callers map it
// to a nil result.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var syncErr *errs.SyncError
	if errors.As(err, &syncErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.KindQueryTimeout, op+" timed out", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23: integrity constraint violations.
		if strings.HasPrefix(pgErr.Code, "23") {
			return errs.New(errs.KindConstraintViolation, op+" violated a constraint", err)
		}
		// Class 08: connection exceptions. 57P01: admin shutdown.
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" {
			return errs.New(errs.KindConnectionLost, op+" lost the connection", err)
		}
		// 57014: query_canceled, raised by statement_timeout.
		if pgErr.Code == "57014" {
			return errs.New(errs.KindQueryTimeout, op+" timed out", err)
		}
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "bad connection") {
		return errs.New(errs.KindConnectionLost, op+" lost the connection", err)
	}
	// Anything unrecognized is not retried: a bad query fails the same way
	// every time.
	return errs.New(errs.KindUnknown, op+" failed", err)
}
