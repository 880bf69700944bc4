package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
)

// UpsertAction names what the writer did with an order.
type UpsertAction string

const (
	UpsertCreated UpsertAction = "created"
	UpsertUpdated UpsertAction = "updated"
)

// UpsertResult reports one completed order write.
type UpsertResult struct {
	Action         UpsertAction `json:"action"`
	OrderID        int64        `json:"orderId"`
	EntriesCreated int          `json:"entriesCreated"`
	EntriesUpdated int          `json:"entriesUpdated"`
	EntriesDeleted int          `json:"entriesDeleted"`
}

// OrderWriter persists converted orders. Every upsert runs in a single
// database transaction: header, entries and the history row all commit
// together or not at all.
type OrderWriter struct {
	store          repository.OrderStore
	shippingItemID int64
	logger         *log.Entry
}

// NewOrderWriter creates a writer over the given order store.
func NewOrderWriter(store repository.OrderStore, shippingItemID int64) *OrderWriter {
	return &OrderWriter{
		store:          store,
		shippingItemID: shippingItemID,
		logger:         log.WithField("component", "order_writer"),
	}
}

// Upsert writes the converted order. existing is the current RMS row for the
// same reference number, or nil when the order is new. On update the
// header's Closed flag and reference number are left untouched, and a
// vanished shipping charge zeroes the shipping entry rather than deleting it.
func (w *OrderWriter) Upsert(ctx context.Context, existing *models.Order, header *models.Order, entries []models.OrderEntry) (*UpsertResult, error) {
	w.checkShippingEntry(header, entries)

	var result *UpsertResult
	err := w.store.WithSession(ctx, func(session repository.OrderSession) error {
		// Each attempt works on fresh copies: the session fills primary
		// keys as it writes, and a retried transaction must not start
		// from the ids of a rolled-back run.
		h := *header
		rows := make([]models.OrderEntry, len(entries))
		copy(rows, entries)

		var err error
		if existing == nil {
			result, err = w.create(session, &h, rows)
		} else {
			result, err = w.update(session, existing, &h, rows)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (w *OrderWriter) create(session repository.OrderSession, header *models.Order, entries []models.OrderEntry) (*UpsertResult, error) {
	orderID, err := session.CreateOrder(header)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].OrderID = orderID
		if _, err := session.CreateOrderEntry(&entries[i]); err != nil {
			return nil, err
		}
	}

	if err := session.CreateOrderHistory(&models.OrderHistory{
		OrderID:      orderID,
		Date:         time.Now().UTC(),
		DeltaDeposit: header.Deposit,
		Comment:      fmt.Sprintf("Created from storefront order %s", header.ReferenceNumber),
		StoreID:      header.StoreID,
	}); err != nil {
		return nil, err
	}

	return &UpsertResult{
		Action:         UpsertCreated,
		OrderID:        orderID,
		EntriesCreated: len(entries),
	}, nil
}

func (w *OrderWriter) update(session repository.OrderSession, existing *models.Order, header *models.Order, entries []models.OrderEntry) (*UpsertResult, error) {
	if err := session.UpdateOrder(existing.ID, header); err != nil {
		return nil, err
	}

	current, err := session.ListOrderEntries(existing.ID)
	if err != nil {
		return nil, err
	}

	// Reconcile by item id: matched rows update in place, new rows insert,
	// leftovers delete. The shipping row is the exception: it is zeroed,
	// never deleted, so a removed shipping charge stays visible in RMS.
	remaining := indexByItemID(current)
	result := &UpsertResult{Action: UpsertUpdated, OrderID: existing.ID}

	for i := range entries {
		entries[i].OrderID = existing.ID
		if match := takeFirst(remaining, entries[i].ItemID); match != nil {
			entries[i].ID = match.ID
			if err := session.UpdateOrderEntry(match.ID, &entries[i]); err != nil {
				return nil, err
			}
			result.EntriesUpdated++
			continue
		}
		if _, err := session.CreateOrderEntry(&entries[i]); err != nil {
			return nil, err
		}
		result.EntriesCreated++
	}

	for _, leftovers := range remaining {
		for _, stale := range leftovers {
			if w.shippingItemID != 0 && stale.ItemID == w.shippingItemID {
				if err := session.UpdateOrderEntry(stale.ID, zeroedEntry(stale)); err != nil {
					return nil, err
				}
				result.EntriesUpdated++
				continue
			}
			if err := session.DeleteOrderEntry(stale.ID); err != nil {
				return nil, err
			}
			result.EntriesDeleted++
		}
	}

	if delta := header.Deposit.Sub(existing.Deposit); !delta.IsZero() {
		if err := session.CreateOrderHistory(&models.OrderHistory{
			OrderID:      existing.ID,
			Date:         time.Now().UTC(),
			DeltaDeposit: delta,
			Comment:      fmt.Sprintf("Deposit changed on storefront order %s", header.ReferenceNumber),
			StoreID:      header.StoreID,
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// zeroedEntry builds the patch that empties a shipping row while keeping its
// item id, description and cost.
func zeroedEntry(stale models.OrderEntry) *models.OrderEntry {
	patch := stale
	patch.Price = decimal.Zero
	patch.FullPrice = decimal.Zero
	patch.QuantityOnOrder = decimal.Zero
	patch.QuantityRTD = decimal.Zero
	return &patch
}

// checkShippingEntry flags the inconsistency of a shipping charge on the
// header without a shipping row in the entry set. The write proceeds.
func (w *OrderWriter) checkShippingEntry(header *models.Order, entries []models.OrderEntry) {
	if !header.ShippingChargeOnOrder.IsPositive() || w.shippingItemID == 0 {
		return
	}
	for _, entry := range entries {
		if entry.ItemID == w.shippingItemID {
			return
		}
	}
	w.logger.WithField("reference", header.ReferenceNumber).
		Warn("Order carries a shipping charge but no shipping entry")
}

// indexByItemID groups entries by item id, preserving row order per id.
func indexByItemID(entries []models.OrderEntry) map[int64][]models.OrderEntry {
	index := make(map[int64][]models.OrderEntry, len(entries))
	for _, entry := range entries {
		index[entry.ItemID] = append(index[entry.ItemID], entry)
	}
	return index
}

// takeFirst pops the first entry for an item id, or nil when none remains.
func takeFirst(index map[int64][]models.OrderEntry, itemID int64) *models.OrderEntry {
	entries := index[itemID]
	if len(entries) == 0 {
		return nil
	}
	first := entries[0]
	if len(entries) == 1 {
		delete(index, itemID)
	} else {
		index[itemID] = entries[1:]
	}
	return &first
}
