package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
)

// ConverterConfig carries the RMS constants the converter stamps onto
// every order it produces.
type ConverterConfig struct {
	StoreID        int
	ShippingItemID int64
}

// ConversionResult is a converted order ready for the writer. Warnings carry
// per-line problems (unresolved SKUs) that did not abort the conversion.
type ConversionResult struct {
	Header   *models.Order
	Entries  []models.OrderEntry
	Warnings []error
}

// OrderConverter maps a storefront order to RMS rows. Aside from SKU
// resolution, which goes through the injected resolver, conversion is
// deterministic: the same input always yields the same rows.
type OrderConverter struct {
	config ConverterConfig
	items  repository.ItemResolver
	logger *log.Entry
}

// NewOrderConverter creates a converter bound to an item resolver.
func NewOrderConverter(config ConverterConfig, items repository.ItemResolver) *OrderConverter {
	return &OrderConverter{
		config: config,
		items:  items,
		logger: log.WithField("component", "order_converter"),
	}
}

// Convert builds the RMS header and entry rows for one storefront order.
// customerID may be nil for guest orders. Line items whose SKU cannot be
// resolved are skipped and reported as warnings; an order whose lines are
// ALL unresolved fails validation instead.
func (c *OrderConverter) Convert(ctx context.Context, order *models.StorefrontOrder, customerID *int64) (*ConversionResult, error) {
	ref, err := order.ReferenceNumber()
	if err != nil {
		return nil, errs.Validation("cannot derive reference number: %v", err)
	}

	// An incomplete line set would write an order whose entries no longer
	// match the storefront. Fail the order instead of syncing a subset.
	if order.LineItemsTruncated {
		return nil, errs.Validation("order %s has more line items than the gateway returned", ref)
	}

	header := &models.Order{
		StoreID:               c.config.StoreID,
		Time:                  order.CreatedAt.UTC(),
		Type:                  models.OrderTypeSale,
		CustomerID:            customerID,
		Total:                 order.Totals.Total,
		Tax:                   order.Totals.Tax,
		Deposit:               ComputeDeposit(order),
		ShippingChargeOnOrder: shippingCharge(order),
		ReferenceNumber:       ref,
		ChannelType:           models.ChannelTypeStorefront,
		Closed:                models.OrderOpen,
		ShopifyOrderNumber:    order.Name,
	}
	if order.Customer != nil {
		header.CustomerEmail = order.Customer.Email
	}
	if ship := order.ShippingAddress; ship != nil {
		header.ShipToName = joinName(ship.FirstName, ship.LastName)
	}

	entries, warnings, err := c.convertLineItems(ctx, order)
	if err != nil {
		return nil, err
	}

	if header.ShippingChargeOnOrder.IsPositive() {
		shippingEntry, err := c.shippingEntry(header.ShippingChargeOnOrder)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *shippingEntry)
	}

	if err := validateConverted(header, entries, len(order.LineItems)); err != nil {
		return nil, err
	}

	return &ConversionResult{Header: header, Entries: entries, Warnings: warnings}, nil
}

// convertLineItems maps the storefront lines, resolving each SKU to an RMS
// item id. Unresolvable lines are skipped, not failed.
func (c *OrderConverter) convertLineItems(ctx context.Context, order *models.StorefrontOrder) ([]models.OrderEntry, []error, error) {
	var entries []models.OrderEntry
	var warnings []error

	for _, line := range order.LineItems {
		if line.SKU == "" {
			warnings = append(warnings, errs.New(errs.KindSkuUnresolved,
				fmt.Sprintf("line %q has no SKU, skipped", line.Title), nil))
			continue
		}

		itemID, found, err := c.items.ResolveItemIDBySKU(ctx, line.SKU)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			warnings = append(warnings, errs.New(errs.KindSkuUnresolved,
				fmt.Sprintf("no item for SKU %q (line %q), skipped", line.SKU, line.Title), nil))
			continue
		}

		quantity := decimal.NewFromInt(int64(line.Quantity))
		taxable := 0
		if line.Taxable {
			taxable = 1
		}
		entries = append(entries, models.OrderEntry{
			ItemID:          itemID,
			Price:           line.UnitPriceDiscounted,
			FullPrice:       line.UnitPriceOriginal,
			QuantityOnOrder: quantity,
			QuantityRTD:     decimal.Zero,
			Taxable:         taxable,
			Description:     line.Title,
		})
	}
	return entries, warnings, nil
}

// shippingEntry synthesizes the order entry carrying the shipping charge.
func (c *OrderConverter) shippingEntry(charge decimal.Decimal) (*models.OrderEntry, error) {
	if c.config.ShippingItemID == 0 {
		return nil, errs.Validation("order carries a shipping charge but SHIPPING_ITEM_ID is not configured")
	}
	return &models.OrderEntry{
		ItemID:          c.config.ShippingItemID,
		Price:           charge,
		FullPrice:       charge,
		QuantityOnOrder: decimal.NewFromInt(1),
		QuantityRTD:     decimal.Zero,
		Taxable:         1,
		Description:     "Shipping",
	}, nil
}

// ComputeDeposit derives the paid amount recorded on the RMS order from the
// storefront financial status:
//
//	PAID                                  → order total
//	PARTIALLY_PAID, PARTIALLY_REFUNDED    → successful sales and captures
//	                                        minus successful refunds,
//	                                        never below zero
//	anything else                         → zero
//
// Test transactions never count.
func ComputeDeposit(order *models.StorefrontOrder) decimal.Decimal {
	switch order.FinancialStatus {
	case models.FinancialPaid:
		return order.Totals.Total
	case models.FinancialPartiallyPaid, models.FinancialPartiallyRefunded:
		deposit := decimal.Zero
		for _, tx := range order.Transactions {
			if tx.Test || tx.Status != models.TransactionSuccess {
				continue
			}
			switch tx.Kind {
			case models.TransactionSale, models.TransactionCapture:
				deposit = deposit.Add(tx.Amount)
			case models.TransactionRefund:
				deposit = deposit.Sub(tx.Amount)
			}
		}
		if deposit.IsNegative() {
			return decimal.Zero
		}
		return deposit
	default:
		return decimal.Zero
	}
}

// shippingCharge returns the discounted shipping price, or zero when the
// order has no shipping line.
func shippingCharge(order *models.StorefrontOrder) decimal.Decimal {
	if order.ShippingLine == nil {
		return decimal.Zero
	}
	return order.ShippingLine.DiscountedPrice
}

// validateConverted rejects rows that must never reach the database.
func validateConverted(header *models.Order, entries []models.OrderEntry, sourceLines int) error {
	if header.ReferenceNumber == "" || !models.IsStorefrontReference(header.ReferenceNumber) {
		return errs.Validation("converted order has invalid reference number %q", header.ReferenceNumber)
	}
	if header.Time.IsZero() {
		return errs.Validation("converted order %s has no order time", header.ReferenceNumber)
	}
	if header.Total.IsNegative() {
		return errs.Validation("converted order %s has negative total %s", header.ReferenceNumber, header.Total)
	}
	if header.Tax.IsNegative() {
		return errs.Validation("converted order %s has negative tax %s", header.ReferenceNumber, header.Tax)
	}
	if header.Deposit.IsNegative() {
		return errs.Validation("converted order %s has negative deposit %s", header.ReferenceNumber, header.Deposit)
	}
	if len(entries) == 0 && sourceLines > 0 {
		return errs.Validation("no line of order %s could be resolved to an RMS item", header.ReferenceNumber)
	}
	return nil
}

// joinName concatenates the name parts, skipping empties.
func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
