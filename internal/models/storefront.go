package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialStatus is the storefront payment state of an order.
type FinancialStatus string

const (
	FinancialPending           FinancialStatus = "PENDING"
	FinancialAuthorized        FinancialStatus = "AUTHORIZED"
	FinancialPartiallyPaid     FinancialStatus = "PARTIALLY_PAID"
	FinancialPaid              FinancialStatus = "PAID"
	FinancialPartiallyRefunded FinancialStatus = "PARTIALLY_REFUNDED"
	FinancialRefunded          FinancialStatus = "REFUNDED"
	FinancialVoided            FinancialStatus = "VOIDED"
)

// TransactionKind is the type of a storefront payment transaction.
type TransactionKind string

const (
	TransactionAuthorization TransactionKind = "AUTHORIZATION"
	TransactionSale          TransactionKind = "SALE"
	TransactionCapture       TransactionKind = "CAPTURE"
	TransactionRefund        TransactionKind = "REFUND"
	TransactionVoid          TransactionKind = "VOID"
)

// TransactionStatus is the outcome of a storefront payment transaction.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "SUCCESS"
	TransactionPending TransactionStatus = "PENDING"
	TransactionFailure TransactionStatus = "FAILURE"
)

// StorefrontOrder is the order DTO returned by the storefront gateway.
type StorefrontOrder struct {
	ExternalID        string               `json:"externalId"` // GID, e.g. gid://shopify/Order/123
	LegacyID          string               `json:"legacyId"`   // numeric string
	Name              string               `json:"name"`       // e.g. #1001
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	FinancialStatus   FinancialStatus      `json:"financialStatus"`
	FulfillmentStatus string               `json:"fulfillmentStatus,omitempty"`
	CancelledAt       *time.Time           `json:"cancelledAt,omitempty"`
	Test              bool                 `json:"test"`
	Totals            OrderTotals          `json:"totals"`
	Customer          *StorefrontCustomer  `json:"customer,omitempty"`
	BillingAddress    *StorefrontAddress   `json:"billingAddress,omitempty"`
	ShippingAddress   *StorefrontAddress   `json:"shippingAddress,omitempty"`
	LineItems         []StorefrontLineItem `json:"lineItems"`
	// LineItemsTruncated is set when the gateway could not return every
	// line of the order; LineItems is then incomplete.
	LineItemsTruncated bool               `json:"lineItemsTruncated,omitempty"`
	ShippingLine       *ShippingLine      `json:"shippingLine,omitempty"`
	Transactions       []OrderTransaction `json:"transactions,omitempty"`
}

// OrderTotals carries the order-level money amounts.
type OrderTotals struct {
	Total     decimal.Decimal `json:"total"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Discounts decimal.Decimal `json:"discounts"`
}

// StorefrontCustomer is the customer block on a storefront order.
type StorefrontCustomer struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// StorefrontAddress is a billing or shipping address.
type StorefrontAddress struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Address1  string `json:"address1,omitempty"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city,omitempty"`
	Province  string `json:"province,omitempty"`
	Country   string `json:"country,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// StorefrontLineItem is one line of a storefront order.
type StorefrontLineItem struct {
	ExternalID          string          `json:"externalId"`
	Title               string          `json:"title"`
	SKU                 string          `json:"sku"`
	Quantity            int             `json:"quantity"`
	Taxable             bool            `json:"taxable"`
	UnitPriceOriginal   decimal.Decimal `json:"unitPriceOriginal"`
	UnitPriceDiscounted decimal.Decimal `json:"unitPriceDiscounted"`
	VariantID           string          `json:"variantId,omitempty"`
	ProductID           string          `json:"productId,omitempty"`
}

// ShippingLine is the shipping charge block of a storefront order.
type ShippingLine struct {
	Title           string          `json:"title"`
	Code            string          `json:"code,omitempty"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
}

// OrderTransaction is one payment transaction attached to an order.
type OrderTransaction struct {
	Kind   TransactionKind   `json:"kind"`
	Status TransactionStatus `json:"status"`
	Test   bool              `json:"test"`
	Amount decimal.Decimal   `json:"amount"`
}

var gidOrderPattern = regexp.MustCompile(`/Order/(\d+)$`)

// ExtractLegacyID returns the numeric storefront order id. It prefers the
// GID tail, then the LegacyID field, then the order name with the leading
// "#" stripped.
func (o *StorefrontOrder) ExtractLegacyID() (string, error) {
	if m := gidOrderPattern.FindStringSubmatch(o.ExternalID); m != nil {
		return m[1], nil
	}
	if o.LegacyID != "" {
		return o.LegacyID, nil
	}
	if name := strings.TrimPrefix(o.Name, "#"); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("order has no usable external id (externalId=%q name=%q)", o.ExternalID, o.Name)
}

// ReferenceNumber returns the cross-system key for this order.
func (o *StorefrontOrder) ReferenceNumber() (string, error) {
	legacyID, err := o.ExtractLegacyID()
	if err != nil {
		return "", err
	}
	return ReferencePrefix + legacyID, nil
}
