package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Domain constants for rows written by this service.
const (
	// ChannelTypeStorefront marks orders ingested from the storefront.
	ChannelTypeStorefront = 2

	// OrderTypeSale is the RMS order type for a regular sale.
	OrderTypeSale = 1

	// OrderOpen is the value of Order.Closed for an open order.
	OrderOpen = 0

	// ReferencePrefix links a storefront order to its RMS row. The full
	// reference number is ReferencePrefix + the storefront legacy id.
	ReferencePrefix = "SHOPIFY-"
)

// Order is the RMS order header row.
type Order struct {
	ID                    int64           `gorm:"column:ID;primaryKey;autoIncrement" json:"id"`
	StoreID               int             `gorm:"column:StoreID;not null" json:"storeId"`
	Time                  time.Time       `gorm:"column:Time;not null" json:"time"`
	Type                  int             `gorm:"column:Type;not null" json:"type"`
	CustomerID            *int64          `gorm:"column:CustomerID" json:"customerId,omitempty"`
	Total                 decimal.Decimal `gorm:"column:Total;type:decimal(12,2)" json:"total"`
	Tax                   decimal.Decimal `gorm:"column:Tax;type:decimal(12,2)" json:"tax"`
	Deposit               decimal.Decimal `gorm:"column:Deposit;type:decimal(12,2)" json:"deposit"`
	ShippingChargeOnOrder decimal.Decimal `gorm:"column:ShippingChargeOnOrder;type:decimal(12,2)" json:"shippingChargeOnOrder"`
	ReferenceNumber       string          `gorm:"column:ReferenceNumber;type:varchar(255);uniqueIndex" json:"referenceNumber"`
	ChannelType           int             `gorm:"column:ChannelType;not null" json:"channelType"`
	Closed                int             `gorm:"column:Closed;not null;default:0" json:"closed"`

	// Cached storefront fields, kept for search and debugging only.
	CustomerEmail       string `gorm:"column:Comment;type:varchar(255)" json:"customerEmail,omitempty"`
	ShipToName          string `gorm:"column:ShipToName;type:varchar(255)" json:"shipToName,omitempty"`
	ShopifyOrderNumber  string `gorm:"column:ShipToCompany;type:varchar(50)" json:"shopifyOrderNumber,omitempty"`

	Entries []OrderEntry `gorm:"foreignKey:OrderID" json:"entries,omitempty"`
}

// TableName maps to the RMS order table.
func (Order) TableName() string {
	return `Order`
}

// IsStorefrontReference reports whether ref carries the storefront prefix.
func IsStorefrontReference(ref string) bool {
	return strings.HasPrefix(ref, ReferencePrefix)
}

// OrderEntry is one RMS order line.
type OrderEntry struct {
	ID              int64           `gorm:"column:ID;primaryKey;autoIncrement" json:"id"`
	OrderID         int64           `gorm:"column:OrderID;not null;index" json:"orderId"`
	ItemID          int64           `gorm:"column:ItemID;not null" json:"itemId"`
	Price           decimal.Decimal `gorm:"column:Price;type:decimal(12,2)" json:"price"`
	FullPrice       decimal.Decimal `gorm:"column:FullPrice;type:decimal(12,2)" json:"fullPrice"`
	Cost            decimal.Decimal `gorm:"column:Cost;type:decimal(12,2)" json:"cost"`
	QuantityOnOrder decimal.Decimal `gorm:"column:QuantityOnOrder;type:decimal(10,2)" json:"quantityOnOrder"`
	QuantityRTD     decimal.Decimal `gorm:"column:QuantityRTD;type:decimal(10,2)" json:"quantityRtd"`
	Taxable         int             `gorm:"column:Taxable;not null;default:0" json:"taxable"`
	Description     string          `gorm:"column:Description;type:varchar(255)" json:"description"`

	// Ops codes carried with RMS defaults; the sync never reinterprets them.
	SalesRepID    *int64 `gorm:"column:SalesRepID" json:"salesRepId,omitempty"`
	DiscountReason string `gorm:"column:DiscountReasonCodeID;type:varchar(50)" json:"discountReason,omitempty"`
}

// TableName maps to the RMS order entry table.
func (OrderEntry) TableName() string {
	return "OrderEntry"
}

// OrderHistory is an append-only audit row, written in the same transaction
// as the header and entry changes it describes.
type OrderHistory struct {
	ID                int64           `gorm:"column:ID;primaryKey;autoIncrement" json:"id"`
	OrderID           int64           `gorm:"column:OrderID;not null;index" json:"orderId"`
	Date              time.Time       `gorm:"column:Date;not null" json:"date"`
	DeltaDeposit      decimal.Decimal `gorm:"column:DeltaDeposit;type:decimal(12,2)" json:"deltaDeposit"`
	TransactionNumber int64           `gorm:"column:TransactionNumber" json:"transactionNumber"`
	Comment           string          `gorm:"column:Comment;type:varchar(255)" json:"comment"`
	StoreID           int             `gorm:"column:StoreID;not null" json:"storeId"`
	BatchNumber       int             `gorm:"column:BatchNumber;default:0" json:"batchNumber"`
	CashierID         int             `gorm:"column:CashierID;default:0" json:"cashierId"`
}

// TableName maps to the RMS order history table.
func (OrderHistory) TableName() string {
	return "OrderHistory"
}

// Customer is the minimal RMS customer row this service reads and writes.
// Email is unique per live customer; lookup-before-insert is the only
// creation path.
type Customer struct {
	ID          int64  `gorm:"column:ID;primaryKey;autoIncrement" json:"id"`
	EmailAddress string `gorm:"column:EmailAddress;type:varchar(255);index" json:"emailAddress"`
	FirstName   string `gorm:"column:FirstName;type:varchar(255)" json:"firstName"`
	LastName    string `gorm:"column:LastName;type:varchar(255)" json:"lastName"`
	PhoneNumber string `gorm:"column:PhoneNumber;type:varchar(50)" json:"phoneNumber,omitempty"`
	Address     string `gorm:"column:Address;type:varchar(255)" json:"address,omitempty"`
	City        string `gorm:"column:City;type:varchar(255)" json:"city,omitempty"`
	State       string `gorm:"column:State;type:varchar(255)" json:"state,omitempty"`
	Zip         string `gorm:"column:Zip;type:varchar(50)" json:"zip,omitempty"`
	Country     string `gorm:"column:Country;type:varchar(255)" json:"country,omitempty"`
}

// TableName maps to the RMS customer table.
func (Customer) TableName() string {
	return "Customer"
}

// Item is the RMS item row, read-only for this service (SKU resolution).
type Item struct {
	ID          int64  `gorm:"column:ID;primaryKey" json:"id"`
	ItemLookupCode string `gorm:"column:ItemLookupCode;type:varchar(255);index" json:"itemLookupCode"`
	Description string `gorm:"column:Description;type:varchar(255)" json:"description"`
}

// TableName maps to the RMS item table.
func (Item) TableName() string {
	return "Item"
}
