package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"rms-connector-service/internal/clients"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
)

const defaultAPIVersion = "2024-01"

// cutoffLayout serializes timestamps with a colon-separated offset. The
// Admin API search syntax rejects compact offsets like +0000.
const cutoffLayout = "2006-01-02T15:04:05-07:00"

// Client talks to the Shopify Admin GraphQL API and implements
// clients.StorefrontGateway.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
	rateLimiter *rate.Limiter
}

// Config holds the credentials for one store.
type Config struct {
	StoreDomain string // e.g. my-store.myshopify.com
	AccessToken string
	APIVersion  string
}

// NewClient creates a Shopify Admin API client.
func NewClient(cfg Config) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.StoreDomain, version),
		accessToken: cfg.AccessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(2), 1), // 2 requests per second
	}
}

var _ clients.StorefrontGateway = (*Client)(nil)

const orderFields = `
id
legacyResourceId
name
createdAt
updatedAt
displayFinancialStatus
displayFulfillmentStatus
cancelledAt
test
totalPriceSet { shopMoney { amount } }
subtotalPriceSet { shopMoney { amount } }
totalTaxSet { shopMoney { amount } }
totalShippingPriceSet { shopMoney { amount } }
totalDiscountsSet { shopMoney { amount } }
customer { id email firstName lastName phone }
billingAddress { firstName lastName address1 address2 city province country zip phone }
shippingAddress { firstName lastName address1 address2 city province country zip phone }
lineItems(first: 250) {
  pageInfo { hasNextPage }
  nodes {
    id
    title
    sku
    quantity
    taxable
    originalUnitPriceSet { shopMoney { amount } }
    discountedUnitPriceSet { shopMoney { amount } }
    variant { id }
    product { id }
  }
}
shippingLine { title code discountedPriceSet { shopMoney { amount } } }
transactions { kind status test amountSet { shopMoney { amount } } }
`

var ordersQuery = fmt.Sprintf(`
query RecentOrders($first: Int!, $after: String, $query: String!) {
  orders(first: $first, after: $after, query: $query, sortKey: UPDATED_AT, reverse: true) {
    edges { node { %s } }
    pageInfo { hasNextPage endCursor }
  }
}`, orderFields)

var orderByIDQuery = fmt.Sprintf(`
query OrderByID($id: ID!) {
  node(id: $id) {
    ... on Order { %s }
  }
}`, orderFields)

// FetchRecentOrders returns one page of orders matching the filter, sorted
// by updatedAt descending.
func (c *Client) FetchRecentOrders(ctx context.Context, filter clients.OrderFilter, pageSize int, cursor string) (*clients.OrdersPage, error) {
	if pageSize <= 0 || pageSize > clients.MaxPageSize {
		pageSize = clients.MaxPageSize
	}

	variables := map[string]interface{}{
		"first": pageSize,
		"query": BuildSearchQuery(filter),
	}
	if cursor != "" {
		variables["after"] = cursor
	}

	var payload struct {
		Orders struct {
			Edges []struct {
				Node orderNode `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"orders"`
	}
	if err := c.query(ctx, ordersQuery, variables, &payload); err != nil {
		return nil, err
	}

	page := &clients.OrdersPage{
		EndCursor: payload.Orders.PageInfo.EndCursor,
		HasNext:   payload.Orders.PageInfo.HasNextPage,
	}
	for _, edge := range payload.Orders.Edges {
		page.Orders = append(page.Orders, edge.Node.toModel())
	}
	return page, nil
}

// FetchOrderByID returns a single order by its GID, or nil when not found.
func (c *Client) FetchOrderByID(ctx context.Context, externalID string) (*models.StorefrontOrder, error) {
	var payload struct {
		Node *orderNode `json:"node"`
	}
	err := c.query(ctx, orderByIDQuery, map[string]interface{}{"id": externalID}, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Node == nil || payload.Node.ID == "" {
		return nil, nil
	}
	order := payload.Node.toModel()
	return &order, nil
}

// BuildSearchQuery encodes the filter in the Admin API search syntax. The
// updated_at cutoff keeps its colon-separated offset.
func BuildSearchQuery(filter clients.OrderFilter) string {
	var parts []string
	if !filter.UpdatedAfter.IsZero() {
		parts = append(parts, fmt.Sprintf("updated_at:>='%s'", filter.UpdatedAfter.UTC().Format(cutoffLayout)))
	}
	if len(filter.FinancialStatuses) > 0 {
		statuses := make([]string, len(filter.FinancialStatuses))
		for i, s := range filter.FinancialStatuses {
			statuses[i] = strings.ToLower(string(s))
		}
		parts = append(parts, "financial_status:"+strings.Join(statuses, ","))
	}
	if len(filter.FulfillmentStatuses) > 0 {
		statuses := make([]string, len(filter.FulfillmentStatuses))
		for i, s := range filter.FulfillmentStatuses {
			statuses[i] = strings.ToLower(s)
		}
		parts = append(parts, "fulfillment_status:"+strings.Join(statuses, ","))
	}
	if !filter.IncludeTestOrders {
		parts = append(parts, "test:false")
	}
	return strings.Join(parts, " AND ")
}

// query posts a GraphQL request and decodes data into out, mapping HTTP and
// GraphQL failures to typed sync errors.
func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.KindTransientAPI, "storefront request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.KindTransientAPI, "reading storefront response failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp, body)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message    string `json:"message"`
			Extensions struct {
				Code string `json:"code"`
			} `json:"extensions"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errs.New(errs.KindTransientAPI, "malformed storefront response", err)
	}
	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		if first.Extensions.Code == "THROTTLED" {
			return errs.RateLimited(0, fmt.Errorf("graphql throttled: %s", first.Message))
		}
		return errs.New(errs.KindPermanentAPI, "graphql error: "+first.Message, nil)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errs.New(errs.KindTransientAPI, "decoding storefront payload failed", err)
		}
	}
	return nil
}

// classifyHTTPStatus maps a non-200 response to a typed sync error.
func classifyHTTPStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.RateLimited(parseRetryAfter(resp), fmt.Errorf("status 429: %s", truncate(body)))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New(errs.KindUnauthorized, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return errs.New(errs.KindTransientAPI, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body)), nil)
	default:
		return errs.New(errs.KindPermanentAPI, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body)), nil)
	}
}

// parseRetryAfter extracts the Retry-After duration from a response.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// GraphQL response shapes.

type moneySet struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shopMoney"`
}

func (m moneySet) decimal() decimal.Decimal {
	if m.ShopMoney.Amount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m.ShopMoney.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type addressNode struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Country   string `json:"country"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

func (a *addressNode) toModel() *models.StorefrontAddress {
	if a == nil {
		return nil
	}
	return &models.StorefrontAddress{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Country:   a.Country,
		Zip:       a.Zip,
		Phone:     a.Phone,
	}
}

type orderNode struct {
	ID                       string       `json:"id"`
	LegacyResourceID         string       `json:"legacyResourceId"`
	Name                     string       `json:"name"`
	CreatedAt                time.Time    `json:"createdAt"`
	UpdatedAt                time.Time    `json:"updatedAt"`
	DisplayFinancialStatus   string       `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string       `json:"displayFulfillmentStatus"`
	CancelledAt              *time.Time   `json:"cancelledAt"`
	Test                     bool         `json:"test"`
	TotalPriceSet            moneySet     `json:"totalPriceSet"`
	SubtotalPriceSet         moneySet     `json:"subtotalPriceSet"`
	TotalTaxSet              moneySet     `json:"totalTaxSet"`
	TotalShippingPriceSet    moneySet     `json:"totalShippingPriceSet"`
	TotalDiscountsSet        moneySet     `json:"totalDiscountsSet"`
	Customer                 *struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	BillingAddress  *addressNode `json:"billingAddress"`
	ShippingAddress *addressNode `json:"shippingAddress"`
	LineItems       struct {
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
		Nodes []struct {
			ID                     string   `json:"id"`
			Title                  string   `json:"title"`
			SKU                    string   `json:"sku"`
			Quantity               int      `json:"quantity"`
			Taxable                bool     `json:"taxable"`
			OriginalUnitPriceSet   moneySet `json:"originalUnitPriceSet"`
			DiscountedUnitPriceSet moneySet `json:"discountedUnitPriceSet"`
			Variant                *struct {
				ID string `json:"id"`
			} `json:"variant"`
			Product *struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"nodes"`
	} `json:"lineItems"`
	ShippingLine *struct {
		Title              string   `json:"title"`
		Code               string   `json:"code"`
		DiscountedPriceSet moneySet `json:"discountedPriceSet"`
	} `json:"shippingLine"`
	Transactions []struct {
		Kind      string   `json:"kind"`
		Status    string   `json:"status"`
		Test      bool     `json:"test"`
		AmountSet moneySet `json:"amountSet"`
	} `json:"transactions"`
}

func (n orderNode) toModel() models.StorefrontOrder {
	order := models.StorefrontOrder{
		ExternalID:        n.ID,
		LegacyID:          n.LegacyResourceID,
		Name:              n.Name,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
		FinancialStatus:   models.FinancialStatus(n.DisplayFinancialStatus),
		FulfillmentStatus: n.DisplayFulfillmentStatus,
		CancelledAt:       n.CancelledAt,
		Test:              n.Test,
		Totals: models.OrderTotals{
			Total:     n.TotalPriceSet.decimal(),
			Subtotal:  n.SubtotalPriceSet.decimal(),
			Tax:       n.TotalTaxSet.decimal(),
			Shipping:  n.TotalShippingPriceSet.decimal(),
			Discounts: n.TotalDiscountsSet.decimal(),
		},
		BillingAddress:  n.BillingAddress.toModel(),
		ShippingAddress: n.ShippingAddress.toModel(),
		// hasNextPage on the line-item connection means the fetch did not
		// return every line; downstream must not treat the set as complete.
		LineItemsTruncated: n.LineItems.PageInfo.HasNextPage,
	}

	if n.Customer != nil {
		order.Customer = &models.StorefrontCustomer{
			ID:        n.Customer.ID,
			Email:     n.Customer.Email,
			FirstName: n.Customer.FirstName,
			LastName:  n.Customer.LastName,
			Phone:     n.Customer.Phone,
		}
	}

	for _, item := range n.LineItems.Nodes {
		line := models.StorefrontLineItem{
			ExternalID:          item.ID,
			Title:               item.Title,
			SKU:                 item.SKU,
			Quantity:            item.Quantity,
			Taxable:             item.Taxable,
			UnitPriceOriginal:   item.OriginalUnitPriceSet.decimal(),
			UnitPriceDiscounted: item.DiscountedUnitPriceSet.decimal(),
		}
		if item.Variant != nil {
			line.VariantID = item.Variant.ID
		}
		if item.Product != nil {
			line.ProductID = item.Product.ID
		}
		order.LineItems = append(order.LineItems, line)
	}

	if n.ShippingLine != nil {
		order.ShippingLine = &models.ShippingLine{
			Title:           n.ShippingLine.Title,
			Code:            n.ShippingLine.Code,
			DiscountedPrice: n.ShippingLine.DiscountedPriceSet.decimal(),
		}
	}

	for _, tx := range n.Transactions {
		order.Transactions = append(order.Transactions, models.OrderTransaction{
			Kind:   models.TransactionKind(strings.ToUpper(tx.Kind)),
			Status: models.TransactionStatus(strings.ToUpper(tx.Status)),
			Test:   tx.Test,
			Amount: tx.AmountSet.decimal(),
		})
	}

	return order
}
