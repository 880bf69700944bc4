package shopify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"rms-connector-service/internal/clients"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		httpClient:  server.Client(),
		endpoint:    server.URL,
		accessToken: "test-token",
		rateLimiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestBuildSearchQueryCutoffKeepsColonOffset(t *testing.T) {
	cutoff := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	query := BuildSearchQuery(clients.OrderFilter{UpdatedAfter: cutoff})

	assert.Contains(t, query, "updated_at:>='2026-03-14T10:30:00+00:00'")
	assert.NotContains(t, query, "+0000")
}

func TestBuildSearchQueryNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	cutoff := time.Date(2026, 3, 14, 11, 30, 0, 0, loc)
	query := BuildSearchQuery(clients.OrderFilter{UpdatedAfter: cutoff})

	assert.Contains(t, query, "2026-03-14T10:30:00+00:00")
}

func TestBuildSearchQueryFullFilter(t *testing.T) {
	query := BuildSearchQuery(clients.OrderFilter{
		UpdatedAfter:        time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		FinancialStatuses:   []models.FinancialStatus{models.FinancialPaid, models.FinancialPartiallyPaid},
		FulfillmentStatuses: []string{"UNFULFILLED"},
	})

	assert.Equal(t,
		"updated_at:>='2026-03-14T10:30:00+00:00' AND financial_status:paid,partially_paid AND fulfillment_status:unfulfilled AND test:false",
		query)
}

func TestBuildSearchQueryIncludesTestOrders(t *testing.T) {
	query := BuildSearchQuery(clients.OrderFilter{IncludeTestOrders: true})
	assert.NotContains(t, query, "test:false")
}

const ordersPageResponse = `{
  "data": {
    "orders": {
      "edges": [
        {
          "node": {
            "id": "gid://shopify/Order/5551234",
            "legacyResourceId": "5551234",
            "name": "#1001",
            "createdAt": "2026-03-14T10:00:00Z",
            "updatedAt": "2026-03-14T10:30:00Z",
            "displayFinancialStatus": "PAID",
            "test": false,
            "totalPriceSet": {"shopMoney": {"amount": "121.00"}},
            "subtotalPriceSet": {"shopMoney": {"amount": "100.00"}},
            "totalTaxSet": {"shopMoney": {"amount": "21.00"}},
            "totalShippingPriceSet": {"shopMoney": {"amount": "12.50"}},
            "customer": {"id": "gid://shopify/Customer/1", "email": "jo@example.com"},
            "lineItems": {"nodes": [
              {
                "id": "gid://shopify/LineItem/1",
                "title": "Widget",
                "sku": "WID-1",
                "quantity": 2,
                "taxable": true,
                "originalUnitPriceSet": {"shopMoney": {"amount": "55.00"}},
                "discountedUnitPriceSet": {"shopMoney": {"amount": "50.00"}}
              }
            ]},
            "shippingLine": {"title": "Standard", "discountedPriceSet": {"shopMoney": {"amount": "12.50"}}},
            "transactions": [
              {"kind": "sale", "status": "success", "test": false, "amountSet": {"shopMoney": {"amount": "121.00"}}}
            ]
          }
        }
      ],
      "pageInfo": {"hasNextPage": true, "endCursor": "cursor-abc"}
    }
  }
}`

func TestFetchRecentOrdersParsesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ordersPageResponse))
	}))
	defer server.Close()

	client := testClient(server)
	page, err := client.FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.NoError(t, err)

	assert.True(t, page.HasNext)
	assert.Equal(t, "cursor-abc", page.EndCursor)
	require.Len(t, page.Orders, 1)

	order := page.Orders[0]
	assert.Equal(t, "gid://shopify/Order/5551234", order.ExternalID)
	assert.Equal(t, "5551234", order.LegacyID)
	assert.Equal(t, models.FinancialPaid, order.FinancialStatus)
	assert.Equal(t, "121.00", order.Totals.Total.StringFixed(2))
	assert.Equal(t, "12.50", order.Totals.Shipping.StringFixed(2))

	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "WID-1", order.LineItems[0].SKU)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
	assert.Equal(t, "50.00", order.LineItems[0].UnitPriceDiscounted.StringFixed(2))

	require.NotNil(t, order.ShippingLine)
	assert.Equal(t, "12.50", order.ShippingLine.DiscountedPrice.StringFixed(2))

	// Transaction kind and status are upcased to the shared enums.
	require.Len(t, order.Transactions, 1)
	assert.Equal(t, models.TransactionSale, order.Transactions[0].Kind)
	assert.Equal(t, models.TransactionSuccess, order.Transactions[0].Status)

	assert.False(t, order.LineItemsTruncated)
}

func TestFetchRecentOrdersFlagsTruncatedLineItems(t *testing.T) {
	const response = `{
	  "data": {
	    "orders": {
	      "edges": [
	        {
	          "node": {
	            "id": "gid://shopify/Order/777",
	            "name": "#777",
	            "lineItems": {
	              "pageInfo": {"hasNextPage": true},
	              "nodes": [
	                {"id": "gid://shopify/LineItem/1", "sku": "WID-1", "quantity": 1}
	              ]
	            }
	          }
	        }
	      ],
	      "pageInfo": {"hasNextPage": false, "endCursor": ""}
	    }
	  }
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(response))
	}))
	defer server.Close()

	page, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.True(t, page.Orders[0].LineItemsTruncated)
}

func TestFetchOrderByIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"node": null}}`))
	}))
	defer server.Close()

	order, err := testClient(server).FetchOrderByID(context.Background(), "gid://shopify/Order/404")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestQueryClassifiesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2.0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimited, errs.KindOf(err))
	assert.Equal(t, 2*time.Second, errs.RetryAfterOf(err))
}

func TestQueryClassifiesHTTPStatuses(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, errs.KindUnauthorized},
		{http.StatusForbidden, errs.KindUnauthorized},
		{http.StatusInternalServerError, errs.KindTransientAPI},
		{http.StatusBadGateway, errs.KindTransientAPI},
		{http.StatusNotFound, errs.KindPermanentAPI},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
		server.Close()

		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.kind, errs.KindOf(err), "status %d", tt.status)
	}
}

func TestQueryClassifiesGraphQLThrottle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "Throttled", "extensions": {"code": "THROTTLED"}}]}`))
	}))
	defer server.Close()

	_, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimited, errs.KindOf(err))
}

func TestQueryClassifiesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "Field 'bogus' doesn't exist", "extensions": {"code": "undefinedField"}}]}`))
	}))
	defer server.Close()

	_, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindPermanentAPI, errs.KindOf(err))
}

func TestQueryClassifiesNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, err := testClient(server).FetchRecentOrders(context.Background(), clients.OrderFilter{}, 50, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindTransientAPI, errs.KindOf(err))
}
