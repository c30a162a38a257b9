// Package shopify is the commerce facts provider adapter. Simple resource
// fetches go over the Admin REST API; composite stock queries use the GraphQL
// endpoint. Every outbound call shares one circuit breaker so a flaky store
// backend fails fast instead of stalling message runs.
package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config holds store connection settings.
type Config struct {
	StoreURL    string // my-store.myshopify.com; https is assumed unless a scheme is given
	AccessToken string
	APIVersion  string
	HTTPTimeout time.Duration
}

// Client is a typed Shopify Admin API client.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  zerolog.Logger
}

// NewClient creates a client with circuit breaker protection.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2025-10"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "shopify-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		cb:   gobreaker.NewCircuitBreaker(cbSettings),
		log:  log,
	}
}

// OrderCRM is the order + customer profile lookup payload.
type OrderCRM struct {
	Found           bool     `json:"found"`
	Message         string   `json:"message,omitempty"`
	OrderNumber     string   `json:"order_number,omitempty"`
	Financial       string   `json:"financial,omitempty"`
	Fulfillment     string   `json:"fulfillment,omitempty"`
	Items           []string `json:"items,omitempty"`
	Tracking        []string `json:"tracking,omitempty"`
	CustomerProfile string   `json:"customer_profile,omitempty"`
}

// OrderStatus is the email-verified real-time order status payload.
type OrderStatus struct {
	Found           bool     `json:"found"`
	Error           string   `json:"error,omitempty"`
	OrderID         string   `json:"order_id,omitempty"`
	Date            string   `json:"date,omitempty"`
	Payment         string   `json:"payment,omitempty"`
	Status          string   `json:"status,omitempty"`
	TrackingNumbers []string `json:"tracking_numbers,omitempty"`
	TrackingURLs    []string `json:"tracking_urls,omitempty"`
	Items           []string `json:"items,omitempty"`
	Total           string   `json:"total,omitempty"`
}

// ProductIntel is the deep product lookup payload: metafields plus real
// per-variant inventory levels.
type ProductIntel struct {
	Found             bool              `json:"found"`
	Message           string            `json:"message,omitempty"`
	Title             string            `json:"title,omitempty"`
	Tags              string            `json:"tags,omitempty"`
	TotalStock        int               `json:"total_stock"`
	VariantsBreakdown []string          `json:"variants_breakdown,omitempty"`
	Metafields        map[string]string `json:"metafields_data,omitempty"`
	ImageURL          string            `json:"image_url,omitempty"`
}

// CatalogProduct is one entry of a stock search.
type CatalogProduct struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	TotalStock int    `json:"total_stock"`
}

// Catalog is the GraphQL stock search payload.
type Catalog struct {
	Found    bool             `json:"found"`
	Message  string           `json:"message,omitempty"`
	Products []CatalogProduct `json:"products,omitempty"`
}

type restOrder struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CreatedAt         string `json:"created_at"`
	FinancialStatus   string `json:"financial_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	TotalPrice        string `json:"total_price"`
	Currency          string `json:"currency"`
	Customer          *struct {
		ID int64 `json:"id"`
	} `json:"customer"`
	LineItems []struct {
		Quantity int    `json:"quantity"`
		Title    string `json:"title"`
		Name     string `json:"name"`
	} `json:"line_items"`
	Fulfillments []struct {
		TrackingNumber string `json:"tracking_number"`
		TrackingURL    string `json:"tracking_url"`
	} `json:"fulfillments"`
}

// LookupOrder finds an order by number or customer email and enriches it with
// the customer's lifetime-value profile.
func (c *Client) LookupOrder(ctx context.Context, orderNumber, email string) (*OrderCRM, error) {
	params := url.Values{"status": {"any"}, "limit": {"1"}}
	if orderNumber != "" {
		params.Set("name", strings.TrimSpace(strings.ReplaceAll(orderNumber, "#", "")))
	} else if email != "" {
		params.Set("email", strings.TrimSpace(email))
	}

	var payload struct {
		Orders []restOrder `json:"orders"`
	}
	if err := c.getREST(ctx, "orders.json", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Orders) == 0 {
		return &OrderCRM{Found: false, Message: "Order not found."}, nil
	}

	order := payload.Orders[0]
	result := &OrderCRM{
		Found:           true,
		OrderNumber:     order.Name,
		Financial:       order.FinancialStatus,
		Fulfillment:     fulfillmentOrDefault(order.FulfillmentStatus),
		CustomerProfile: "Guest Checkout",
	}
	for _, li := range order.LineItems {
		result.Items = append(result.Items, fmt.Sprintf("%dx %s", li.Quantity, li.Title))
	}
	for _, f := range order.Fulfillments {
		if f.TrackingNumber != "" {
			result.Tracking = append(result.Tracking, f.TrackingNumber)
		}
	}

	if order.Customer != nil {
		if profile, err := c.customerProfile(ctx, order.Customer.ID); err == nil {
			result.CustomerProfile = profile
		}
	}
	return result, nil
}

// customerProfile fetches a returning-customer summary with spend and order
// count signals.
func (c *Client) customerProfile(ctx context.Context, customerID int64) (string, error) {
	var payload struct {
		Customer struct {
			TotalSpent  string `json:"total_spent"`
			Currency    string `json:"currency"`
			OrdersCount int    `json:"orders_count"`
		} `json:"customer"`
	}
	path := fmt.Sprintf("customers/%d.json", customerID)
	if err := c.getREST(ctx, path, nil, &payload); err != nil {
		return "", err
	}
	cust := payload.Customer
	return fmt.Sprintf("Returning customer: %s %s spent (%d orders)",
		cust.TotalSpent, cust.Currency, cust.OrdersCount), nil
}

// LookupOrderVerified returns real-time order status. The caller-provided
// email must match the order on record; a mismatch reveals nothing.
func (c *Client) LookupOrderVerified(ctx context.Context, orderNumber, email string) (*OrderStatus, error) {
	cleanNumber := strings.TrimSpace(strings.ReplaceAll(orderNumber, "#", ""))
	cleanEmail := strings.ToLower(strings.TrimSpace(email))
	if cleanEmail == "" {
		return &OrderStatus{Found: false, Error: "Email is required for verification."}, nil
	}

	params := url.Values{"status": {"any"}}
	if cleanNumber != "" {
		params.Set("name", cleanNumber)
	} else {
		params.Set("email", cleanEmail)
		params.Set("limit", "1")
		params.Set("order", "created_at desc")
	}

	var payload struct {
		Orders []restOrder `json:"orders"`
	}
	if err := c.getREST(ctx, "orders.json", params, &payload); err != nil {
		return nil, err
	}

	var target *restOrder
	if cleanNumber != "" {
		for i := range payload.Orders {
			o := &payload.Orders[i]
			name := strings.TrimSpace(strings.ReplaceAll(o.Name, "#", ""))
			if name == cleanNumber && strings.ToLower(o.Email) == cleanEmail {
				target = o
				break
			}
		}
	} else if len(payload.Orders) > 0 {
		target = &payload.Orders[0]
	}
	if target == nil {
		return &OrderStatus{Found: false, Error: "Order not found or email mismatch."}, nil
	}

	result := &OrderStatus{
		Found:   true,
		OrderID: target.Name,
		Payment: target.FinancialStatus,
		Status:  fulfillmentOrDefault(target.FulfillmentStatus),
		Total:   fmt.Sprintf("%s %s", target.TotalPrice, target.Currency),
	}
	if len(target.CreatedAt) >= 10 {
		result.Date = target.CreatedAt[:10]
	}
	for _, li := range target.LineItems {
		result.Items = append(result.Items, fmt.Sprintf("%dx %s", li.Quantity, li.Name))
	}
	for _, f := range target.Fulfillments {
		if f.TrackingNumber != "" {
			result.TrackingNumbers = append(result.TrackingNumbers, f.TrackingNumber)
		}
		if f.TrackingURL != "" {
			result.TrackingURLs = append(result.TrackingURLs, f.TrackingURL)
		}
	}
	return result, nil
}

// ProductIntelligence finds a product by title and assembles metafields plus
// real inventory levels per variant.
func (c *Client) ProductIntelligence(ctx context.Context, searchTerm string) (*ProductIntel, error) {
	var payload struct {
		Products []struct {
			ID       int64  `json:"id"`
			Title    string `json:"title"`
			Tags     string `json:"tags"`
			Variants []struct {
				Title           string `json:"title"`
				InventoryItemID int64  `json:"inventory_item_id"`
			} `json:"variants"`
			Images []struct {
				Src string `json:"src"`
			} `json:"images"`
		} `json:"products"`
	}
	params := url.Values{"limit": {"1"}, "title": {searchTerm}}
	if err := c.getREST(ctx, "products.json", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Products) == 0 {
		return &ProductIntel{Found: false, Message: "Product not found."}, nil
	}

	prod := payload.Products[0]
	result := &ProductIntel{
		Found:      true,
		Title:      prod.Title,
		Tags:       prod.Tags,
		Metafields: map[string]string{},
	}
	if len(prod.Images) > 0 {
		result.ImageURL = prod.Images[0].Src
	}

	var meta struct {
		Metafields []struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		} `json:"metafields"`
	}
	metaPath := fmt.Sprintf("products/%d/metafields.json", prod.ID)
	if err := c.getREST(ctx, metaPath, nil, &meta); err == nil {
		for _, m := range meta.Metafields {
			result.Metafields[m.Key] = truncate(strings.Trim(string(m.Value), `"`), 200)
		}
	}

	for _, variant := range prod.Variants {
		stock, err := c.inventoryAvailable(ctx, variant.InventoryItemID)
		if err != nil {
			stock = 0
		}
		result.TotalStock += stock
		result.VariantsBreakdown = append(result.VariantsBreakdown,
			fmt.Sprintf("%s (Stock: %d)", variant.Title, stock))
	}
	return result, nil
}

// inventoryAvailable sums available units across locations for one item.
func (c *Client) inventoryAvailable(ctx context.Context, inventoryItemID int64) (int, error) {
	var payload struct {
		InventoryLevels []struct {
			Available int `json:"available"`
		} `json:"inventory_levels"`
	}
	params := url.Values{"inventory_item_ids": {fmt.Sprintf("%d", inventoryItemID)}}
	if err := c.getREST(ctx, "inventory_levels.json", params, &payload); err != nil {
		return 0, err
	}
	total := 0
	for _, level := range payload.InventoryLevels {
		total += level.Available
	}
	return total, nil
}

// SearchProductStock runs the composite products+variants+inventory GraphQL
// query used for catalog-wide availability questions.
func (c *Client) SearchProductStock(ctx context.Context, searchTerm string) (*Catalog, error) {
	queryFilter := "status:active"
	if searchTerm != "" {
		queryFilter += fmt.Sprintf(" AND title:*%s*", searchTerm)
	}

	query := fmt.Sprintf(`{
  products(first: 5, query: %q) {
    edges {
      node {
        id
        title
        onlineStoreUrl
        variants(first: 10) {
          edges {
            node {
              title
              sku
              inventoryQuantity
            }
          }
        }
      }
    }
  }
}`, queryFilter)

	var payload struct {
		Data struct {
			Products struct {
				Edges []struct {
					Node struct {
						Title          string `json:"title"`
						OnlineStoreURL string `json:"onlineStoreUrl"`
						Variants       struct {
							Edges []struct {
								Node struct {
									InventoryQuantity int `json:"inventoryQuantity"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"variants"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"products"`
		} `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := c.postGraphQL(ctx, query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", string(payload.Errors))
	}

	catalog := &Catalog{}
	for _, edge := range payload.Data.Products.Edges {
		node := edge.Node
		totalStock := 0
		for _, v := range node.Variants.Edges {
			totalStock += v.Node.InventoryQuantity
		}
		status := "Sold Out"
		if totalStock > 0 {
			status = "In Stock"
		}
		catalog.Products = append(catalog.Products, CatalogProduct{
			Name:       node.Title,
			URL:        node.OnlineStoreURL,
			Status:     status,
			TotalStock: totalStock,
		})
	}
	if len(catalog.Products) == 0 {
		catalog.Message = "No products found."
		return catalog, nil
	}
	catalog.Found = true
	return catalog, nil
}

// StoreContext assembles the active discounts and policy links injected into
// each run's system prompt. A partial or failed fetch degrades to whatever
// was collected; runs never abort on missing store context.
func (c *Client) StoreContext(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("ACTIVE DISCOUNTS:\n")

	var rules struct {
		PriceRules []struct {
			Title     string `json:"title"`
			Value     string `json:"value"`
			ValueType string `json:"value_type"`
		} `json:"price_rules"`
	}
	if err := c.getREST(ctx, "price_rules.json", nil, &rules); err != nil {
		c.log.Warn().Err(err).Msg("failed to fetch price rules for store context")
	} else {
		for _, r := range rules.PriceRules {
			val := r.Value + "%"
			if r.ValueType == "fixed_amount" {
				val = "-" + r.Value
			}
			sb.WriteString(fmt.Sprintf("- %s (%s OFF)\n", r.Title, val))
		}
	}

	sb.WriteString("\nSTORE POLICIES:\n")
	var policies struct {
		Policies []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"policies"`
	}
	if err := c.getREST(ctx, "policies.json", nil, &policies); err != nil {
		c.log.Warn().Err(err).Msg("failed to fetch policies for store context")
	} else {
		for _, p := range policies.Policies {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", p.Title, p.URL))
		}
	}
	return sb.String()
}

func (c *Client) baseURL() string {
	if strings.Contains(c.cfg.StoreURL, "://") {
		return c.cfg.StoreURL
	}
	return "https://" + c.cfg.StoreURL
}

// getREST performs a GET against the Admin REST API through the breaker.
func (c *Client) getREST(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL(), c.cfg.APIVersion, path)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

// postGraphQL performs a GraphQL query through the breaker.
func (c *Client) postGraphQL(ctx context.Context, query string, out any) error {
	endpoint := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL(), c.cfg.APIVersion)
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql query: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Shopify-Access-Token", c.cfg.AccessToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("shopify api returned status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to decode shopify response: %w", err)
		}
		return nil, nil
	})
	return err
}

func fulfillmentOrDefault(status string) string {
	switch status {
	case "fulfilled":
		return "Fulfilled"
	case "partial":
		return "Partially Fulfilled"
	case "restocked":
		return "Restocked"
	case "":
		return "Unfulfilled"
	default:
		return status
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
