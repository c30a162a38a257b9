package tools

import (
	"context"

	"github.com/goccy/go-json"

	"support_server/adapter/out/shopify"
)

// ShopifyTools builds the commerce lookup toolset backed by one store client.
func ShopifyTools(client *shopify.Client) []Tool {
	return []Tool{
		&orderCRMTool{client: client},
		&orderAdminTool{client: client},
		&productIntelTool{client: client},
		&productStockTool{client: client},
	}
}

func marshalPayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringArg(args map[string]any, name string) string {
	if s, ok := args[name].(string); ok {
		return s
	}
	return ""
}

// orderCRMTool looks up an order together with the customer profile.
type orderCRMTool struct {
	client *shopify.Client
}

func (t *orderCRMTool) Name() string { return "lookup_order_crm" }

func (t *orderCRMTool) Description() string {
	return "Find order details and customer profile/history."
}

func (t *orderCRMTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "order_number", Type: "string", Description: "Order number (e.g. #1234)"},
		{Name: "email", Type: "string", Description: "Customer email"},
	}
}

func (t *orderCRMTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.LookupOrder(ctx, stringArg(args, "order_number"), stringArg(args, "email"))
	if err != nil {
		return "", err
	}
	return marshalPayload(result)
}

// orderAdminTool returns real-time status with email verification.
type orderAdminTool struct {
	client *shopify.Client
}

func (t *orderAdminTool) Name() string { return "lookup_order_admin" }

func (t *orderAdminTool) Description() string {
	return "Get real-time order status with tracking."
}

func (t *orderAdminTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "order_number", Type: "string", Description: "Order number"},
		{Name: "email", Type: "string", Description: "Customer email, required for verification", Required: true},
	}
}

func (t *orderAdminTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.LookupOrderVerified(ctx, stringArg(args, "order_number"), stringArg(args, "email"))
	if err != nil {
		return "", err
	}
	return marshalPayload(result)
}

// productIntelTool fetches stock, metafields, and specs for one product.
type productIntelTool struct {
	client *shopify.Client
}

func (t *productIntelTool) Name() string { return "lookup_product_intelligence" }

func (t *productIntelTool) Description() string {
	return "Find product stock, care instructions, and specifications."
}

func (t *productIntelTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "search_term", Type: "string", Description: "Product name to search", Required: true},
	}
}

func (t *productIntelTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.ProductIntelligence(ctx, stringArg(args, "search_term"))
	if err != nil {
		return "", err
	}
	return marshalPayload(result)
}

// productStockTool searches the catalog with live inventory counts.
type productStockTool struct {
	client *shopify.Client
}

func (t *productStockTool) Name() string { return "lookup_product_stock" }

func (t *productStockTool) Description() string {
	return "Search products and check real-time inventory."
}

func (t *productStockTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "search_term", Type: "string", Description: "Product name (e.g. 'T-Shirt')", Required: true},
	}
}

func (t *productStockTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.SearchProductStock(ctx, stringArg(args, "search_term"))
	if err != nil {
		return "", err
	}
	return marshalPayload(result)
}
