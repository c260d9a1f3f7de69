// MCP transport for the cart core using the official MCP Go SDK.
// Exposes the operations an agent needs to build and price a cart.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"

	"storefront/internal/ledger"
	"storefront/internal/model"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart tool.
type GetCartInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"force a round trip to the pricing backend"`
}

// AddItemInput is the input schema for add_item tool.
type AddItemInput struct {
	ProductID     int               `json:"product_id" jsonschema:"product ID"`
	Name          string            `json:"name" jsonschema:"product display name"`
	Price         string            `json:"price" jsonschema:"unit price in major units, e.g. 499.00"`
	Quantity      int               `json:"quantity" jsonschema:"quantity to add"`
	InStock       bool              `json:"in_stock" jsonschema:"whether the product is in stock"`
	ManageStock   bool              `json:"manage_stock,omitempty" jsonschema:"whether stock_quantity is enforced"`
	StockQuantity int               `json:"stock_quantity,omitempty" jsonschema:"units available when stock is managed"`
	PurchaseLimit int               `json:"purchase_limit,omitempty" jsonschema:"per-product purchase limit"`
	VariationID   int               `json:"variation_id,omitempty" jsonschema:"variation ID"`
	Attributes    map[string]string `json:"attributes,omitempty" jsonschema:"selected variation attributes"`
	Customized    bool              `json:"customized,omitempty" jsonschema:"adds the customization surcharge"`
}

// ApplyCouponInput is the input schema for apply_coupon tool.
type ApplyCouponInput struct {
	Code string `json:"code" jsonschema:"coupon code"`
}

// SetPaymentMethodInput is the input schema for set_payment_method tool.
type SetPaymentMethodInput struct {
	PaymentMethod string `json:"payment_method" jsonschema:"cod or card"`
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes a subset of the REST API via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart core. Use these tools to build a cart, " +
				"apply coupons, pick a payment method and read the priced total.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart with its reconciled price summary.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add a product to the cart. Quantities merge into an existing line with the same product, variation and customization.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_coupon",
		Description: "Apply a coupon code to the cart.",
	}, h.mcpApplyCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_payment_method",
		Description: "Switch the payment method between cod (cash on delivery) and card.",
	}, h.mcpSetPaymentMethod)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, *CartView, error) {
	if input.Refresh {
		if _, err := h.session.Refresh(ctx); err != nil {
			return nil, nil, h.mcpError(err)
		}
	}
	return h.mcpCart(ctx)
}

func (h *Handler) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, *CartView, error) {
	if input.ProductID <= 0 {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	price, err := decimal.NewFromString(input.Price)
	if err != nil || price.IsNegative() {
		return nil, nil, h.mcpError(model.NewValidationError("price", "must be a non-negative decimal amount"))
	}

	product := ledger.Product{
		ID:            input.ProductID,
		Name:          input.Name,
		Price:         price,
		InStock:       input.InStock,
		ManageStock:   input.ManageStock,
		StockQuantity: input.StockQuantity,
		PurchaseLimit: input.PurchaseLimit,
	}
	err = h.session.Ledger().AddItem(ctx, product, input.Quantity,
		ledger.WithVariation(input.VariationID),
		ledger.WithAttributes(input.Attributes),
		ledger.WithCustomized(input.Customized),
	)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpCart(ctx)
}

func (h *Handler) mcpApplyCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ApplyCouponInput,
) (*mcp.CallToolResult, *CartView, error) {
	if _, err := h.session.Coupons().Apply(ctx, input.Code); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpCart(ctx)
}

func (h *Handler) mcpSetPaymentMethod(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetPaymentMethodInput,
) (*mcp.CallToolResult, *CartView, error) {
	pm, err := model.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if _, err := h.session.SetPaymentMethod(ctx, pm); err != nil {
		h.logger.WarnContext(ctx, "cart sync after payment switch failed", "error", err.Error())
	}
	return h.mcpCart(ctx)
}

func (h *Handler) mcpCart(ctx context.Context) (*mcp.CallToolResult, *CartView, error) {
	q, err := h.session.Quote(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, newCartView(q), nil
}

// mcpError converts core errors to MCP-friendly errors.
// Internal details are logged, not returned.
func (h *Handler) mcpError(err error) error {
	body := h.bodyOf(err)
	return fmt.Errorf("%s: %s", body.Code, body.Message)
}
