package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(t, &adapter.Mock{})
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2026-01-11",
			"clientInfo": map[string]string{
				"name":    "test-client",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"get_cart":           false,
		"add_item":           false,
		"apply_coupon":       false,
		"set_payment_method": false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPAddItemAndGetCart(t *testing.T) {
	h, mux := testHandler(t, mirrorMock())
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_item", map[string]interface{}{
		"product_id": 1,
		"name":       "Kurta",
		"price":      "400.00",
		"quantity":   2,
		"in_stock":   true,
	})
	if result.IsError {
		t.Fatalf("add_item failed: %+v", result.Content)
	}
	cart := toolCart(t, result)
	if cart.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", cart.ItemCount)
	}
	// 800.00 is above the free-shipping threshold
	if cart.Total != "800.00" || cart.ShippingCost != "0.00" {
		t.Errorf("Total = %s ShippingCost = %s, want 800.00 / 0.00", cart.Total, cart.ShippingCost)
	}
	if got := h.session.Ledger().ItemCount(); got != 2 {
		t.Errorf("ledger ItemCount = %d, want 2", got)
	}

	result = callTool(t, mux, sessionID, "get_cart", map[string]interface{}{"refresh": true})
	if result.IsError {
		t.Fatalf("get_cart failed: %+v", result.Content)
	}
	if cart := toolCart(t, result); len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", cart.Items)
	}
}

func TestMCPAddItemOutOfStock(t *testing.T) {
	_, mux := testHandler(t, mirrorMock())
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_item", map[string]interface{}{
		"product_id": 1,
		"name":       "Kurta",
		"price":      "400.00",
		"quantity":   1,
		"in_stock":   false,
	})
	if !result.IsError {
		t.Fatal("expected tool error for out-of-stock product")
	}
	if len(result.Content) == 0 || !strings.HasPrefix(result.Content[0].Text, "STOCK_LIMIT: ") {
		t.Errorf("content = %+v, want STOCK_LIMIT error", result.Content)
	}
}

func TestMCPApplyCouponError(t *testing.T) {
	mock := mirrorMock()
	mock.ApplyCouponFunc = func(ctx context.Context, code string) (*model.RemoteCart, error) {
		return nil, model.NewRemoteError(http.StatusBadRequest, "woocommerce_rest_cart_coupon_error",
			"<strong>Coupon &quot;"+code+"&quot;</strong> has expired.")
	}
	_, mux := testHandler(t, mock)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "apply_coupon", map[string]interface{}{"code": "OLD"})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	want := `woocommerce_rest_cart_coupon_error: Coupon "OLD" has expired.`
	if len(result.Content) == 0 || result.Content[0].Text != want {
		t.Errorf("content = %+v, want %q", result.Content, want)
	}
}

func TestMCPSetPaymentMethod(t *testing.T) {
	_, mux := testHandler(t, mirrorMock())
	sessionID := initMCPSession(t, mux)

	callTool(t, mux, sessionID, "add_item", map[string]interface{}{
		"product_id": 1, "name": "Kurta", "price": "400.00", "quantity": 1, "in_stock": true,
	})

	result := callTool(t, mux, sessionID, "set_payment_method", map[string]interface{}{"payment_method": "card"})
	if result.IsError {
		t.Fatalf("set_payment_method failed: %+v", result.Content)
	}
	cart := toolCart(t, result)
	if cart.PaymentMethod != "card" || cart.Total != "479.00" {
		t.Errorf("PaymentMethod = %s Total = %s, want card / 479.00", cart.PaymentMethod, cart.Total)
	}

	result = callTool(t, mux, sessionID, "set_payment_method", map[string]interface{}{"payment_method": "upi"})
	if !result.IsError {
		t.Error("expected tool error for unsupported method")
	}
}

// callTool invokes a tool and decodes its result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected JSON-RPC error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("%s: failed to parse tool result: %v", name, err)
	}
	return result
}

func toolCart(t *testing.T, result callToolResult) CartView {
	t.Helper()
	var cart CartView
	if err := json.Unmarshal(result.StructuredContent, &cart); err != nil {
		t.Fatalf("failed to parse structured content: %v", err)
	}
	return cart
}

func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2026-01-11",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
