// cartctl is a CLI tool for driving the local storefront cart API.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl get [-refresh]
//	cartctl add -product ID -name NAME -price 499.00 [-qty N] [-customized]
//	cartctl update -product ID -qty N
//	cartctl remove -product ID
//	cartctl pay -method cod|card
//	cartctl address -postcode 560001 [-country IN] [-city ...] [-submit]
//	cartctl coupon -code CODE [-remove]
//	cartctl coupons
//	cartctl notices [-clear]
//
// Examples:
//
//	cartctl add -product 101 -name "Cotton Kurta" -price 499.00
//	cartctl pay -method card
//	cartctl coupon -code WELCOME10
//	TOTAL=$(cartctl get -q)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "get":
		runGet(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "pay":
		runPay(args)
	case "address":
		runAddress(args)
	case "coupon":
		runCoupon(args)
	case "coupons":
		runCoupons(args)
	case "notices":
		runNotices(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - storefront cart test tool

Usage:
  cartctl <command> [options]

Commands:
  get       Show the priced cart
  add       Add a product line
  update    Set a line quantity (0 removes)
  remove    Remove a product's lines
  pay       Switch payment method (cod, card)
  address   Send a shipping address (debounced unless -submit)
  coupon    Apply or remove a coupon
  coupons   List promoted coupons
  notices   Show recent notifications

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the global flags on a command's flag set.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOrDefault("CARTCTL_SERVER", "http://localhost:8080"), "storefront base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the total")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runGet(args []string) {
	fs := newFlagSet("get", "get [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printCart(resp)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product ID -name NAME -price AMOUNT [options]")
	var (
		productID  int
		name       string
		price      string
		quantity   int
		customized bool
		outOfStock bool
	)
	fs.IntVar(&productID, "product", 0, "Product ID (required)")
	fs.StringVar(&name, "name", "", "Product name")
	fs.StringVar(&price, "price", "", "Unit price in major units (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity")
	fs.BoolVar(&customized, "customized", false, "Add the customization surcharge")
	fs.BoolVar(&outOfStock, "out-of-stock", false, "Mark the product out of stock")
	parse(fs, args)

	if productID <= 0 || price == "" {
		fs.Usage()
		os.Exit(1)
	}
	if name == "" {
		name = "Product " + strconv.Itoa(productID)
	}

	reqBody := map[string]interface{}{
		"product": map[string]interface{}{
			"id":       productID,
			"name":     name,
			"price":    price,
			"in_stock": !outOfStock,
		},
		"quantity":   quantity,
		"customized": customized,
	}
	resp, err := doRequest("POST", "/cart/items", reqBody)
	if err != nil {
		fatal("Failed to add item: %v", err)
	}
	printSuccess("Added %s", name)
	printCart(resp)
}

func runUpdate(args []string) {
	fs := newFlagSet("update", "update -product ID -qty N")
	var productID, quantity int
	fs.IntVar(&productID, "product", 0, "Product ID (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity (required, 0 removes)")
	parse(fs, args)

	if productID <= 0 || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PATCH", "/cart/items/"+strconv.Itoa(productID), map[string]int{"quantity": quantity})
	if err != nil {
		fatal("Failed to update item: %v", err)
	}
	printCart(resp)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -product ID")
	var productID int
	fs.IntVar(&productID, "product", 0, "Product ID (required)")
	parse(fs, args)

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("DELETE", "/cart/items/"+strconv.Itoa(productID), nil)
	if err != nil {
		fatal("Failed to remove item: %v", err)
	}
	printCart(resp)
}

func runPay(args []string) {
	fs := newFlagSet("pay", "pay -method cod|card")
	var method string
	fs.StringVar(&method, "method", "", "Payment method: cod or card (required)")
	parse(fs, args)

	if method == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PUT", "/cart/payment-method", map[string]string{"payment_method": method})
	if err != nil {
		fatal("Failed to switch payment method: %v", err)
	}
	printSuccess("Paying by %s", method)
	printCart(resp)
}

func runAddress(args []string) {
	fs := newFlagSet("address", "address -postcode CODE [options]")
	addr := map[string]*string{}
	for _, field := range []struct{ name, def, usage string }{
		{"first_name", "Test", "First name"},
		{"last_name", "Buyer", "Last name"},
		{"address_1", "1 Main Road", "Street address"},
		{"city", "Bengaluru", "City"},
		{"state", "KA", "State code"},
		{"postcode", "", "Postcode (required)"},
		{"country", "IN", "Country code"},
		{"phone", "9999999999", "Phone"},
	} {
		addr[field.name] = fs.String(strings.ReplaceAll(field.name, "_", "-"), field.def, field.usage)
	}
	var submit bool
	fs.BoolVar(&submit, "submit", false, "Submit immediately with full validation")
	parse(fs, args)

	if *addr["postcode"] == "" {
		fs.Usage()
		os.Exit(1)
	}

	reqBody := make(map[string]string, len(addr))
	for k, v := range addr {
		reqBody[k] = *v
	}

	if !submit {
		resp, err := doRequest("PUT", "/cart/address", reqBody)
		if err != nil {
			fatal("Failed to send address: %v", err)
		}
		if status, _ := resp["status"].(string); status == "accepted" {
			printSuccess("Address queued")
		} else {
			printWarning("Address ignored until it is complete")
		}
		return
	}

	resp, err := doRequest("POST", "/cart/address", reqBody)
	if err != nil {
		fatal("Failed to submit address: %v", err)
	}
	printSuccess("Address updated")
	printCart(resp)
}

func runCoupon(args []string) {
	fs := newFlagSet("coupon", "coupon -code CODE [-remove]")
	var code string
	var remove bool
	fs.StringVar(&code, "code", "", "Coupon code (required)")
	fs.BoolVar(&remove, "remove", false, "Remove instead of apply")
	parse(fs, args)

	if code == "" {
		fs.Usage()
		os.Exit(1)
	}

	var (
		resp map[string]interface{}
		err  error
	)
	if remove {
		resp, err = doRequest("DELETE", "/cart/coupons/"+url.PathEscape(code), nil)
	} else {
		resp, err = doRequest("POST", "/cart/coupons", map[string]string{"code": code})
	}
	if err != nil {
		fatal("Coupon %s failed: %v", code, err)
	}
	printCart(resp)
}

func runCoupons(args []string) {
	fs := newFlagSet("coupons", "coupons")
	parse(fs, args)

	resp, err := doRequest("GET", "/coupons", nil)
	if err != nil {
		fatal("Failed to list coupons: %v", err)
	}
	coupons, _ := resp["coupons"].([]interface{})
	for _, c := range coupons {
		if m, ok := c.(map[string]interface{}); ok {
			if quiet {
				fmt.Println(m["code"])
				continue
			}
			fmt.Printf("  %s%v%s %s%v%s\n", colorCyan, m["code"], colorReset, colorGray, m["description"], colorReset)
		}
	}
}

func runNotices(args []string) {
	fs := newFlagSet("notices", "notices [-clear]")
	var clearAfter bool
	fs.BoolVar(&clearAfter, "clear", false, "Clear after reading")
	parse(fs, args)

	path := "/notifications"
	if clearAfter {
		path += "?clear=true"
	}
	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to read notifications: %v", err)
	}
	printNotifications(resp)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration, resp.Header.Get("X-Request-ID"))
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s (%s)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(cart map[string]interface{}) {
	total, _ := cart["total"].(string)
	if quiet {
		fmt.Println(total)
		return
	}

	items, _ := cart["items"].([]interface{})
	for _, it := range items {
		if m, ok := it.(map[string]interface{}); ok {
			fmt.Printf("  %v × %s @ %v\n", m["quantity"], m["name"], m["unit_price"])
		}
	}
	fmt.Printf("  Subtotal: %v\n", cart["subtotal"])
	fmt.Printf("  Shipping: %v %s(%v)%s\n", cart["shipping_cost"], colorGray, cart["shipping_state"], colorReset)
	if pm, _ := cart["payment_method"].(string); pm == "cod" {
		fmt.Printf("  COD fee:  %v\n", cart["cod_fee"])
	}
	if d, _ := cart["discount"].(string); d != "" && d != "0.00" {
		fmt.Printf("  Discount: -%s\n", d)
	}
	fmt.Printf("  %sTotal: %s%s%s\n", colorBold, colorGreen, total, colorReset)

	if corrections, ok := cart["corrections"].([]interface{}); ok && len(corrections) > 0 {
		fmt.Printf("  %scorrected for backend lag: %v%s\n", colorGray, corrections, colorReset)
	}
	if stale, _ := cart["stale"].(bool); stale {
		printWarning("Backend unreachable; showing last known prices")
	}
}

func printNotifications(resp map[string]interface{}) {
	notes, _ := resp["notifications"].([]interface{})
	for _, n := range notes {
		m, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		level, _ := m["level"].(string)
		text, _ := m["message"].(string)
		switch level {
		case "error":
			printError("%s", text)
		case "warning":
			printWarning("%s", text)
		case "success":
			printSuccess("%s", text)
		default:
			fmt.Printf("%s  ℹ %s%s\n", colorGray, text, colorReset)
		}
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration, requestID string) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v) %s%s%s\n", colorCyan, colorReset, statusColor, status, colorReset, duration, colorGray, requestID, colorReset)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
