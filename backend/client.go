package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-commercebot/core"
)

const defaultClientTimeout = 15 * time.Second
const defaultResponseBodyLimit int64 = 2 << 20 // 2 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the commerce API client settings. APIKeyHeader/APIKey are
// optional; when both are set every request carries the pair.
type Config struct {
	BaseURL      string
	APIKeyHeader string
	APIKey       string
	Client       HTTPDoer
	Logger       core.Logger
}

// Client is the REST client for the commerce backend that owns
// customers, the catalog, and orders. The relay treats it as the single
// source of truth and never caches authoritatively.
type Client struct {
	baseURL      string
	apiKeyHeader string
	apiKey       string
	client       HTTPDoer
	logger       core.Logger
}

// NewClient builds a Client from cfg, applying defaults.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, core.ConfigMissingError{Field: "backend.url"}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL:      baseURL,
		apiKeyHeader: strings.TrimSpace(cfg.APIKeyHeader),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		client:       client,
		logger:       cfg.Logger,
	}, nil
}

type clientPayload struct {
	ID        int64   `json:"id"`
	Phone     string  `json:"phone"`
	StoreName string  `json:"store_name"`
	OwnerName string  `json:"owner_name"`
	Address   *string `json:"address"`
}

func (p clientPayload) toCustomer() core.Customer {
	customer := core.Customer{
		ID:          p.ID,
		DisplayName: p.OwnerName,
		Phone:       p.Phone,
		StoreLabel:  p.StoreName,
	}
	if p.Address != nil {
		customer.Address = *p.Address
	}
	return customer
}

type productPayload struct {
	ID          int64       `json:"id"`
	ProductName string      `json:"product_name"`
	Category    string      `json:"category"`
	Price       json.Number `json:"price"`
	ImageURL    string      `json:"image_url"`
}

func (p productPayload) toProduct() core.Product {
	return core.Product{
		ID:       p.ID,
		Name:     p.ProductName,
		Category: p.Category,
		Price:    p.Price.String(),
		ImageURL: p.ImageURL,
	}
}

type orderPayload struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Status   string `json:"status"`
}

func (p orderPayload) toOrder() core.Order {
	status := core.OrderStatus(strings.TrimSpace(p.Status))
	if status == "" {
		status = core.OrderStatusPending
	}
	return core.Order{ID: p.ID, CustomerID: p.ClientID, Status: status}
}

// CreateCustomer registers a buyer. A 409 from the backend means the
// natural key is already taken and surfaces as a typed conflict the
// identity resolver reconciles by fetching.
func (c *Client) CreateCustomer(ctx context.Context, customer core.Customer) (core.Customer, error) {
	body := map[string]any{
		"phone":      customer.Phone,
		"store_name": customer.StoreLabel,
		"owner_name": customer.DisplayName,
		"address":    nil,
	}
	if customer.Address != "" {
		body["address"] = customer.Address
	}

	status, raw, err := c.do(ctx, http.MethodPost, "/clients", nil, body)
	if err != nil {
		return core.Customer{}, c.wrapTransportErr("create_customer", err)
	}
	if status == http.StatusConflict {
		return core.Customer{}, core.BackendConflictError{NaturalKey: customer.Phone}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.Customer{}, core.BackendUnavailableError{Operation: "create_customer", Status: status}
	}

	var payload clientPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.Customer{}, c.decodeErr("create_customer", err)
	}
	return payload.toCustomer(), nil
}

// CustomerByPhone fetches the buyer record behind a natural key.
func (c *Client) CustomerByPhone(ctx context.Context, phone string) (core.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return core.Customer{}, core.BadInputError{Reason: "customer phone is empty"}
	}

	status, raw, err := c.do(ctx, http.MethodGet, "/clients/byPhone/"+url.PathEscape(phone), nil, nil)
	if err != nil {
		return core.Customer{}, c.wrapTransportErr("customer_by_phone", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.Customer{}, core.BackendUnavailableError{Operation: "customer_by_phone", Status: status}
	}

	var payload clientPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.Customer{}, c.decodeErr("customer_by_phone", err)
	}
	return payload.toCustomer(), nil
}

// UpdateCustomerPhone replaces the stand-in natural key with a real
// contact number.
func (c *Client) UpdateCustomerPhone(ctx context.Context, customerID int64, phone string) (core.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return core.Customer{}, core.BadInputError{Reason: "customer phone is empty"}
	}

	path := fmt.Sprintf("/clients/%d", customerID)
	status, raw, err := c.do(ctx, http.MethodPatch, path, nil, map[string]any{"phone": phone})
	if err != nil {
		return core.Customer{}, c.wrapTransportErr("update_customer_phone", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.Customer{}, core.BackendUnavailableError{Operation: "update_customer_phone", Status: status}
	}

	var payload clientPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.Customer{}, c.decodeErr("update_customer_phone", err)
	}
	return payload.toCustomer(), nil
}

// SearchProducts returns every catalog match for keyword. An empty match
// set is a valid result, not an error.
func (c *Client) SearchProducts(ctx context.Context, keyword string) ([]core.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, core.BadInputError{Reason: "search keyword is empty"}
	}

	query := url.Values{"keyword": []string{keyword}}
	status, raw, err := c.do(ctx, http.MethodGet, "/products/search", query, nil)
	if err != nil {
		return nil, c.wrapTransportErr("search_products", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, core.BackendUnavailableError{Operation: "search_products", Status: status}
	}

	var payloads []productPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, c.decodeErr("search_products", err)
	}
	products := make([]core.Product, 0, len(payloads))
	for _, payload := range payloads {
		products = append(products, payload.toProduct())
	}
	return products, nil
}

// CreateOrder opens a pending order for the customer. The idempotency
// key travels in both the body and a header so either side of the
// backend can enforce it.
func (c *Client) CreateOrder(ctx context.Context, customerID int64, idempotencyKey string) (core.Order, error) {
	body := map[string]any{"client_id": customerID}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		body["idempotency_key"] = key
	}

	status, raw, err := c.doWithHeaders(ctx, http.MethodPost, "/orders/init", nil, body, map[string]string{
		"X-Idempotency-Key": strings.TrimSpace(idempotencyKey),
	})
	if err != nil {
		return core.Order{}, c.wrapTransportErr("create_order", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.Order{}, core.BackendUnavailableError{Operation: "create_order", Status: status}
	}

	var payload orderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.Order{}, c.decodeErr("create_order", err)
	}
	return payload.toOrder(), nil
}

// ConfirmOrder flips the order to confirmed.
func (c *Client) ConfirmOrder(ctx context.Context, orderID int64) (core.Order, error) {
	path := fmt.Sprintf("/orders/%d", orderID)
	status, raw, err := c.do(ctx, http.MethodPatch, path, nil, map[string]any{
		"status": string(core.OrderStatusConfirmed),
	})
	if err != nil {
		return core.Order{}, c.wrapTransportErr("confirm_order", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.Order{}, core.BackendUnavailableError{Operation: "confirm_order", Status: status}
	}

	var payload orderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.Order{}, c.decodeErr("confirm_order", err)
	}
	return payload.toOrder(), nil
}

// CreateOrderItem attaches one product line to an order.
func (c *Client) CreateOrderItem(ctx context.Context, item core.OrderItem) error {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	body := map[string]any{
		"order_id":   item.OrderID,
		"product_id": item.ProductID,
		"quantity":   quantity,
	}

	status, _, err := c.do(ctx, http.MethodPost, "/order_items", nil, body)
	if err != nil {
		return c.wrapTransportErr("create_order_item", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.BackendUnavailableError{Operation: "create_order_item", Status: status}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	return c.doWithHeaders(ctx, method, path, query, body, nil)
}

func (c *Client) doWithHeaders(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	headers map[string]string,
) (int, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKeyHeader != "" && c.apiKey != "" {
		httpReq.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	for key, value := range headers {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}

	httpRes, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer httpRes.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpRes.Body, defaultResponseBodyLimit))
	if err != nil {
		return 0, nil, err
	}
	return httpRes.StatusCode, raw, nil
}

func (c *Client) wrapTransportErr(operation string, err error) error {
	return core.BackendUnavailableError{Operation: operation, Cause: err}
}

func (c *Client) decodeErr(operation string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "backend: decode "+operation+" response").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.RelayErrorBackendUnavailable).
		WithMetadata(map[string]any{"operation": operation})
}

var _ core.Backend = (*Client)(nil)
