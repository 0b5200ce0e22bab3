package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-commercebot/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const customerCacheKeyPrefix = "go-commercebot::customer::v1"

// CachedCustomerLookup decorates a backend with a read-through cache on
// phone lookups. Identity resolution hits CustomerByPhone on every
// conflict reconciliation, so warm entries spare the commerce API a
// round trip per conversation. Writes that touch a customer invalidate
// the entry for its phone.
type CachedCustomerLookup struct {
	base  core.Backend
	cache repositorycache.CacheService
}

func NewCachedCustomerLookup(base core.Backend, cacheService repositorycache.CacheService) (*CachedCustomerLookup, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base backend is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: customer cache service is required")
	}
	return &CachedCustomerLookup{base: base, cache: cacheService}, nil
}

// CustomerCacheKey returns the deterministic cache key contract for
// phone lookups: go-commercebot::customer::v1::<phone> with the phone
// URL-path escaped.
func CustomerCacheKey(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("sqlstore: phone is required")
	}
	return customerCacheKeyPrefix + "::" + url.PathEscape(phone), nil
}

func (c *CachedCustomerLookup) CustomerByPhone(ctx context.Context, phone string) (core.Customer, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: cached customer lookup is not configured")
	}
	cacheKey, err := CustomerCacheKey(phone)
	if err != nil {
		return core.Customer{}, err
	}
	return repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(ctx context.Context) (core.Customer, error) {
		return c.base.CustomerByPhone(ctx, phone)
	})
}

func (c *CachedCustomerLookup) CreateCustomer(ctx context.Context, customer core.Customer) (core.Customer, error) {
	created, err := c.base.CreateCustomer(ctx, customer)
	if err != nil {
		return core.Customer{}, err
	}
	if err := c.invalidate(ctx, created.Phone); err != nil {
		return core.Customer{}, err
	}
	return created, nil
}

func (c *CachedCustomerLookup) UpdateCustomerPhone(ctx context.Context, customerID int64, phone string) (core.Customer, error) {
	updated, err := c.base.UpdateCustomerPhone(ctx, customerID, phone)
	if err != nil {
		return core.Customer{}, err
	}
	if err := c.invalidate(ctx, phone); err != nil {
		return core.Customer{}, err
	}
	return updated, nil
}

func (c *CachedCustomerLookup) SearchProducts(ctx context.Context, keyword string) ([]core.Product, error) {
	return c.base.SearchProducts(ctx, keyword)
}

func (c *CachedCustomerLookup) CreateOrder(ctx context.Context, customerID int64, idempotencyKey string) (core.Order, error) {
	return c.base.CreateOrder(ctx, customerID, idempotencyKey)
}

func (c *CachedCustomerLookup) ConfirmOrder(ctx context.Context, orderID int64) (core.Order, error) {
	return c.base.ConfirmOrder(ctx, orderID)
}

func (c *CachedCustomerLookup) CreateOrderItem(ctx context.Context, item core.OrderItem) error {
	return c.base.CreateOrderItem(ctx, item)
}

func (c *CachedCustomerLookup) invalidate(ctx context.Context, phone string) error {
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	cacheKey, err := CustomerCacheKey(phone)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, cacheKey)
}

var _ core.Backend = (*CachedCustomerLookup)(nil)
