package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"orderdesk-hq/callisto/pkg/store"
)

// Customer is one catalog customer.
type Customer struct {
	ExternalID  string
	DisplayName string
	CompanyName string
	Status      string
}

// Item is one catalog item. Rate is the authoritative unit price.
type Item struct {
	ExternalID string
	SKU        string
	GTIN       string
	Name       string
	Rate       float64
	Status     string
}

// Source fetches the live catalog from the external system. The submit
// package's books client implements it.
type Source interface {
	FetchCustomers(ctx context.Context) ([]*Customer, error)
	FetchItems(ctx context.Context) ([]*Item, error)
}

// snapshot is one immutable cache generation. Lookups index it; the refresh
// job builds a new one and swaps the pointer.
type snapshot struct {
	customers []*Customer
	items     []*Item

	customersByName map[string][]*Customer // normalized display/company name
	itemsBySKU      map[string][]*Item
	itemsByGTIN     map[string][]*Item

	loadedAt time.Time
	stale    bool
}

// CacheConfig tunes the in-memory tier.
type CacheConfig struct {
	// TTL is how long a snapshot stays fresh. Default: 1 hour.
	TTL time.Duration
}

// Cache is the two-tier catalog cache: an atomically swapped in-memory
// snapshot over the persistent tables in the state store.
type Cache struct {
	config CacheConfig
	store  *store.Store
	source Source
	logger *slog.Logger

	current atomic.Pointer[snapshot]

	// refreshMu serializes refreshes: single-writer swap semantics.
	refreshMu sync.Mutex
}

// NewCache creates the cache. Call Warm or Refresh before first use.
func NewCache(config CacheConfig, st *store.Store, source Source) *Cache {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	return &Cache{
		config: config,
		store:  st,
		source: source,
		logger: slog.Default().With("component", "catalog.cache"),
	}
}

// Warm loads the persistent tier into memory without touching the source.
// Used at startup so resolution works before the first scheduled refresh.
func (c *Cache) Warm(ctx context.Context) error {
	cachedCustomers, err := c.store.LoadCustomers(ctx)
	if err != nil {
		return err
	}
	cachedItems, err := c.store.LoadItems(ctx)
	if err != nil {
		return err
	}

	customers := make([]*Customer, 0, len(cachedCustomers))
	for _, cc := range cachedCustomers {
		customers = append(customers, &Customer{
			ExternalID:  cc.ExternalID,
			DisplayName: cc.DisplayName,
			CompanyName: cc.CompanyName,
			Status:      cc.Status,
		})
	}
	items := make([]*Item, 0, len(cachedItems))
	for _, ci := range cachedItems {
		items = append(items, &Item{
			ExternalID: ci.ExternalID,
			SKU:        ci.SKU,
			GTIN:       ci.GTIN,
			Name:       ci.Name,
			Rate:       ci.Rate,
			Status:     ci.Status,
		})
	}

	c.current.Store(buildSnapshot(customers, items, time.Now(), false))
	c.logger.Info("catalog cache warmed from persistent tier",
		"customers", len(customers), "items", len(items))
	return nil
}

// Refresh fetches the live catalog, persists it and swaps the snapshot.
// On fetch failure the previous snapshot is kept and marked stale; stale
// data keeps serving rather than blocking resolution.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	customers, err := c.source.FetchCustomers(ctx)
	if err != nil {
		c.markStale()
		c.logger.Warn("customer catalog fetch failed, serving stale cache", "error", err)
		return err
	}
	items, err := c.source.FetchItems(ctx)
	if err != nil {
		c.markStale()
		c.logger.Warn("item catalog fetch failed, serving stale cache", "error", err)
		return err
	}

	now := time.Now()

	// Persist the fresh copy before swapping so a restart warms correctly.
	cachedCustomers := make([]*store.CachedCustomer, 0, len(customers))
	for _, cu := range customers {
		cachedCustomers = append(cachedCustomers, &store.CachedCustomer{
			ExternalID:  cu.ExternalID,
			DisplayName: cu.DisplayName,
			CompanyName: cu.CompanyName,
			Status:      cu.Status,
			RefreshedAt: now,
		})
	}
	if err := c.store.ReplaceCustomers(ctx, cachedCustomers); err != nil {
		return err
	}
	cachedItems := make([]*store.CachedItem, 0, len(items))
	for _, it := range items {
		cachedItems = append(cachedItems, &store.CachedItem{
			ExternalID:  it.ExternalID,
			SKU:         it.SKU,
			GTIN:        it.GTIN,
			Name:        it.Name,
			Rate:        it.Rate,
			Status:      it.Status,
			RefreshedAt: now,
		})
	}
	if err := c.store.ReplaceItems(ctx, cachedItems); err != nil {
		return err
	}

	c.current.Store(buildSnapshot(customers, items, now, false))
	c.logger.Info("catalog cache refreshed", "customers", len(customers), "items", len(items))
	return nil
}

// Snapshot returns the current generation, refreshing synchronously when
// empty. The stale flag tells callers the data may be out of date.
func (c *Cache) Snapshot(ctx context.Context) (customers []*Customer, items []*Item, stale bool, err error) {
	snap := c.current.Load()
	if snap == nil {
		// Cache miss: blocking fetch.
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			snap = c.current.Load()
			if snap == nil {
				return nil, nil, false, refreshErr
			}
		} else {
			snap = c.current.Load()
		}
	}

	expired := time.Since(snap.loadedAt) > c.config.TTL
	return snap.customers, snap.items, snap.stale || expired, nil
}

func (c *Cache) markStale() {
	if snap := c.current.Load(); snap != nil && !snap.stale {
		staleCopy := *snap
		staleCopy.stale = true
		c.current.Store(&staleCopy)
	}
}

// lookup returns the current snapshot's indexes, or nil when unloaded.
func (c *Cache) lookup() *snapshot {
	return c.current.Load()
}

func buildSnapshot(customers []*Customer, items []*Item, at time.Time, stale bool) *snapshot {
	snap := &snapshot{
		customers:       customers,
		items:           items,
		customersByName: map[string][]*Customer{},
		itemsBySKU:      map[string][]*Item{},
		itemsByGTIN:     map[string][]*Item{},
		loadedAt:        at,
		stale:           stale,
	}
	for _, cu := range customers {
		if n := NormalizeName(cu.DisplayName); n != "" {
			snap.customersByName[n] = append(snap.customersByName[n], cu)
		}
		if n := NormalizeName(cu.CompanyName); n != "" && NormalizeName(cu.CompanyName) != NormalizeName(cu.DisplayName) {
			snap.customersByName[n] = append(snap.customersByName[n], cu)
		}
	}
	for _, it := range items {
		if k := NormalizeSKU(it.SKU); k != "" {
			snap.itemsBySKU[k] = append(snap.itemsBySKU[k], it)
		}
		if k := NormalizeGTIN(it.GTIN); k != "" {
			snap.itemsByGTIN[k] = append(snap.itemsByGTIN[k], it)
		}
	}
	return snap
}
