package store

import (
	"context"
	"database/sql"
	"time"
)

// CachedCustomer is one catalog customer row in the persistent cache tier.
type CachedCustomer struct {
	ExternalID  string
	DisplayName string
	CompanyName string
	Status      string
	RefreshedAt time.Time
}

// CachedItem is one catalog item row in the persistent cache tier.
type CachedItem struct {
	ExternalID  string
	SKU         string
	GTIN        string
	Name        string
	Rate        float64
	Status      string
	RefreshedAt time.Time
}

// ReplaceCustomers swaps the full customer cache in one transaction. The
// refresh job is the single writer.
func (s *Store) ReplaceCustomers(ctx context.Context, customers []*CachedCustomer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("begin_tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_customers`); err != nil {
		return newStorageError("clear_customers", err)
	}
	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cache_customers (external_id, display_name, company_name, status, refreshed_at)
			VALUES (?, ?, ?, ?, ?)
		`, c.ExternalID, c.DisplayName, c.CompanyName, c.Status, c.RefreshedAt); err != nil {
			return newStorageError("insert_customer", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStorageError("commit_customers", err)
	}
	return nil
}

// ReplaceItems swaps the full item cache in one transaction.
func (s *Store) ReplaceItems(ctx context.Context, items []*CachedItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("begin_tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_items`); err != nil {
		return newStorageError("clear_items", err)
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cache_items (external_id, sku, gtin, name, rate, status, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, it.ExternalID, it.SKU, it.GTIN, it.Name, it.Rate, it.Status, it.RefreshedAt); err != nil {
			return newStorageError("insert_item", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStorageError("commit_items", err)
	}
	return nil
}

// LoadCustomers returns all cached customers.
func (s *Store) LoadCustomers(ctx context.Context) ([]*CachedCustomer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, display_name, company_name, status, refreshed_at FROM cache_customers
	`)
	if err != nil {
		return nil, newStorageError("load_customers", err)
	}
	defer rows.Close()

	var result []*CachedCustomer
	for rows.Next() {
		var c CachedCustomer
		var company sql.NullString
		if err := rows.Scan(&c.ExternalID, &c.DisplayName, &company, &c.Status, &c.RefreshedAt); err != nil {
			return nil, newStorageError("scan_customer", err)
		}
		if company.Valid {
			c.CompanyName = company.String
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("load_customers", err)
	}
	return result, nil
}

// LoadItems returns all cached items.
func (s *Store) LoadItems(ctx context.Context) ([]*CachedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, sku, gtin, name, rate, status, refreshed_at FROM cache_items
	`)
	if err != nil {
		return nil, newStorageError("load_items", err)
	}
	defer rows.Close()

	var result []*CachedItem
	for rows.Next() {
		var it CachedItem
		var sku, gtin sql.NullString
		if err := rows.Scan(&it.ExternalID, &sku, &gtin, &it.Name, &it.Rate, &it.Status, &it.RefreshedAt); err != nil {
			return nil, newStorageError("scan_item", err)
		}
		if sku.Valid {
			it.SKU = sku.String
		}
		if gtin.Valid {
			it.GTIN = gtin.String
		}
		result = append(result, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("load_items", err)
	}
	return result, nil
}
