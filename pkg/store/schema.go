package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the state store schema.
const Schema = `
-- Cases table
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    uploader_id TEXT NOT NULL,
    conversation TEXT,
    file_name TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    correlation_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    wait_deadline TIMESTAMP,
    last_sequence INTEGER NOT NULL DEFAULT 0
);

-- Append-only audit event log, ordered by (case_id, sequence)
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    event_type TEXT NOT NULL,
    status_after TEXT,
    actor_type TEXT NOT NULL,
    actor_user_id TEXT,
    actor_ip TEXT,
    data TEXT,
    pointers TEXT,
    redactions TEXT,
    UNIQUE(case_id, sequence)
);

-- Submission fingerprints: presence means duplicate
CREATE TABLE IF NOT EXISTS fingerprints (
    fingerprint_hex TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    external_order_id TEXT
);

-- Durable retry queue for external submission
CREATE TABLE IF NOT EXISTS retry_queue (
    case_id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMP NOT NULL,
    last_error TEXT,
    claimed_until TIMESTAMP
);

-- Outbox of external-facing events awaiting delivery
CREATE TABLE IF NOT EXISTS outbox (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    processed_at TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'pending'
);

-- Catalog cache: customers
CREATE TABLE IF NOT EXISTS cache_customers (
    external_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    company_name TEXT,
    status TEXT NOT NULL,
    refreshed_at TIMESTAMP NOT NULL
);

-- Catalog cache: items
CREATE TABLE IF NOT EXISTS cache_items (
    external_id TEXT PRIMARY KEY,
    sku TEXT,
    gtin TEXT,
    name TEXT NOT NULL,
    rate REAL NOT NULL,
    status TEXT NOT NULL,
    refreshed_at TIMESTAMP NOT NULL
);

-- Per-case worker leases (TTL locks)
CREATE TABLE IF NOT EXISTS leases (
    case_id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id);
CREATE INDEX IF NOT EXISTS idx_cases_uploader ON cases(uploader_id);
CREATE INDEX IF NOT EXISTS idx_cases_wait_deadline ON cases(wait_deadline);
CREATE INDEX IF NOT EXISTS idx_events_case ON events(case_id, sequence);
CREATE INDEX IF NOT EXISTS idx_retry_next_attempt ON retry_queue(next_attempt_at);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at);
CREATE INDEX IF NOT EXISTS idx_cache_items_sku ON cache_items(sku);
CREATE INDEX IF NOT EXISTS idx_cache_items_gtin ON cache_items(gtin);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
