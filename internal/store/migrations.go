package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS content_items (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '[]',
    engagement   TEXT NOT NULL DEFAULT '',
    published_at DATETIME NOT NULL,
    fetched_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_source ON content_items(source_id);
CREATE INDEX IF NOT EXISTS idx_items_published ON content_items(published_at);

CREATE TABLE IF NOT EXISTS source_freshness (
    source_id  TEXT PRIMARY KEY,
    fetched_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS engagement_snapshots (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id  TEXT NOT NULL,
    total    REAL NOT NULL,
    taken_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_item ON engagement_snapshots(item_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON engagement_snapshots(taken_at);

CREATE TABLE IF NOT EXISTS source_health (
    source_id            TEXT PRIMARY KEY,
    last_attempt_at      DATETIME NOT NULL,
    last_success_at      DATETIME NOT NULL,
    last_item_count      INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS source_overrides (
    source_id TEXT PRIMARY KEY,
    enabled   BOOLEAN NOT NULL DEFAULT 1,
    priority  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS content_items (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '[]',
    engagement   TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL,
    fetched_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_source ON content_items(source_id);
CREATE INDEX IF NOT EXISTS idx_items_published ON content_items(published_at);

CREATE TABLE IF NOT EXISTS source_freshness (
    source_id  TEXT PRIMARY KEY,
    fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS engagement_snapshots (
    id       BIGSERIAL PRIMARY KEY,
    item_id  TEXT NOT NULL,
    total    DOUBLE PRECISION NOT NULL,
    taken_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_item ON engagement_snapshots(item_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON engagement_snapshots(taken_at);

CREATE TABLE IF NOT EXISTS source_health (
    source_id            TEXT PRIMARY KEY,
    last_attempt_at      TIMESTAMPTZ NOT NULL,
    last_success_at      TIMESTAMPTZ NOT NULL,
    last_item_count      INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS source_overrides (
    source_id TEXT PRIMARY KEY,
    enabled   BOOLEAN NOT NULL DEFAULT TRUE,
    priority  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
