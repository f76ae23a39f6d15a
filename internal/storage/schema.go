package storage

const schemaSQL = `
CREATE TABLE IF NOT EXISTS forecasters (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS markets (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    close_date INTEGER,
    outcome REAL,
    resolution_source TEXT NOT NULL DEFAULT '',
    resolution_notes TEXT NOT NULL DEFAULT '',
    resolved_at INTEGER
);

CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    market_id TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
    forecaster_id TEXT NOT NULL,
    is_anonymous INTEGER NOT NULL,
    probability REAL NOT NULL,
    confidence TEXT NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER,
    UNIQUE (market_id, forecaster_id)
);
CREATE INDEX IF NOT EXISTS idx_predictions_forecaster ON predictions(forecaster_id);

CREATE TABLE IF NOT EXISTS prediction_updates (
    prediction_id TEXT NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    prior_value REAL NOT NULL,
    new_value REAL NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    sources TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (prediction_id, seq)
);

CREATE TABLE IF NOT EXISTS odds_snapshots (
    id TEXT PRIMARY KEY,
    market_id TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
    period TEXT NOT NULL,
    bucket_start INTEGER NOT NULL,
    captured_at INTEGER NOT NULL,
    prediction_count INTEGER NOT NULL,
    median REAL,
    mean REAL,
    std_deviation REAL,
    probability REAL,
    decimal_odds REAL,
    fractional TEXT,
    confidence_high INTEGER NOT NULL,
    confidence_medium INTEGER NOT NULL,
    confidence_low INTEGER NOT NULL,
    range_0_25 INTEGER NOT NULL,
    range_25_50 INTEGER NOT NULL,
    range_50_75 INTEGER NOT NULL,
    range_75_100 INTEGER NOT NULL,
    UNIQUE (market_id, period, bucket_start)
);

CREATE TABLE IF NOT EXISTS change_events (
    id TEXT PRIMARY KEY,
    market_id TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    ts INTEGER NOT NULL,
    trigger_type TEXT NOT NULL,
    prediction_count INTEGER NOT NULL,
    probability REAL,
    decimal_odds REAL,
    change REAL NOT NULL,
    UNIQUE (market_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_change_events_market ON change_events(market_id, ts, seq);
`
