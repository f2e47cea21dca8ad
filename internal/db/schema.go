package db

const schemaSQL = `
-- ===========================================================================
-- APPS (app identity fingerprint, one row per distinct executable+cwd+argv)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS apps (
  app_id TEXT PRIMARY KEY,
  app_unique_info TEXT NOT NULL,
  restart_dt TEXT NOT NULL
);

-- ===========================================================================
-- STATE (one row per job signature, scoped to the owning app)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS state (
  app_id TEXT NOT NULL,
  signature TEXT NOT NULL,
  readable TEXT,
  log TEXT NOT NULL DEFAULT '',
  err TEXT NOT NULL DEFAULT '',
  start_dt TEXT,
  end_dt TEXT,
  disabled INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (app_id, signature),
  FOREIGN KEY (app_id) REFERENCES apps(app_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_state_app_id ON state(app_id);
`
