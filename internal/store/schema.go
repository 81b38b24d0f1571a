package store

// Prices are stored as decimal text in both dialects so they round-trip
// exactly through shopspring/decimal.
func schema(d dialect) []string {
	boolType, bigint := "INTEGER", "INTEGER"
	if d == dialectPostgres {
		boolType, bigint = "BOOLEAN", "BIGINT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS storefronts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  logo TEXT NOT NULL DEFAULT '',
  domain TEXT NOT NULL DEFAULT '',
  agent_instructions TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS products (
  store_id TEXT NOT NULL,
  id TEXT NOT NULL,
  position ` + bigint + ` NOT NULL,
  title TEXT NOT NULL,
  price TEXT NOT NULL,
  currency TEXT NOT NULL,
  availability TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  tags_json TEXT NOT NULL DEFAULT '[]',
  margin DOUBLE PRECISION,
  inventory INTEGER NOT NULL DEFAULT 0,
  boost_score INTEGER NOT NULL DEFAULT 0,
  included ` + boolType + ` NOT NULL,
  url TEXT NOT NULL DEFAULT '',
  image TEXT NOT NULL DEFAULT '',
  agent_notes TEXT NOT NULL DEFAULT '',
  patch_seq ` + bigint + ` NOT NULL DEFAULT 0,
  PRIMARY KEY (store_id, id)
)`,
		`CREATE INDEX IF NOT EXISTS products_store_position ON products (store_id, position)`,
		`CREATE TABLE IF NOT EXISTS rules (
  store_id TEXT NOT NULL,
  id TEXT NOT NULL,
  position ` + bigint + ` NOT NULL,
  name TEXT NOT NULL,
  field TEXT NOT NULL,
  cond TEXT NOT NULL,
  value TEXT NOT NULL,
  action TEXT NOT NULL,
  amount INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (store_id, id)
)`,
		`CREATE TABLE IF NOT EXISTS visits (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  agent TEXT NOT NULL,
  format TEXT NOT NULL,
  user_agent TEXT NOT NULL DEFAULT '',
  visited_at ` + bigint + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS visits_store_time ON visits (store_id, visited_at)`,
	}
}
