package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQL is a Repository backed by database/sql. It speaks both SQLite (pure Go
// modernc driver) and Postgres (pgx stdlib driver).
type SQL struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (and migrates) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent flushes
	db.SetMaxOpenConns(1)
	s := &SQL{db: db, dialect: dialectSQLite}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens (and migrates) a Postgres database.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &SQL{db: db, dialect: dialectPostgres}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	for i, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQL) exec(ctx context.Context, e execer, q string, args ...any) (sql.Result, error) {
	return e.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQL) GetStorefront(ctx context.Context, storeID string) (model.Storefront, error) {
	var sf model.Storefront
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, logo, domain, agent_instructions FROM storefronts WHERE id = ?`), storeID).
		Scan(&sf.ID, &sf.Name, &sf.Logo, &sf.Domain, &sf.AgentInstructions)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Storefront{}, ErrNotFound
	}
	if err != nil {
		return model.Storefront{}, fmt.Errorf("get storefront: %w", err)
	}
	return sf, nil
}

func (s *SQL) PutStorefront(ctx context.Context, sf model.Storefront) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO storefronts (id, name, logo, domain, agent_instructions)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, logo = excluded.logo,
  domain = excluded.domain, agent_instructions = excluded.agent_instructions`,
		sf.ID, sf.Name, sf.Logo, sf.Domain, sf.AgentInstructions)
	if err != nil {
		return fmt.Errorf("put storefront: %w", err)
	}
	return nil
}

const productColumns = `id, title, price, currency, availability, category, tags_json, margin,
  inventory, boost_score, included, url, image, agent_notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (model.Product, error) {
	var (
		p      model.Product
		price  string
		tags   string
		margin sql.NullFloat64
		avail  string
	)
	if err := r.Scan(&p.ID, &p.Title, &price, &p.Currency, &avail, &p.Category, &tags, &margin,
		&p.Inventory, &p.BoostScore, &p.Included, &p.URL, &p.Image, &p.AgentNotes); err != nil {
		return model.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	p.Price = d
	p.Availability = model.Availability(avail)
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return model.Product{}, fmt.Errorf("product %s tags: %w", p.ID, err)
	}
	if margin.Valid {
		m := margin.Float64
		p.Margin = &m
	}
	return p, nil
}

func (s *SQL) ListProducts(ctx context.Context, storeID string) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+productColumns+` FROM products WHERE store_id = ? ORDER BY position`), storeID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQL) GetProduct(ctx context.Context, storeID, productID string) (model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+productColumns+` FROM products WHERE store_id = ? AND id = ?`), storeID, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// UpsertProducts inserts new products at the end of the store's ordering and
// refreshes catalog fields of known ones, keeping merchant-owned fields.
func (s *SQL) UpsertProducts(ctx context.Context, storeID string, products []model.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureStore(ctx, tx, storeID); err != nil {
		return err
	}
	var pos int64
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(position), 0) FROM products WHERE store_id = ?`), storeID).Scan(&pos); err != nil {
		return fmt.Errorf("max position: %w", err)
	}
	for _, p := range products {
		pos++
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		var margin sql.NullFloat64
		if p.Margin != nil {
			margin = sql.NullFloat64{Float64: *p.Margin, Valid: true}
		}
		_, err = s.exec(ctx, tx, `INSERT INTO products (store_id, id, position, title, price, currency,
  availability, category, tags_json, margin, inventory, boost_score, included, url, image, agent_notes, patch_seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT (store_id, id) DO UPDATE SET title = excluded.title, price = excluded.price,
  currency = excluded.currency, availability = excluded.availability, category = excluded.category,
  tags_json = excluded.tags_json, margin = excluded.margin, inventory = excluded.inventory,
  url = excluded.url, image = excluded.image`,
			storeID, p.ID, pos, p.Title, p.Price.String(), p.Currency, string(p.Availability), p.Category,
			string(tagsJSON), margin, p.Inventory, p.BoostScore, p.Included, p.URL, p.Image, p.AgentNotes)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) ensureStore(ctx context.Context, e execer, storeID string) error {
	_, err := s.exec(ctx, e, `INSERT INTO storefronts (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, storeID)
	if err != nil {
		return fmt.Errorf("ensure storefront: %w", err)
	}
	return nil
}

// ApplyPatch updates only the fields the patch sets. Rows that already saw
// an equal or newer sequence are left untouched.
func (s *SQL) ApplyPatch(ctx context.Context, p model.Patch) (bool, error) {
	sets := []string{"patch_seq = ?"}
	args := []any{int64(p.Sequence)}
	if p.BoostScore != nil {
		sets = append(sets, "boost_score = ?")
		args = append(args, *p.BoostScore)
	}
	if p.Tags != nil {
		tags := *p.Tags
		if tags == nil {
			tags = []string{}
		}
		b, err := json.Marshal(tags)
		if err != nil {
			return false, fmt.Errorf("encode tags: %w", err)
		}
		sets = append(sets, "tags_json = ?")
		args = append(args, string(b))
	}
	if p.Included != nil {
		sets = append(sets, "included = ?")
		args = append(args, *p.Included)
	}
	args = append(args, p.StoreID, p.ProductID, int64(p.Sequence))
	res, err := s.exec(ctx, s.db,
		`UPDATE products SET `+strings.Join(sets, ", ")+` WHERE store_id = ? AND id = ? AND patch_seq < ?`, args...)
	if err != nil {
		return false, fmt.Errorf("apply patch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply patch: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetProduct(ctx, p.StoreID, p.ProductID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQL) SetAgentNotes(ctx context.Context, storeID, productID, notes string) error {
	res, err := s.exec(ctx, s.db, `UPDATE products SET agent_notes = ? WHERE store_id = ? AND id = ?`,
		notes, storeID, productID)
	if err != nil {
		return fmt.Errorf("set agent notes: %w", err)
	}
	return requireRow(res)
}

func (s *SQL) ListRules(ctx context.Context, storeID string) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, name, field, cond, value, action, amount
FROM rules WHERE store_id = ? ORDER BY position`), storeID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	out := []model.Rule{}
	for rows.Next() {
		var r model.Rule
		var field, cond, act string
		if err := rows.Scan(&r.ID, &r.Name, &field, &cond, &r.Value, &act, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Field = model.RuleField(field)
		r.Condition = model.RuleCondition(cond)
		r.Action = model.RuleAction(act)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQL) CreateRule(ctx context.Context, storeID string, r model.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := s.ensureStore(ctx, tx, storeID); err != nil {
		return err
	}
	var pos int64
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(position), 0) FROM rules WHERE store_id = ?`), storeID).Scan(&pos); err != nil {
		return fmt.Errorf("max rule position: %w", err)
	}
	_, err = s.exec(ctx, tx, `INSERT INTO rules (store_id, id, position, name, field, cond, value, action, amount)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		storeID, r.ID, pos+1, r.Name, string(r.Field), string(r.Condition), r.Value, string(r.Action), r.Amount)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return tx.Commit()
}

func (s *SQL) DeleteRule(ctx context.Context, storeID, ruleID string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM rules WHERE store_id = ? AND id = ?`, storeID, ruleID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRow(res)
}

func (s *SQL) RecordVisit(ctx context.Context, v model.Visit) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO visits (id, store_id, agent, format, user_agent, visited_at)
VALUES (?, ?, ?, ?, ?, ?)`, v.ID, v.StoreID, v.Agent, v.Format, v.UserAgent, v.VisitedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

func (s *SQL) VisitStats(ctx context.Context, storeID string, since time.Time) ([]model.AgentVisits, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT agent, COUNT(*), MAX(visited_at) FROM visits
WHERE store_id = ? AND visited_at >= ? GROUP BY agent`), storeID, since.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("visit stats: %w", err)
	}
	defer rows.Close()
	out := []model.AgentVisits{}
	for rows.Next() {
		var (
			av   model.AgentVisits
			last int64
		)
		if err := rows.Scan(&av.Agent, &av.Count, &last); err != nil {
			return nil, fmt.Errorf("scan visit stats: %w", err)
		}
		av.LastVisit = time.Unix(0, last).UTC()
		out = append(out, av)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortAgentVisits(out)
	return out, nil
}

func (s *SQL) PruneVisits(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM visits WHERE visited_at < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune visits: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
