package receipt

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PersistenceError wraps a database failure without masking its cause
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DB defines the interface for record persistence. The store is an
// append-only ledger of purchases: there are no update or delete operations.
type DB interface {
	// EnsureSchema idempotently creates the required tables
	EnsureSchema(ctx context.Context) error

	// InsertGroceryItem inserts one validated item record and returns its row id
	InsertGroceryItem(ctx context.Context, item *GroceryItem) (int64, error)

	// InsertReceipt inserts one validated receipt record and returns its row id
	InsertReceipt(ctx context.Context, receipt *Receipt) (int64, error)

	// GetGroceryItem retrieves an item record by row id
	GetGroceryItem(ctx context.Context, rowID int64) (*GroceryItem, error)

	// GetReceipt retrieves a receipt record by row id
	GetReceipt(ctx context.Context, rowID int64) (*Receipt, error)

	// ListGroceryItems returns all item records in insertion order
	ListGroceryItems(ctx context.Context) ([]*GroceryItem, error)

	// ListReceipts returns all receipt records in insertion order
	ListReceipts(ctx context.Context) ([]*Receipt, error)

	// LoadVocabularyEmbeddings returns cached embeddings for the given
	// embedding model, keyed by vocabulary name
	LoadVocabularyEmbeddings(ctx context.Context, model string) (map[string][]float32, error)

	// SaveVocabularyEmbeddings caches embeddings for the given embedding model
	SaveVocabularyEmbeddings(ctx context.Context, model string, names []string, vectors [][]float32) error

	// Close closes the database connection
	Close() error
}

// Postgres implements the DB interface over a PostgreSQL database
type Postgres struct {
	db *sql.DB

	// vectorOK is false when the pgvector extension is unavailable; the
	// vocabulary embedding cache is then disabled, nothing else changes
	vectorOK bool
}

// NewPostgres opens a connection to the given database URL, creating the
// target database on a fresh server first
func NewPostgres(databaseURL string) (*Postgres, error) {
	if err := ensureDatabase(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ensureDatabase creates the database named in the URL when it does not exist
// yet. CREATE DATABASE cannot run against the database it creates, so this
// goes through the postgres maintenance database before the main connection
// is opened.
func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parsing database url: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" || name == "postgres" {
		return nil
	}

	u.Path = "/postgres"
	admin, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("opening maintenance database: %w", err)
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return &PersistenceError{Op: "database creation", Err: err}
	}
	if exists {
		return nil
	}

	if _, err := admin.Exec("CREATE DATABASE " + pq.QuoteIdentifier(name)); err != nil {
		return &PersistenceError{Op: "database creation", Err: err}
	}
	slog.Info("Created database", "name", name)

	return nil
}

// EnsureSchema creates the required tables if absent. Safe to call every
// startup.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS grocery_items (
			id SERIAL PRIMARY KEY,
			price DECIMAL(10, 2) NOT NULL,
			shop_name TEXT NOT NULL,
			shop_abn TEXT NOT NULL,
			shop_address TEXT NOT NULL,
			category TEXT NOT NULL,
			date_purchased DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id SERIAL PRIMARY KEY,
			total DECIMAL(10, 2) NOT NULL,
			shop_name TEXT NOT NULL,
			shop_abn TEXT NOT NULL,
			shop_address TEXT NOT NULL,
			category TEXT NOT NULL,
			date_purchased DATE NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return &PersistenceError{Op: "schema creation", Err: err}
		}
	}

	// The embedding cache needs pgvector; its absence only disables caching
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		slog.Warn("pgvector extension unavailable, vocabulary embedding cache disabled", "error", err)
		p.vectorOK = false
		return nil
	}
	cacheTable := `CREATE TABLE IF NOT EXISTS vocabulary_embeddings (
		model TEXT NOT NULL,
		name TEXT NOT NULL,
		embedding vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (model, name)
	)`
	if _, err := p.db.ExecContext(ctx, cacheTable); err != nil {
		return &PersistenceError{Op: "schema creation", Err: err}
	}
	p.vectorOK = true

	return nil
}

// InsertGroceryItem inserts one item record as a single statement
func (p *Postgres) InsertGroceryItem(ctx context.Context, item *GroceryItem) (int64, error) {
	query := `
		INSERT INTO grocery_items (price, shop_name, shop_abn, shop_address, category, date_purchased)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var rowID int64
	err := p.db.QueryRowContext(
		ctx,
		query,
		CentsToDecimal(item.PriceCents),
		item.ShopName,
		item.ShopABN,
		item.ShopAddress,
		item.Category,
		item.DatePurchased,
	).Scan(&rowID)
	if err != nil {
		return 0, &PersistenceError{Op: "grocery item insert", Err: err}
	}

	return rowID, nil
}

// InsertReceipt inserts one receipt record as a single statement
func (p *Postgres) InsertReceipt(ctx context.Context, receipt *Receipt) (int64, error) {
	query := `
		INSERT INTO receipts (total, shop_name, shop_abn, shop_address, category, date_purchased)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var rowID int64
	err := p.db.QueryRowContext(
		ctx,
		query,
		CentsToDecimal(receipt.TotalCents),
		receipt.ShopName,
		receipt.ShopABN,
		receipt.ShopAddress,
		receipt.Category,
		receipt.DatePurchased,
	).Scan(&rowID)
	if err != nil {
		return 0, &PersistenceError{Op: "receipt insert", Err: err}
	}

	return rowID, nil
}

// GetGroceryItem retrieves an item record by row id
func (p *Postgres) GetGroceryItem(ctx context.Context, rowID int64) (*GroceryItem, error) {
	query := `
		SELECT id, price, shop_name, shop_abn, shop_address, category, date_purchased
		FROM grocery_items WHERE id = $1
	`
	item, err := scanGroceryItem(p.db.QueryRowContext(ctx, query, rowID))
	if err != nil {
		return nil, &PersistenceError{Op: "grocery item read", Err: err}
	}
	return item, nil
}

// GetReceipt retrieves a receipt record by row id
func (p *Postgres) GetReceipt(ctx context.Context, rowID int64) (*Receipt, error) {
	query := `
		SELECT id, total, shop_name, shop_abn, shop_address, category, date_purchased
		FROM receipts WHERE id = $1
	`
	receipt, err := scanReceipt(p.db.QueryRowContext(ctx, query, rowID))
	if err != nil {
		return nil, &PersistenceError{Op: "receipt read", Err: err}
	}
	return receipt, nil
}

// ListGroceryItems returns all item records in insertion order
func (p *Postgres) ListGroceryItems(ctx context.Context) ([]*GroceryItem, error) {
	query := `
		SELECT id, price, shop_name, shop_abn, shop_address, category, date_purchased
		FROM grocery_items ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "grocery item list", Err: err}
	}
	defer rows.Close()

	items := make([]*GroceryItem, 0)
	for rows.Next() {
		item, err := scanGroceryItem(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "grocery item list", Err: err}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "grocery item list", Err: err}
	}

	return items, nil
}

// ListReceipts returns all receipt records in insertion order
func (p *Postgres) ListReceipts(ctx context.Context) ([]*Receipt, error) {
	query := `
		SELECT id, total, shop_name, shop_abn, shop_address, category, date_purchased
		FROM receipts ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "receipt list", Err: err}
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "receipt list", Err: err}
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "receipt list", Err: err}
	}

	return receipts, nil
}

// LoadVocabularyEmbeddings returns cached embeddings for the given embedding model
func (p *Postgres) LoadVocabularyEmbeddings(ctx context.Context, model string) (map[string][]float32, error) {
	if !p.vectorOK {
		return map[string][]float32{}, nil
	}

	rows, err := p.db.QueryContext(ctx, `SELECT name, embedding FROM vocabulary_embeddings WHERE model = $1`, model)
	if err != nil {
		return nil, &PersistenceError{Op: "embedding cache read", Err: err}
	}
	defer rows.Close()

	cached := make(map[string][]float32)
	for rows.Next() {
		var name string
		var vector pgvector.Vector
		if err := rows.Scan(&name, &vector); err != nil {
			return nil, &PersistenceError{Op: "embedding cache read", Err: err}
		}
		cached[name] = vector.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "embedding cache read", Err: err}
	}

	return cached, nil
}

// SaveVocabularyEmbeddings caches embeddings for the given embedding model
func (p *Postgres) SaveVocabularyEmbeddings(ctx context.Context, model string, names []string, vectors [][]float32) error {
	if !p.vectorOK {
		return nil
	}
	if len(names) != len(vectors) {
		return fmt.Errorf("got %d names but %d vectors", len(names), len(vectors))
	}

	query := `
		INSERT INTO vocabulary_embeddings (model, name, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (model, name) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = now()
	`
	for i, name := range names {
		if _, err := p.db.ExecContext(ctx, query, model, name, pgvector.NewVector(vectors[i])); err != nil {
			return &PersistenceError{Op: "embedding cache write", Err: err}
		}
	}

	return nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroceryItem(row rowScanner) (*GroceryItem, error) {
	var item GroceryItem
	var price string
	var date time.Time
	if err := row.Scan(&item.RowID, &price, &item.ShopName, &item.ShopABN, &item.ShopAddress, &item.Category, &date); err != nil {
		return nil, err
	}

	cents, err := DecimalToCents(price)
	if err != nil {
		return nil, err
	}
	item.PriceCents = cents
	item.DatePurchased = date

	return &item, nil
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var receipt Receipt
	var total string
	var date time.Time
	if err := row.Scan(&receipt.RowID, &total, &receipt.ShopName, &receipt.ShopABN, &receipt.ShopAddress, &receipt.Category, &date); err != nil {
		return nil, err
	}

	cents, err := DecimalToCents(total)
	if err != nil {
		return nil, err
	}
	receipt.TotalCents = cents
	receipt.DatePurchased = date

	return &receipt, nil
}
