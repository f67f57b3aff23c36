package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.SnapshotRepository and ports.ExecutionRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/router.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS position_snapshots (
		symbol TEXT PRIMARY KEY,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		last_action_timestamp TIMESTAMP NOT NULL,
		last_action_kind TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		signal_time TIMESTAMP NOT NULL,
		accepted INTEGER NOT NULL,
		venue TEXT NULL,
		action TEXT NOT NULL,
		from_side TEXT NOT NULL,
		to_side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		order_ids TEXT NULL,
		partial INTEGER NOT NULL DEFAULT 0,
		reason TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_symbol_signal_time ON executions (symbol, signal_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- SnapshotRepository Implementation ---

// Save upserts the position snapshot for the symbol. One row per symbol; the
// snapshot always reflects the last confirmed transition.
func (r *Repository) Save(ctx context.Context, pos domain.Position) error {
	const query = `
	INSERT INTO position_snapshots (symbol, side, quantity, last_action_timestamp, last_action_kind, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		side = excluded.side,
		quantity = excluded.quantity,
		last_action_timestamp = excluded.last_action_timestamp,
		last_action_kind = excluded.last_action_kind,
		updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		pos.Symbol, pos.Side, pos.Quantity, pos.LastActionTimestamp, pos.LastActionKind, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save position snapshot for symbol %s: %w", pos.Symbol, err)
	}
	r.logger.Debug(ctx, "Position snapshot saved", map[string]interface{}{
		"symbol":   pos.Symbol,
		"side":     pos.Side,
		"quantity": pos.Quantity,
	})
	return nil
}

// Load retrieves the persisted snapshot for a symbol. Returns nil, nil when
// no snapshot exists yet.
func (r *Repository) Load(ctx context.Context, symbol string) (*domain.Position, error) {
	const query = `
	SELECT symbol, side, quantity, last_action_timestamp, last_action_kind
	FROM position_snapshots
	WHERE symbol = ?`

	p := &domain.Position{}
	var side, kind string
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(
		&p.Symbol, &side, &p.Quantity, &p.LastActionTimestamp, &kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No snapshot found for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position snapshot for symbol %s: %w", symbol, err)
	}
	p.Side = domain.Side(side)
	p.LastActionKind = domain.Action(kind)
	return p, nil
}

// --- ExecutionRepository Implementation ---

// Record saves one execution result row and returns its assigned ID.
func (r *Repository) Record(ctx context.Context, res *domain.ExecutionResult) (int64, error) {
	const query = `
	INSERT INTO executions (symbol, signal_time, accepted, venue, action, from_side, to_side, quantity, order_ids, partial, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		res.Symbol, res.Timestamp, res.Accepted, string(res.Venue), res.Action,
		res.FromSide, res.ToSide, res.Quantity, strings.Join(res.OrderIDs, ","), res.Partial, res.Reason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution for symbol %s: %w", res.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for execution %s: %w", res.Symbol, err)
	}
	res.ID = id
	r.logger.Debug(ctx, "Execution recorded", map[string]interface{}{
		"executionID": id,
		"symbol":      res.Symbol,
		"accepted":    res.Accepted,
	})
	return id, nil
}

// RecentBySymbol retrieves the most recent execution results for a symbol, up to a limit.
func (r *Repository) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ExecutionResult, error) {
	const query = `
	SELECT id, symbol, signal_time, accepted, venue, action, from_side, to_side, quantity, order_ids, partial, reason
	FROM executions
	WHERE symbol = ? ORDER BY signal_time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	results := make([]*domain.ExecutionResult, 0)
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution during RecentBySymbol: %w", err)
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}
	return results, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(s scanner) (*domain.ExecutionResult, error) {
	res := &domain.ExecutionResult{}
	var venue, action, fromSide, toSide string
	var orderIDs, reason sql.NullString
	err := s.Scan(
		&res.ID, &res.Symbol, &res.Timestamp, &res.Accepted, &venue, &action,
		&fromSide, &toSide, &res.Quantity, &orderIDs, &res.Partial, &reason)
	if err != nil {
		return nil, err
	}
	res.Venue = domain.VenueID(venue)
	res.Action = domain.Action(action)
	res.FromSide = domain.Side(fromSide)
	res.ToSide = domain.Side(toSide)
	if orderIDs.Valid && orderIDs.String != "" {
		res.OrderIDs = strings.Split(orderIDs.String, ",")
	}
	if reason.Valid {
		res.Reason = reason.String
	}
	return res, nil
}
