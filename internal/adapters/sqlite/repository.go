package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.PersistenceGateway interface using SQLite.
// Documents are upserted keyed by id; a last_updated column records the
// write time of every upsert.
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
		dbPath = "./data/paper_trading.db" // Default path
	}

	// Create data directory if it doesn't exist (skip for in-memory DBs)
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
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
		db.Close() // Close the connection if ping fails
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
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		initial_balance REAL NOT NULL,
		current_balance REAL NOT NULL,
		daily_trades_limit INTEGER NOT NULL,
		daily_trades_count INTEGER NOT NULL,
		max_leverage REAL NOT NULL,
		total_margin_used REAL NOT NULL,
		brokerage_charges REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		profitable_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		last_trade_date TEXT NOT NULL,
		last_updated TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL DEFAULT 0,
		quantity REAL NOT NULL,
		leverage REAL NOT NULL,
		margin_used REAL NOT NULL,
		trading_fee REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		invested_amount REAL NOT NULL,
		strategy_name TEXT NOT NULL DEFAULT '',
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		notes TEXT NOT NULL DEFAULT '',
		original_quantity REAL NOT NULL DEFAULT 0,
		total_quantity REAL NOT NULL DEFAULT 0,
		avg_entry_price REAL NOT NULL DEFAULT 0,
		pyramid_count INTEGER NOT NULL DEFAULT 0,
		remaining_quantity REAL NOT NULL DEFAULT 0,
		trailing_count INTEGER NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		avg_exit_price REAL NOT NULL DEFAULT 0,
		pnl REAL NOT NULL DEFAULT 0,
		pnl_percentage REAL NOT NULL DEFAULT 0,
		last_updated TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		signal TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage REAL NOT NULL,
		strategy_name TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		position_id TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMP NOT NULL
	);

	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol_timestamp ON orders (symbol, timestamp);
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

// --- PersistenceGateway Implementation ---

// SaveAccount upserts the account document keyed by id.
func (r *Repository) SaveAccount(ctx context.Context, acc *domain.Account) error {
	const query = `
	INSERT INTO accounts (id, name, initial_balance, current_balance, daily_trades_limit,
	                      daily_trades_count, max_leverage, total_margin_used, brokerage_charges,
	                      realized_pnl, total_trades, profitable_trades, losing_trades, win_rate,
	                      last_trade_date, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		initial_balance = excluded.initial_balance,
		current_balance = excluded.current_balance,
		daily_trades_limit = excluded.daily_trades_limit,
		daily_trades_count = excluded.daily_trades_count,
		max_leverage = excluded.max_leverage,
		total_margin_used = excluded.total_margin_used,
		brokerage_charges = excluded.brokerage_charges,
		realized_pnl = excluded.realized_pnl,
		total_trades = excluded.total_trades,
		profitable_trades = excluded.profitable_trades,
		losing_trades = excluded.losing_trades,
		win_rate = excluded.win_rate,
		last_trade_date = excluded.last_trade_date,
		last_updated = excluded.last_updated`

	_, err := r.db.ExecContext(ctx, query,
		acc.ID, acc.Name, acc.InitialBalance, acc.CurrentBalance, acc.DailyTradesLimit,
		acc.DailyTradesCount, acc.MaxLeverage, acc.TotalMarginUsed, acc.BrokerageCharges,
		acc.RealizedPNL, acc.TotalTrades, acc.ProfitableTrades, acc.LosingTrades, acc.WinRate,
		acc.LastTradeDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", acc.ID, err)
	}
	r.logger.Debug(ctx, "Account saved", map[string]interface{}{"accountID": acc.ID, "balance": acc.CurrentBalance})
	return nil
}

// LoadAccount retrieves an account by id. Returns nil, nil if not found.
func (r *Repository) LoadAccount(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
	SELECT id, name, initial_balance, current_balance, daily_trades_limit, daily_trades_count,
	       max_leverage, total_margin_used, brokerage_charges, realized_pnl, total_trades,
	       profitable_trades, losing_trades, win_rate, last_trade_date
	FROM accounts WHERE id = ?`

	acc := &domain.Account{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&acc.ID, &acc.Name, &acc.InitialBalance, &acc.CurrentBalance, &acc.DailyTradesLimit,
		&acc.DailyTradesCount, &acc.MaxLeverage, &acc.TotalMarginUsed, &acc.BrokerageCharges,
		&acc.RealizedPNL, &acc.TotalTrades, &acc.ProfitableTrades, &acc.LosingTrades, &acc.WinRate,
		&acc.LastTradeDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Account not found", map[string]interface{}{"accountID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query account %s: %w", id, err)
	}
	return acc, nil
}

// SavePosition upserts the position document keyed by id.
func (r *Repository) SavePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, side, status, entry_price, exit_price, quantity, leverage,
	                       margin_used, trading_fee, stop_loss, target, invested_amount, strategy_name,
	                       entry_time, exit_time, notes, original_quantity, total_quantity,
	                       avg_entry_price, pyramid_count, remaining_quantity, trailing_count,
	                       realized_pnl, unrealized_pnl, avg_exit_price, pnl, pnl_percentage, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		symbol = excluded.symbol,
		side = excluded.side,
		status = excluded.status,
		entry_price = excluded.entry_price,
		exit_price = excluded.exit_price,
		quantity = excluded.quantity,
		leverage = excluded.leverage,
		margin_used = excluded.margin_used,
		trading_fee = excluded.trading_fee,
		stop_loss = excluded.stop_loss,
		target = excluded.target,
		invested_amount = excluded.invested_amount,
		strategy_name = excluded.strategy_name,
		entry_time = excluded.entry_time,
		exit_time = excluded.exit_time,
		notes = excluded.notes,
		original_quantity = excluded.original_quantity,
		total_quantity = excluded.total_quantity,
		avg_entry_price = excluded.avg_entry_price,
		pyramid_count = excluded.pyramid_count,
		remaining_quantity = excluded.remaining_quantity,
		trailing_count = excluded.trailing_count,
		realized_pnl = excluded.realized_pnl,
		unrealized_pnl = excluded.unrealized_pnl,
		avg_exit_price = excluded.avg_exit_price,
		pnl = excluded.pnl,
		pnl_percentage = excluded.pnl_percentage,
		last_updated = excluded.last_updated`

	var exitTime sql.NullTime
	if !pos.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: pos.ExitTime, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.Side, pos.Status, pos.EntryPrice, pos.ExitPrice, pos.Quantity, pos.Leverage,
		pos.MarginUsed, pos.TradingFee, pos.StopLoss, pos.Target, pos.InvestedAmount, pos.StrategyName,
		pos.EntryTime, exitTime, pos.Notes, pos.OriginalQuantity, pos.TotalQuantity,
		pos.AvgEntryPrice, pos.PyramidCount, pos.RemainingQuantity, pos.TrailingCount,
		pos.RealizedPNL, pos.UnrealizedPNL, pos.AvgExitPrice, pos.PNL, pos.PNLPercentage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert position %s for symbol %s: %w", pos.ID, pos.Symbol, err)
	}
	r.logger.Debug(ctx, "Position saved", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol, "status": pos.Status})
	return nil
}

// LoadPositions retrieves positions, optionally filtered by status.
func (r *Repository) LoadPositions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error) {
	query := `
	SELECT id, symbol, side, status, entry_price, exit_price, quantity, leverage, margin_used,
	       trading_fee, stop_loss, target, invested_amount, strategy_name, entry_time, exit_time,
	       notes, original_quantity, total_quantity, avg_entry_price, pyramid_count,
	       remaining_quantity, trailing_count, realized_pnl, unrealized_pnl, avg_exit_price,
	       pnl, pnl_percentage
	FROM positions`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY entry_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during LoadPositions: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// SaveOrder upserts the order record for a trade request.
func (r *Repository) SaveOrder(ctx context.Context, req *domain.TradeRequest) error {
	const query = `
	INSERT INTO orders (id, symbol, signal, price, quantity, leverage, strategy_name, confidence,
	                    timestamp, status, error_message, position_id, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		error_message = excluded.error_message,
		position_id = excluded.position_id,
		last_updated = excluded.last_updated`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Symbol, req.Signal, req.Price, req.Quantity, req.Leverage, req.StrategyName,
		req.Confidence, req.Timestamp, req.Status, req.ErrorMessage, req.PositionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert order %s for symbol %s: %w", req.ID, req.Symbol, err)
	}
	r.logger.Debug(ctx, "Order saved", map[string]interface{}{"orderID": req.ID, "symbol": req.Symbol, "status": req.Status})
	return nil
}

// DeleteAllData wipes all stored documents. Only the explicit data-wipe
// operation calls this.
func (r *Repository) DeleteAllData(ctx context.Context) error {
	const query = `DELETE FROM positions; DELETE FROM orders; DELETE FROM accounts;`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to delete all data: %w", ports.ErrDeleteFailed)
	}
	r.logger.Warn(ctx, "All trading data deleted")
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var exitTime sql.NullTime
	var side, status string
	err := s.Scan(
		&p.ID, &p.Symbol, &side, &status, &p.EntryPrice, &p.ExitPrice, &p.Quantity, &p.Leverage,
		&p.MarginUsed, &p.TradingFee, &p.StopLoss, &p.Target, &p.InvestedAmount, &p.StrategyName,
		&p.EntryTime, &exitTime, &p.Notes, &p.OriginalQuantity, &p.TotalQuantity, &p.AvgEntryPrice,
		&p.PyramidCount, &p.RemainingQuantity, &p.TrailingCount, &p.RealizedPNL, &p.UnrealizedPNL,
		&p.AvgExitPrice, &p.PNL, &p.PNLPercentage)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}
