package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/infra/storage"
)

// BalanceRepo implements storage.BalanceRepository using PostgreSQL.
type BalanceRepo struct {
	db *DB
}

var _ storage.BalanceRepository = (*BalanceRepo)(nil)

// NewBalanceRepo creates a new PostgreSQL balance repository.
func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// AppendMany stores statuses in one transaction. With lib/pq the rows are
// bulk-loaded with COPY, with pgx they go in a single multi-row INSERT.
func (r *BalanceRepo) AppendMany(ctx context.Context, statuses []domain.WalletStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	var runID uuid.NullUUID
	if id, ok := storage.RunID(ctx); ok {
		runID = uuid.NullUUID{UUID: id, Valid: true}
	}

	if r.db.DriverName() == DriverPGX {
		return r.insertMany(ctx, runID, statuses)
	}
	return r.copyMany(ctx, runID, statuses)
}

type insertRow struct {
	ID         uuid.UUID     `db:"id"`
	RunID      uuid.NullUUID `db:"run_id"`
	ChainID    string        `db:"chain_id"`
	ChainName  string        `db:"chain_name"`
	Address    string        `db:"address"`
	WalletType string        `db:"wallet_type"`
	WalletName string        `db:"wallet_name"`
	Balance    string        `db:"balance"`
	ObservedAt time.Time     `db:"observed_at"`
}

func (r *BalanceRepo) insertMany(ctx context.Context, runID uuid.NullUUID, statuses []domain.WalletStatus) error {
	rows := make([]insertRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, insertRow{
			ID:         uuid.New(),
			RunID:      runID,
			ChainID:    string(s.ChainID),
			ChainName:  s.ChainName,
			Address:    s.Address.Hex(),
			WalletType: string(s.Wallet.Type),
			WalletName: s.Wallet.Name,
			Balance:    s.Balance.String(),
			ObservedAt: s.ObservedAt,
		})
	}

	query := `
		INSERT INTO wallet_balances
			(id, run_id, chain_id, chain_name, address, wallet_type, wallet_name, balance, observed_at)
		VALUES
			(:id, :run_id, :chain_id, :chain_name, :address, :wallet_type, :wallet_name, :balance, :observed_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert balances: %w", err)
	}
	return nil
}

func (r *BalanceRepo) copyMany(ctx context.Context, runID uuid.NullUUID, statuses []domain.WalletStatus) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("wallet_balances",
		"id", "run_id", "chain_id", "chain_name", "address", "wallet_type", "wallet_name", "balance", "observed_at",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, s := range statuses {
		_, err := stmt.ExecContext(ctx,
			uuid.New(), runID,
			string(s.ChainID), s.ChainName, s.Address.Hex(),
			string(s.Wallet.Type), s.Wallet.Name,
			s.Balance.String(), s.ObservedAt,
		)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy balance row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit balances: %w", err)
	}
	return nil
}

type balanceRow struct {
	ChainID    string         `db:"chain_id"`
	ChainName  string         `db:"chain_name"`
	Address    string         `db:"address"`
	WalletType string         `db:"wallet_type"`
	WalletName sql.NullString `db:"wallet_name"`
	Balance    string         `db:"balance"`
	ObservedAt time.Time      `db:"observed_at"`
}

// Latest returns the most recent row per (chain, address).
func (r *BalanceRepo) Latest(ctx context.Context) ([]domain.WalletStatus, error) {
	query := `
		SELECT DISTINCT ON (chain_id, address)
			chain_id, chain_name, address, wallet_type, wallet_name, balance::TEXT AS balance, observed_at
		FROM wallet_balances
		ORDER BY chain_id, address, observed_at DESC
	`
	var rows []balanceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query latest balances: %w", err)
	}

	out := make([]domain.WalletStatus, 0, len(rows))
	for _, row := range rows {
		balance, ok := new(big.Int).SetString(row.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for %s", row.Balance, row.Address)
		}
		out = append(out, domain.WalletStatus{
			ResolvedWallet: domain.ResolvedWallet{
				Wallet: domain.Wallet{
					Type: domain.WalletType(row.WalletType),
					Name: row.WalletName.String,
				},
				Address:   common.HexToAddress(row.Address),
				ChainID:   domain.ChainID(row.ChainID),
				ChainName: row.ChainName,
			},
			Balance:    balance,
			ObservedAt: row.ObservedAt,
		})
	}
	return out, nil
}

// DeleteOlderThan removes rows observed before cutoff.
func (r *BalanceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM wallet_balances WHERE observed_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune balances: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned balances: %w", err)
	}
	return n, nil
}
