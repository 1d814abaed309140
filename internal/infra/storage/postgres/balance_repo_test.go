package postgres

import (
	"context"
	"database/sql/driver"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/infra/storage"
)

func newMockRepo(t *testing.T, driver string) (*BalanceRepo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewBalanceRepo(&DB{DB: sqlx.NewDb(conn, driver)}), mock
}

func testStatuses() []domain.WalletStatus {
	observed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.WalletStatus{
		{
			ResolvedWallet: domain.ResolvedWallet{
				Wallet:    domain.Wallet{Type: domain.WalletTypeProvider, Name: "airnode"},
				Address:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
				ChainID:   "1",
				ChainName: "ethereum",
			},
			Balance:    big.NewInt(190000000000000000),
			ObservedAt: observed,
		},
		{
			ResolvedWallet: domain.ResolvedWallet{
				Wallet:    domain.Wallet{Type: domain.WalletTypeMonitor},
				Address:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
				ChainID:   "137",
				ChainName: "polygon",
			},
			Balance:    big.NewInt(5),
			ObservedAt: observed,
		},
	}
}

func TestBalanceRepo_AppendManyCopy(t *testing.T) {
	repo, mock := newMockRepo(t, DriverPQ)
	statuses := testStatuses()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`COPY "wallet_balances"`)
	for _, s := range statuses {
		prep.ExpectExec().
			WithArgs(sqlmock.AnyArg(), nil, string(s.ChainID), s.ChainName, s.Address.Hex(),
				string(s.Wallet.Type), s.Wallet.Name, s.Balance.String(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, int64(len(statuses))))
	mock.ExpectCommit()

	if err := repo.AppendMany(context.Background(), statuses); err != nil {
		t.Fatalf("AppendMany failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestBalanceRepo_AppendManyInsert(t *testing.T) {
	repo, mock := newMockRepo(t, DriverPGX)
	statuses := testStatuses()
	runID := uuid.New()

	var args []driver.Value
	for _, s := range statuses {
		args = append(args,
			sqlmock.AnyArg(), runID.String(), string(s.ChainID), s.ChainName, s.Address.Hex(),
			string(s.Wallet.Type), s.Wallet.Name, s.Balance.String(), sqlmock.AnyArg(),
		)
	}
	mock.ExpectExec(`INSERT INTO wallet_balances`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(statuses))))

	ctx := storage.WithRunID(context.Background(), runID)
	if err := repo.AppendMany(ctx, statuses); err != nil {
		t.Fatalf("AppendMany failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestBalanceRepo_AppendManyEmpty(t *testing.T) {
	repo, mock := newMockRepo(t, DriverPQ)
	if err := repo.AppendMany(context.Background(), nil); err != nil {
		t.Fatalf("AppendMany failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no queries: %v", err)
	}
}

func TestBalanceRepo_DeleteOlderThan(t *testing.T) {
	repo, mock := newMockRepo(t, DriverPQ)
	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM wallet_balances WHERE observed_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if n != 7 {
		t.Errorf("deleted %d rows, want 7", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
