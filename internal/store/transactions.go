package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gamevault/backend/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOrder is returned on an order_id collision. The generation
	// scheme should make this impossible; hitting it is a consistency fault.
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// TransactionStore owns transaction persistence and state transitions.
type TransactionStore struct {
	db *sqlx.DB
}

func NewTransactionStore(db *sqlx.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts a new transaction. The caller has already gotten the order
// accepted by the gateway, so the row starts in waiting.
func (s *TransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == "" {
		txn.Status = models.StatusWaiting
	}

	query := `INSERT INTO transactions
		(user_id, game_id, order_id, invoice_number, amount, payment_method, payment_channel,
		 status, payment_url, payment_code, qr_code_url, expired_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		txn.UserID, txn.GameID, txn.OrderID, txn.InvoiceNumber, txn.Amount,
		txn.PaymentMethod, txn.PaymentChannel, txn.Status,
		txn.PaymentURL, txn.PaymentCode, txn.QRCodeURL, txn.ExpiredAt,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// FindByOrderID looks a transaction up by its order id (redirect/polling path).
func (s *TransactionStore) FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, `SELECT * FROM transactions WHERE order_id=$1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by order id: %w", err)
	}
	return &txn, nil
}

// FindByInvoiceNumber looks a transaction up by the gateway's invoice number
// (inbound callback path).
func (s *TransactionStore) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, `SELECT * FROM transactions WHERE invoice_number=$1 ORDER BY id DESC LIMIT 1`, invoiceNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by invoice: %w", err)
	}
	return &txn, nil
}

// UpdateStatus applies a status transition as a single conditional write: the
// update lands only while the stored status is still non-terminal, so exactly
// one terminal write wins under concurrent callers. Returns whether the update
// was applied; false means stale or duplicate, not an error. paid_at is written
// only on the transition to success.
func (s *TransactionStore) UpdateStatus(ctx context.Context, orderID, newStatus string, paidAt *time.Time) (bool, error) {
	switch newStatus {
	case models.StatusWaiting, models.StatusSuccess, models.StatusFailed, models.StatusExpired:
	default:
		return false, fmt.Errorf("invalid status %q", newStatus)
	}

	var paid sql.NullTime
	if newStatus == models.StatusSuccess {
		if paidAt != nil {
			paid = sql.NullTime{Time: *paidAt, Valid: true}
		} else {
			paid = sql.NullTime{Time: time.Now(), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status=$2,
		    paid_at=CASE WHEN $2='success' THEN $3 ELSE paid_at END,
		    updated_at=NOW()
		WHERE order_id=$1
		  AND status NOT IN ('success','failed','expired')`,
		orderID, newStatus, paid)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		log.Printf("[PAYMENT] Stale status update rejected: order=%s new=%s", orderID, newStatus)
		return false, nil
	}

	return true, nil
}

// HasPurchased reports whether any transaction for (userID, gameID) succeeded.
func (s *TransactionStore) HasPurchased(ctx context.Context, userID, gameID int) (bool, error) {
	var purchased bool
	err := s.db.GetContext(ctx, &purchased,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE user_id=$1 AND game_id=$2 AND status='success')`,
		userID, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return purchased, nil
}

// HasActiveOrder reports whether an unexpired waiting order exists for the
// pair. Only consulted when the single-pending policy is enabled.
func (s *TransactionStore) HasActiveOrder(ctx context.Context, userID, gameID int) (bool, error) {
	var active bool
	err := s.db.GetContext(ctx, &active,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE user_id=$1 AND game_id=$2 AND status='waiting' AND expired_at > NOW())`,
		userID, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to check active order: %w", err)
	}
	return active, nil
}

// ListForUser returns the user's purchase history, newest first.
func (s *TransactionStore) ListForUser(ctx context.Context, userID int) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// Receipt joins the buyer and game rows onto a transaction for notification.
func (s *TransactionStore) Receipt(ctx context.Context, orderID string) (*models.PurchaseReceipt, error) {
	var receipt models.PurchaseReceipt
	err := s.db.GetContext(ctx, &receipt, `
		SELECT t.*, u.name AS user_name, u.email AS user_email, g.title AS game_title, g.slug AS game_slug
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		JOIN games g ON t.game_id = g.id
		WHERE t.order_id=$1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	return &receipt, nil
}

// ExpireStale flips waiting transactions past their expiry to expired and
// returns how many rows changed.
func (s *TransactionStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status='expired', updated_at=NOW()
		WHERE status='waiting' AND expired_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale transactions: %w", err)
	}
	return res.RowsAffected()
}
