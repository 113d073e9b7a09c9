package models

import (
	"database/sql"
	"time"
)

// Transaction status values. A transaction is created as waiting (the gateway
// has already accepted the order by the time we persist) and only ever moves
// forward into one of the terminal states.
const (
	StatusPending = "pending"
	StatusWaiting = "waiting"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// IsTerminalStatus reports whether no further transitions are permitted from status.
func IsTerminalStatus(status string) bool {
	return status == StatusSuccess || status == StatusFailed || status == StatusExpired
}

// User is the session identity consumed from the auth layer
type User struct {
	ID    int    `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Game is a priced catalog item (catalog CRUD lives outside this service)
type Game struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Slug      string    `db:"slug" json:"slug"`
	PriceType string    `db:"price_type" json:"price_type"` // "free" or "paid"
	Price     int       `db:"price" json:"price"`           // IDR, minor units
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsFree reports whether the game requires no purchase.
func (g *Game) IsFree() bool {
	return g.PriceType == "free" || g.PriceType == "" || g.Price == 0
}

// Transaction represents a single purchase attempt, keyed by order_id and
// correlated to the gateway via invoice_number.
type Transaction struct {
	ID             int            `db:"id" json:"id"`
	UserID         int            `db:"user_id" json:"user_id"`
	GameID         int            `db:"game_id" json:"game_id"`
	OrderID        string         `db:"order_id" json:"order_id"`
	InvoiceNumber  string         `db:"invoice_number" json:"invoice_number"`
	Amount         int            `db:"amount" json:"amount"`
	PaymentMethod  string         `db:"payment_method" json:"payment_method"`
	PaymentChannel string         `db:"payment_channel" json:"payment_channel"`
	Status         string         `db:"status" json:"status"`
	PaymentURL     sql.NullString `db:"payment_url" json:"payment_url,omitempty"`
	PaymentCode    sql.NullString `db:"payment_code" json:"payment_code,omitempty"`
	QRCodeURL      sql.NullString `db:"qr_code_url" json:"qr_code_url,omitempty"`
	ExpiredAt      time.Time      `db:"expired_at" json:"expired_at"`
	PaidAt         sql.NullTime   `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the transaction has reached a final state.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// PurchaseReceipt carries the joined data the confirmation notifier needs
type PurchaseReceipt struct {
	Transaction
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
	GameTitle string `db:"game_title" json:"game_title"`
	GameSlug  string `db:"game_slug" json:"game_slug"`
}
