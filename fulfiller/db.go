package fulfiller

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the SQLite-backed order store. Amounts are persisted as decimal
// strings so nothing is lost to float rounding on the way in or out.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewStore(db *sql.DB, logger *zerolog.Logger) *Store {
	InitDB(db)
	return &Store{db: db, logger: logger}
}

func InitDB(db *sql.DB) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			amount TEXT,
			commission TEXT,
			provider TEXT,
			transfer_type TEXT,
			target_info TEXT,
			status TEXT,
			user_id TEXT,
			user_full_name TEXT,
			user_phone TEXT,
			receiving_card TEXT,
			device_type TEXT,
			status_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		log.Fatal(err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fulfillment_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT,
			status TEXT,
			reason TEXT,
			amount_matched TEXT,
			sender_phone TEXT,
			response_text TEXT,
			message TEXT,
			confirmed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		log.Fatal(err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS admin_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT,
			message TEXT,
			status TEXT DEFAULT 'unread',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		log.Fatal(err)
	}
}

func (s *Store) InsertOrder(o Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, amount, commission, provider, transfer_type, target_info, status,
			user_id, user_full_name, user_phone, receiving_card, device_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Amount.String(), o.Commission.String(), o.Provider, o.TransferType, o.TargetInfo,
		o.Status, o.UserID, o.UserFullName, o.UserPhone, o.ReceivingCard, o.DeviceType, o.CreatedAt)
	return err
}

// UpdateStatus applies a status transition and records it in the
// fulfillment log. It satisfies OrderStore.
func (s *Store) UpdateStatus(orderID string, update StatusUpdate) error {
	res, err := s.db.Exec(`
		UPDATE orders SET status = ?, status_reason = ? WHERE id = ?
	`, update.Status, update.Reason, orderID)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("no order with id %s", orderID)
	}

	var confirmedAt interface{}
	if !update.ConfirmedAt.IsZero() {
		confirmedAt = update.ConfirmedAt
	}
	_, err = s.db.Exec(`
		INSERT INTO fulfillment_log (order_id, status, reason, amount_matched, sender_phone, response_text, message, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, orderID, update.Status, update.Reason, update.AmountMatched.String(),
		update.SenderPhone, update.ResponseText, update.Message, confirmedAt)
	if err != nil {
		return fmt.Errorf("fulfillment log insert error: %w", err)
	}
	return nil
}

// PendingOrders returns every order whose stored status is "pending",
// oldest first.
func (s *Store) PendingOrders() ([]Order, error) {
	rows, err := s.db.Query(`
		SELECT id, amount, commission, provider, transfer_type, target_info, status,
			user_id, user_full_name, user_phone, receiving_card, device_type, created_at
		FROM orders
		WHERE status = ?
		ORDER BY created_at ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return orders, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// GetOrder fetches one order by id. The bool reports whether it exists.
func (s *Store) GetOrder(orderID string) (Order, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, amount, commission, provider, transfer_type, target_info, status,
			user_id, user_full_name, user_phone, receiving_card, device_type, created_at
		FROM orders WHERE id = ?
	`, orderID)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

// ExpireStalePending fails every pending order created before the cutoff.
// Used by the loader tool to clean up after restarts.
func (s *Store) ExpireStalePending(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`
		UPDATE orders SET status = ?, status_reason = ?
		WHERE status = ? AND created_at < ?
	`, StatusFailed, "expired before processing", StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("update error: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) InsertAdminNotification(kind, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO admin_notifications (type, message) VALUES (?, ?)
	`, kind, message)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var amount, commission string
	err := row.Scan(&o.ID, &amount, &commission, &o.Provider, &o.TransferType, &o.TargetInfo,
		&o.Status, &o.UserID, &o.UserFullName, &o.UserPhone, &o.ReceivingCard, &o.DeviceType, &o.CreatedAt)
	if err != nil {
		return Order{}, err
	}

	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Order{}, fmt.Errorf("bad amount for order %s: %w", o.ID, err)
	}
	o.Commission, err = decimal.NewFromString(commission)
	if err != nil {
		return Order{}, fmt.Errorf("bad commission for order %s: %w", o.ID, err)
	}
	return o, nil
}
