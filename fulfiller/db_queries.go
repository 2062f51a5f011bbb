package fulfiller

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FulfillmentRecord is one row of the fulfillment log.
type FulfillmentRecord struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	AmountMatched string    `json:"amount_matched"`
	SenderPhone   string    `json:"sender_phone"`
	ResponseText  string    `json:"response_text"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

type FulfillmentStatsSummary struct {
	TotalOrders   int64                  `json:"total_orders"`
	TotalAmount   string                 `json:"total_amount"`
	ProviderStats []ProviderFulfillStats `json:"providers"`
}

type ProviderFulfillStats struct {
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	OrderCount  int64  `json:"order_count"`
	TotalAmount string `json:"total_amount"`
}

// GetFulfillmentStats aggregates order counts and amounts per provider and
// status. Amounts are summed as decimals, never as floats.
func (s *Store) GetFulfillmentStats() (*FulfillmentStatsSummary, error) {
	rows, err := s.db.Query(`
		SELECT provider, status, COUNT(*), GROUP_CONCAT(amount)
		FROM orders
		GROUP BY provider, status
	`)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	stats := FulfillmentStatsSummary{}
	total := decimal.NewFromInt(0)
	for rows.Next() {
		var p ProviderFulfillStats
		var amounts string
		if err := rows.Scan(&p.Provider, &p.Status, &p.OrderCount, &amounts); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		sum, err := sumDecimalList(amounts)
		if err != nil {
			return nil, err
		}
		p.TotalAmount = sum.String()

		stats.ProviderStats = append(stats.ProviderStats, p)
		stats.TotalOrders += p.OrderCount
		total = total.Add(sum)
	}

	stats.TotalAmount = total.String()
	return &stats, nil
}

// RecentFulfillments returns the latest fulfillment log entries, newest
// first.
func (s *Store) RecentFulfillments(limit int) ([]FulfillmentRecord, error) {
	rows, err := s.db.Query(`
		SELECT order_id, status, reason, amount_matched, sender_phone, response_text, message, created_at
		FROM fulfillment_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	records := []FulfillmentRecord{}
	for rows.Next() {
		var r FulfillmentRecord
		err := rows.Scan(&r.OrderID, &r.Status, &r.Reason, &r.AmountMatched,
			&r.SenderPhone, &r.ResponseText, &r.Message, &r.CreatedAt)
		if err != nil {
			return records, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// sumDecimalList adds up a comma separated list of decimal strings as
// produced by GROUP_CONCAT.
func sumDecimalList(amounts string) (decimal.Decimal, error) {
	sum := decimal.NewFromInt(0)
	if amounts == "" {
		return sum, nil
	}
	start := 0
	for i := 0; i <= len(amounts); i++ {
		if i == len(amounts) || amounts[i] == ',' {
			d, err := decimal.NewFromString(amounts[start:i])
			if err != nil {
				return sum, fmt.Errorf("bad amount in aggregate: %w", err)
			}
			sum = sum.Add(d)
			start = i + 1
		}
	}
	return sum, nil
}
