package fulfiller

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// OrderSeed is one entry of a seed file consumed by the loader tool.
// Amounts are decimal strings.
type OrderSeed struct {
	ID           string `json:"id,omitempty"`
	Amount       string `json:"amount"`
	Commission   string `json:"commission,omitempty"`
	Provider     string `json:"provider"`
	TransferType string `json:"transfer_type"`
	TargetInfo   string `json:"target_info,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserFullName string `json:"user_full_name,omitempty"`
	UserPhone    string `json:"user_phone"`
}

// OrdersFromFile parses a JSON seed file into pending orders. Seeds without
// an id get a fresh one.
func OrdersFromFile(path string) ([]Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seeds []OrderSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	orders := make([]Order, 0, len(seeds))
	for i, seed := range seeds {
		amount, err := decimal.NewFromString(seed.Amount)
		if err != nil {
			return nil, fmt.Errorf("seed %d: bad amount %q: %w", i, seed.Amount, err)
		}
		commission := decimal.NewFromInt(0)
		if seed.Commission != "" {
			commission, err = decimal.NewFromString(seed.Commission)
			if err != nil {
				return nil, fmt.Errorf("seed %d: bad commission %q: %w", i, seed.Commission, err)
			}
		}

		id := seed.ID
		if id == "" {
			id = uuid.NewString()
		}

		orders = append(orders, Order{
			ID:           id,
			Amount:       amount,
			Commission:   commission,
			Provider:     seed.Provider,
			TransferType: seed.TransferType,
			TargetInfo:   seed.TargetInfo,
			Status:       StatusPending,
			UserID:       seed.UserID,
			UserFullName: seed.UserFullName,
			UserPhone:    seed.UserPhone,
			CreatedAt:    time.Now(),
		})
	}
	return orders, nil
}

// LoadFromFile inserts seed orders that are not already in the store.
func (s *Store) LoadFromFile(path string) {
	s.logger.Info().Str("file", path).Msg("loading orders from file")
	orders, err := OrdersFromFile(path)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load orders from file")
		return
	}
	if len(orders) == 0 {
		s.logger.Info().Msg("no orders in file")
		return
	}

	// get all order ids already in the db
	rows, err := s.db.Query("SELECT id FROM orders")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to get order ids from the db")
		return
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.logger.Error().Err(err).Msg("failed to scan order id")
			continue
		}
		existing[id] = true
	}

	inserted := 0
	for _, o := range orders {
		if existing[o.ID] {
			s.logger.Debug().Str("order_id", o.ID).Msg("skipping existing order")
			continue
		}
		if err := s.InsertOrder(o); err != nil {
			s.logger.Error().Err(err).
				Str("order_id", o.ID).
				Msg("failed to insert seed order")
			continue
		}
		inserted++
	}
	s.logger.Info().Int("orders", len(orders)).Int("inserted", inserted).Msg("wrote orders from file")
}
