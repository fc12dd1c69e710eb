package inventory

import (
	"context"
	"time"
)

// StockChangedEvent is published after a transaction that moved stock commits.
type StockChangedEvent struct {
	Source      string
	ReferenceID int64
	ProductIDs  []int64
	At          time.Time
}

// EventHandler receives committed stock changes.
type EventHandler interface {
	HandleStockChanged(ctx context.Context, evt StockChangedEvent) error
}

// ProductIDs collects the distinct product ids of movements in input order.
func ProductIDs(movements []Movement) []int64 {
	seen := make(map[int64]struct{}, len(movements))
	ids := make([]int64, 0, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		ids = append(ids, m.ProductID)
	}
	return ids
}
