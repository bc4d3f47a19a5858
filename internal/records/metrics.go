package records

import "github.com/shopspring/decimal"

// Metrics aggregates the full, unfiltered collection.
type Metrics struct {
	Kind           string                     `json:"kind"`
	Total          int                        `json:"total"`
	ByStatus       map[string]int             `json:"byStatus"`
	TotalAmount    decimal.Decimal            `json:"totalAmount"`
	AmountByStatus map[string]decimal.Decimal `json:"amountByStatus"`
}

// Metrics is recomputed from the current collection on every call.
func (s *Store[T]) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := Metrics{
		Kind:           s.cfg.Kind,
		Total:          len(s.items),
		ByStatus:       make(map[string]int),
		TotalAmount:    decimal.Zero,
		AmountByStatus: make(map[string]decimal.Decimal),
	}
	for _, item := range s.items {
		status := item.StatusValue()
		amount := item.AmountValue()
		m.ByStatus[status]++
		m.TotalAmount = m.TotalAmount.Add(amount)
		m.AmountByStatus[status] = m.AmountByStatus[status].Add(amount)
	}
	return m
}
