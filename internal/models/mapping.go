package models

import "time"

// Mapping is the durable record that a destination position exists because of
// a specific source position. It is the only authoritative proof of ownership:
// a destination position without a mapping is an orphan.
type Mapping struct {
	SourceAccountID  string    `json:"source_account_id"`
	SourcePositionID string    `json:"source_position_id"`
	DestAccountID    string    `json:"dest_account_id"`
	DestPositionID   string    `json:"dest_position_id"`
	SourceSymbol     string    `json:"source_symbol"`
	DestSymbol       string    `json:"dest_symbol"`
	SourceVolume     float64   `json:"source_volume"`
	DestVolume       float64   `json:"dest_volume"`
	SourceOpenPrice  float64   `json:"source_open_price"`
	DestOpenPrice    float64   `json:"dest_open_price"`
	OpenTime         time.Time `json:"open_time"`
	MappedAt         time.Time `json:"mapped_at"`
}

// Key returns the composite primary key of the mapping. The destination
// account is part of the key because one source position fans out to one
// mapping per destination route.
func (m *Mapping) Key() MappingKey {
	return MappingKey{
		SourceAccountID:  m.SourceAccountID,
		SourcePositionID: m.SourcePositionID,
		DestAccountID:    m.DestAccountID,
	}
}

// MappingKey identifies one mapping leg.
type MappingKey struct {
	SourceAccountID  string
	SourcePositionID string
	DestAccountID    string
}

// CloseInfo is the recently-closed record kept for a short TTL after an exit
// so a stale snapshot cannot re-open a just-closed position.
type CloseInfo struct {
	SourceAccountID  string    `json:"source_account_id"`
	SourcePositionID string    `json:"source_position_id"`
	DestAccountID    string    `json:"dest_account_id"`
	DestPositionID   string    `json:"dest_position_id"`
	Result           string    `json:"result"` // closed | already_closed | manual
	Profit           float64   `json:"profit"`
	OrderID          string    `json:"order_id,omitempty"`
	ClosedAt         time.Time `json:"closed_at"`
}
