package model

// Snapshot is the full ledger state. Amounts are decimal strings.
type Snapshot struct {
	Owner     string  `json:"owner"`
	Teams     []Team  `json:"teams"`
	Pools     []Pool  `json:"pools"`
	Stakes    []Stake `json:"stakes"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}
