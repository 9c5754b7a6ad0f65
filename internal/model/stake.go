package model

// Stake is the storage form of a member's stake record.
type Stake struct {
	Member     string `json:"member"`
	Pool       string `json:"pool"`
	Principal  string `json:"principal"`
	Checkpoint uint64 `json:"checkpoint"`
}
