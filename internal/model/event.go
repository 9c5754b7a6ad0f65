package model

const (
	EventTeamCreated  = "team_created"
	EventStake        = "stake"
	EventRewardPosted = "reward_posted"
	EventWithdraw     = "withdraw"
)

// Event is emitted after a ledger call commits. Member is empty for
// pool-level events.
type Event struct {
	Kind      string `json:"kind"`
	Pool      string `json:"pool"`
	Member    string `json:"member,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Sequence  uint64 `json:"sequence,omitempty"`
	Timestamp string `json:"timestamp"`
}
