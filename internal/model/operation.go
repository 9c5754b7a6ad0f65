package model

const (
	OpCreateTeam  = "create_team"
	OpStake       = "stake"
	OpPostRewards = "post_rewards"
	OpWithdraw    = "withdraw"
)

// Operation is one line of a batch input file.
type Operation struct {
	Op      string   `json:"op"`
	Caller  string   `json:"caller"`
	Team    string   `json:"team,omitempty"`
	Members []string `json:"members,omitempty"`
	Amount  string   `json:"amount,omitempty"`
}
