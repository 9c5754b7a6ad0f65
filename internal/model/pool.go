package model

// Pool is the storage form of a team's stake pool.
type Pool struct {
	Team         string        `json:"team"`
	TotalStake   string        `json:"total_stake"`
	TotalRewards string        `json:"total_rewards"`
	Events       []RewardEvent `json:"events"`
}

// RewardEvent is one posted reward. StakeSnapshot is the pool stake at the
// instant before the reward was posted.
type RewardEvent struct {
	Sequence      uint64 `json:"sequence"`
	Amount        string `json:"amount"`
	StakeSnapshot string `json:"stake_snapshot"`
}
