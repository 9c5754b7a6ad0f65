package model

// Team maps a team authority to its ordered member list.
type Team struct {
	Authority string   `json:"authority"`
	Members   []string `json:"members"`
}
