package model

// Statistics is the accumulated per-player performance snapshot the ranking
// score is derived from. WinRate is a percentage in [0, 100].
type Statistics struct {
	PlayerID          string  `json:"player_id"`
	MatchesPlayed     int     `json:"matches_played"`
	MatchesWon        int     `json:"matches_won"`
	MatchesLost       int     `json:"matches_lost"`
	TotalPoints       float64 `json:"total_points"`
	AverageScore      float64 `json:"average_score"`
	TournamentsPlayed int     `json:"tournaments_played"`
	TournamentsWon    int     `json:"tournaments_won"`
	WinRate           float64 `json:"win_rate"`

	// Zeroed is set when a failed read was replaced by an all-zero snapshot.
	Zeroed bool `json:"-"`
}

// ZeroStatistics returns the substitute snapshot used when statistics could
// not be read and the engine is configured to continue with zeros.
func ZeroStatistics(playerID string) Statistics {
	return Statistics{PlayerID: playerID, Zeroed: true}
}

// PlayerRef is the minimal player identity the engine needs.
type PlayerRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Category Category `json:"category"`
}
