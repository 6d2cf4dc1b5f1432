package ranking

import "fmt"

func errNoStatistics(playerID string) error {
	return fmt.Errorf("no statistics for player %q", playerID)
}

func errNoPlayer(playerID string) error {
	return fmt.Errorf("player %q not in catalog", playerID)
}
