package repository

import "errors"

// Sentinel causes for repository errors. They are always wrapped with an
// errs kind before leaving the package.
var (
	ErrRankingNotFound    = errors.New("ranking not found")
	ErrStatisticsNotFound = errors.New("statistics not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrInvalidRanking     = errors.New("invalid ranking")
)
