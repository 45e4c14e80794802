package repository

import "math"

// ratingK is the Elo K-factor applied on accepted submissions.
const ratingK = 32

// expectedScore is the standard Elo expectation of the user against the
// problem's rating.
func expectedScore(userRating, problemRating int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(problemRating-userRating)/400.0))
}

// acceptedRatingDelta is the rating change for solving a problem. Solves
// always count as a win, so the delta is never negative.
func acceptedRatingDelta(userRating, problemRating int) int {
	delta := ratingK * (1.0 - expectedScore(userRating, problemRating))
	return int(math.Round(delta))
}
