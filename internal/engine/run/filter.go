package run

import "github.com/Toagan/leadgen-scraper/internal/model"

// PassesQuality is the post-dedup quality gate. A zero threshold disables
// that gate.
func PassesQuality(l model.Lead, t model.Thresholds) bool {
	if t.MinRating > 0 && l.Rating < t.MinRating {
		return false
	}
	if t.MinReviews > 0 && l.ReviewCount < t.MinReviews {
		return false
	}
	return true
}
