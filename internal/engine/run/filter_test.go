package run

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

func TestPassesQuality(t *testing.T) {
	tests := []struct {
		name       string
		lead       model.Lead
		thresholds model.Thresholds
		want       bool
	}{
		{"no gates", model.Lead{Rating: 0, ReviewCount: 0}, model.Thresholds{}, true},
		{"rating below gate", model.Lead{Rating: 3.2, ReviewCount: 50}, model.Thresholds{MinRating: 3.5}, false},
		{"rating at gate", model.Lead{Rating: 3.5, ReviewCount: 50}, model.Thresholds{MinRating: 3.5}, true},
		{"reviews below gate", model.Lead{Rating: 4.8, ReviewCount: 3}, model.Thresholds{MinReviews: 10}, false},
		{"both gates pass", model.Lead{Rating: 4.0, ReviewCount: 12}, model.Thresholds{MinRating: 3.5, MinReviews: 10}, true},
		{"unrated fails rating gate", model.Lead{Rating: 0, ReviewCount: 100}, model.Thresholds{MinRating: 1}, false},
		{"zero thresholds disable gates", model.Lead{Rating: 1.0, ReviewCount: 0}, model.Thresholds{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PassesQuality(tt.lead, tt.thresholds))
		})
	}
}
