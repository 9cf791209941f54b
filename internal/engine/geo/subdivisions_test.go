package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		region string
		lat    float64
		lng    float64
		want   string
	}{
		{"Berlin enclave wins over Brandenburg", "de", 52.5200, 13.4050, "Berlin"},
		{"Hamburg enclave", "de", 53.5511, 9.9937, "Hamburg"},
		{"Munich", "de", 48.1351, 11.5820, "Bayern"},
		{"Stuttgart", "de", 48.7758, 9.1829, "Baden-Württemberg"},
		{"Cologne", "de", 50.9375, 6.9603, "Nordrhein-Westfalen"},
		{"Kiel", "de", 54.3233, 10.1228, "Schleswig-Holstein"},
		{"North Sea", "de", 54.5000, 6.0000, Unclassified},
		{"London", "uk", 51.5074, -0.1278, "England"},
		{"Edinburgh", "uk", 55.9533, -3.1883, "Scotland"},
		{"Cardiff", "uk", 51.4816, -3.1791, "Wales"},
		{"Belfast", "uk", 54.5973, -5.9301, "Northern Ireland"},
		{"New York", "us", 40.7128, -74.0060, "Northeast"},
		{"Chicago", "us", 41.8781, -87.6298, "Midwest"},
		{"Houston", "us", 29.7604, -95.3698, "South"},
		{"Los Angeles", "us", 34.0522, -118.2437, "West"},
		{"unknown region", "zz", 48.0, 11.0, Unclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.region, tt.lat, tt.lng))
		})
	}
}

func TestSubdivisions(t *testing.T) {
	de := Subdivisions("de")
	assert.Len(t, de, 16)
	assert.IsIncreasing(t, de)
	assert.Contains(t, de, "Bayern")

	assert.Empty(t, Subdivisions("zz"))
}
