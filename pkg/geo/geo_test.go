package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance_ZeroForIdenticalPoints(t *testing.T) {
	assert.Equal(t, 0.0, Distance(48.8566, 2.3522, 48.8566, 2.3522))
}

func TestDistance_OneThousandthDegreeLatitude(t *testing.T) {
	// 0.001 degrees of latitude is ~111.2m anywhere on the globe.
	d := Distance(52.0, 13.0, 52.001, 13.0)
	assert.InDelta(t, 111.2, d, 0.5)
}

func TestDistance_KnownCityPair(t *testing.T) {
	// Paris to London, ~343.5 km.
	d := Distance(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343500, d, 1500)
}

func TestDistance_Symmetric(t *testing.T) {
	a := Distance(10.0, 20.0, 11.0, 21.0)
	b := Distance(11.0, 21.0, 10.0, 20.0)
	assert.InDelta(t, a, b, 1e-9)
}
