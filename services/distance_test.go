// services/distance_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	// Central London to central Cambridge, roughly 79.5 km.
	d := haversineKm(51.5074, -0.1278, 52.2053, 0.1218)
	assert.InDelta(t, 79.5, d, 2.0)

	assert.Zero(t, haversineKm(52.0, -0.75, 52.0, -0.75))

	// Symmetric in its arguments.
	assert.InDelta(t,
		haversineKm(51.5, -0.1, 52.2, 0.1),
		haversineKm(52.2, 0.1, 51.5, -0.1), 1e-9)
}
