// Package sim implements the cultivation simulation systems that run inside
// the tick engine's phases: device climate effects, zone environment
// derivation, irrigation, plant growth, and harvest.
package sim

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/cultivar/internal/facility"
)

// Climate generates the outdoor ambient environment as a function of the
// tick counter: a diurnal cycle plus slow noise drift, so two runs with the
// same seed see the same weather.
type Climate struct {
	tempNoise opensimplex.Noise
	humNoise  opensimplex.Noise

	// Baseline around which the diurnal cycle and drift move.
	MeanTempC    float64
	DiurnalSwing float64
	MeanHumidity float64
}

// NewClimate creates a seeded outdoor climate model with temperate defaults.
func NewClimate(seed int64) *Climate {
	return &Climate{
		tempNoise:    opensimplex.NewNormalized(seed),
		humNoise:     opensimplex.NewNormalized(seed + 1),
		MeanTempC:    16.0,
		DiurnalSwing: 6.0,
		MeanHumidity: 0.55,
	}
}

// Outdoor returns the ambient environment at a tick. One tick is one
// simulated hour for the purposes of the diurnal cycle.
func (c *Climate) Outdoor(tick int64) facility.Environment {
	hourOfDay := float64(tick % 24)
	// Coldest around 04:00, warmest around 16:00.
	diurnal := math.Sin((hourOfDay - 10.0) / 24.0 * 2 * math.Pi)

	// Slow drift: noise sampled along the time axis at low frequency.
	t := float64(tick)
	drift := (c.tempNoise.Eval2(t*0.01, 0) - 0.5) * 8.0
	humDrift := (c.humNoise.Eval2(t*0.008, 0) - 0.5) * 0.3

	hum := c.MeanHumidity - diurnal*0.1 + humDrift
	hum = clamp01(hum)

	ppfd := 0.0
	if hourOfDay >= 6 && hourOfDay <= 20 {
		// Rough solar curve peaking at 13:00.
		ppfd = 1800.0 * math.Sin((hourOfDay-6.0)/14.0*math.Pi)
		if ppfd < 0 {
			ppfd = 0
		}
	}

	return facility.Environment{
		TemperatureC:     c.MeanTempC + diurnal*c.DiurnalSwing + drift,
		RelativeHumidity: hum,
		CO2PPM:           420,
		PPFD:             ppfd,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
