package testkit

import (
	"fmt"
	"math/rand"
	"time"

	"factorcorr/domain/factor"
)

// Relationship is the shape of the joint movement a generated pair follows
type Relationship string

const (
	CoMoving    Relationship = "co_moving"
	AntiMoving  Relationship = "anti_moving"
	Independent Relationship = "independent"
	Quadratic   Relationship = "quadratic"
	Linear      Relationship = "linear"
)

// SeriesGeneratorConfig configures the synthetic factor history generator
type SeriesGeneratorConfig struct {
	Points    int           `json:"points"`
	Noise     float64       `json:"noise"`
	StartDate time.Time     `json:"start_date"`
	Step      time.Duration `json:"step"`
	Seed      int64         `json:"seed"`
}

// DefaultSeriesConfig returns 60 daily points with light noise
func DefaultSeriesConfig() SeriesGeneratorConfig {
	return SeriesGeneratorConfig{
		Points:    60,
		Noise:     0.1,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:      24 * time.Hour,
		Seed:      42,
	}
}

// SeriesGenerator produces paired factor histories with a known relationship
type SeriesGenerator struct {
	config SeriesGeneratorConfig
	rng    *rand.Rand
}

// NewSeriesGenerator creates a generator; the same config always yields the same sequence of series
func NewSeriesGenerator(config SeriesGeneratorConfig) *SeriesGenerator {
	return &SeriesGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Series generates one paired history
func (g *SeriesGenerator) Series(rel Relationship) factor.TimeSeriesSample {
	out := make(factor.TimeSeriesSample, g.config.Points)
	walk := 0.0
	for i := range out {
		walk += g.rng.NormFloat64()
		noise := g.rng.NormFloat64() * g.config.Noise

		var a, b float64
		switch rel {
		case CoMoving:
			a, b = walk, walk+noise
		case AntiMoving:
			a, b = walk, -walk+noise
		case Quadratic:
			a = -3 + 6*float64(i)/float64(max(1, g.config.Points-1))
			b = a*a + noise
		case Linear:
			a = float64(i)
			b = 2*a + 3
		default:
			a, b = walk, g.rng.NormFloat64()
		}
		out[i] = factor.Point{
			Date:   g.config.StartDate.Add(time.Duration(i) * g.config.Step),
			ValueA: a,
			ValueB: b,
		}
	}
	return out
}

// Examples builds labelled training examples for a relationship. Factor names
// are derived from the relationship so embeddings separate the classes.
func (g *SeriesGenerator) Examples(rel Relationship, count int, correlation, confidence float64) []factor.TrainingExample {
	out := make([]factor.TrainingExample, count)
	for i := range out {
		conf := confidence
		series := g.Series(rel)
		out[i] = factor.TrainingExample{
			FactorA:     fmt.Sprintf("%s_a", rel),
			FactorB:     fmt.Sprintf("%s_b", rel),
			TimeSeries:  series,
			Correlation: correlation,
			Confidence:  &conf,
			DataPoints:  len(series),
		}
	}
	return out
}

// Interleave merges example sets round-robin so a trailing validation split sees every class
func Interleave(sets ...[]factor.TrainingExample) []factor.TrainingExample {
	var out []factor.TrainingExample
	for i := 0; ; i++ {
		added := false
		for _, set := range sets {
			if i < len(set) {
				out = append(out, set[i])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}
