package sensor

import (
	"math/rand"
	"time"

	"github.com/packwatch/bms-sentinel/reading"
)

// Simulated produces plausible noisy readings around healthy 12V
// operation, for running without hardware and for soak tests.
type Simulated struct {
	rng *rand.Rand
}

func NewSimulated(seed int64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed))}
}

func (s *Simulated) Read() (reading.Reading, error) {
	return reading.Reading{
		Voltage:     12.5 + s.rng.Float64()*0.6 - 0.3,
		Current:     2.0 + s.rng.Float64()*1.0 - 0.5,
		Temperature: 35.0 + s.rng.Float64()*10.0 - 5.0,
		Time:        time.Now(),
	}, nil
}

func (s *Simulated) Close() error {
	return nil
}
