package location

import (
	"math/rand"
	"sync"
)

// DefaultBase is the point simulated devices wander around.
var DefaultBase = Location{Latitude: 39.73, Longitude: -105.5221}

// JitterProvider returns Base offset by independent uniform [0,1) draws on each axis.
type JitterProvider struct {
	Base Location

	mu   sync.Mutex
	rand func() float64
}

// NewJitterProvider creates a provider around base. A nil randFn uses a
// private math/rand source.
func NewJitterProvider(base Location, randFn func() float64) *JitterProvider {
	if randFn == nil {
		randFn = rand.New(rand.NewSource(rand.Int63())).Float64
	}
	return &JitterProvider{Base: base, rand: randFn}
}

// GetLocation draws latitude first, then longitude.
func (j *JitterProvider) GetLocation() (Location, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Location{
		Latitude:  j.Base.Latitude + j.rand(),
		Longitude: j.Base.Longitude + j.rand(),
	}, nil
}
