package assets

import (
	"sync"

	"github.com/benmeehan/iot-swarm/pkg/identity"
)

// Pool hands out device identities, each at most once. It is safe for
// concurrent use by devices spawned in parallel.
type Pool struct {
	mu         sync.Mutex
	identities []identity.DeviceIdentity
}

// NewPool creates a pool owning a copy of identities.
func NewPool(identities []identity.DeviceIdentity) *Pool {
	owned := make([]identity.DeviceIdentity, len(identities))
	copy(owned, identities)
	return &Pool{identities: owned}
}

// Acquire removes and returns one identity. It returns ErrPoolExhausted when
// nothing is left.
func (p *Pool) Acquire() (identity.DeviceIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.identities)
	if n == 0 {
		return identity.DeviceIdentity{}, ErrPoolExhausted
	}
	id := p.identities[n-1]
	p.identities[n-1] = identity.DeviceIdentity{}
	p.identities = p.identities[:n-1]
	return id, nil
}

// Remaining returns how many identities are still available.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}
