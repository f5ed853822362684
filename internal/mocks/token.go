package mocks

import (
	"sync"
	"time"
)

// Token is a paho Token the test completes by hand.
type Token struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	result map[string]byte
}

// NewToken returns a pending token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// CompletedToken returns a token that has already finished with err.
func CompletedToken(err error) *Token {
	t := NewToken()
	t.Complete(err)
	return t
}

// Complete finishes the token. Only the first call has any effect.
func (t *Token) Complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// SetResult sets the granted QoS per topic reported for a subscription.
func (t *Token) SetResult(result map[string]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = result
}

// Result mirrors paho's SubscribeToken.
func (t *Token) Result() map[string]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Token) Wait() bool {
	<-t.done
	return true
}

func (t *Token) WaitTimeout(timeout time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *Token) Done() <-chan struct{} {
	return t.done
}

func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
