package oracle

import (
	"sync"
)

// Pool hands out one Client per strength, starting engines on first use.
// An engine that failed to start, or was stopped after a timeout, is
// replaced on the next Get.
type Pool struct {
	opts Options

	mu      sync.Mutex
	clients map[int]*Client
}

// NewPool returns a pool whose clients share opts apart from the Elo.
func NewPool(opts Options) *Pool {
	return &Pool{opts: opts, clients: make(map[int]*Client)}
}

func (p *Pool) Get(elo int) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[elo]; ok {
		if !c.Broken() {
			return c, nil
		}
		delete(p.clients, elo)
		c.Close()
	}
	opts := p.opts
	opts.Elo = elo
	c, err := Open(opts)
	if err != nil {
		return nil, err
	}
	p.clients[elo] = c
	return c, nil
}

// Close stops every engine in the pool and returns the first error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for elo, c := range p.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.clients, elo)
	}
	return first
}
