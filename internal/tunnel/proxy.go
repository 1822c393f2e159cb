package tunnel

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

var (
	ErrNoPending    = errors.New("no pending connection for id")
	ErrOwnerTimeout = errors.New("owner did not dial back")
)

// Proxy pairs a requester's byte stream with the owner's dial-back
// stream and pipes them until either side goes away. All in-flight
// bridges for a tunnel are registered so a stop or owner disconnect
// tears them down with the underlying sockets released on every path.
type Proxy struct {
	mu      sync.Mutex
	live    map[domain.TunnelID]struct{}
	pending map[string]chan io.ReadWriteCloser
	active  map[domain.TunnelID]map[string]*bridge
}

func NewProxy() *Proxy {
	return &Proxy{
		live:    make(map[domain.TunnelID]struct{}),
		pending: make(map[string]chan io.ReadWriteCloser),
		active:  make(map[domain.TunnelID]map[string]*bridge),
	}
}

// OpenTunnel marks a tunnel eligible for bridging. Run only bridges
// open tunnels, so a teardown racing a slow owner dial-back cannot
// resurrect a stopped tunnel.
func (p *Proxy) OpenTunnel(id domain.TunnelID) {
	p.mu.Lock()
	p.live[id] = struct{}{}
	p.mu.Unlock()
}

// Expect registers a fresh connection id the owner is about to dial
// back for, and returns it with the channel the owner leg arrives on.
func (p *Proxy) Expect() (connID string, owner <-chan io.ReadWriteCloser) {
	ch := make(chan io.ReadWriteCloser, 1)
	connID = uuid.NewString()
	p.mu.Lock()
	p.pending[connID] = ch
	p.mu.Unlock()
	return connID, ch
}

// Abort forgets a pending connection that never completed.
func (p *Proxy) Abort(connID string) {
	p.mu.Lock()
	delete(p.pending, connID)
	p.mu.Unlock()
}

// OfferOwnerLeg hands the owner's dialed-back stream to the requester
// waiting on connID. The caller keeps ownership on error.
func (p *Proxy) OfferOwnerLeg(connID string, rwc io.ReadWriteCloser) error {
	p.mu.Lock()
	ch, ok := p.pending[connID]
	if ok {
		delete(p.pending, connID)
	}
	p.mu.Unlock()
	if !ok {
		return ErrNoPending
	}
	ch <- rwc
	return nil
}

// Run bridges the requester and owner streams byte-for-byte in both
// directions, blocking until either side closes, ctx is canceled, or
// the tunnel is torn down. Both streams are closed on every exit path.
func (p *Proxy) Run(ctx context.Context, tunnelID domain.TunnelID, connID string, requester, owner io.ReadWriteCloser) {
	b := &bridge{a: requester, b: owner, done: make(chan struct{})}

	p.mu.Lock()
	if _, open := p.live[tunnelID]; !open {
		// The tunnel was closed while the legs were still connecting.
		p.mu.Unlock()
		b.close()
		log.Warn().Str("module", "tunnel").Str("tunnel", string(tunnelID)).Str("conn", connID).Msg("refusing bridge for closed tunnel")
		return
	}
	conns, ok := p.active[tunnelID]
	if !ok {
		conns = make(map[string]*bridge)
		p.active[tunnelID] = conns
	}
	conns[connID] = b
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if conns, ok := p.active[tunnelID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(p.active, tunnelID)
			}
		}
		p.mu.Unlock()
	}()

	log.Info().Str("module", "tunnel").Str("tunnel", string(tunnelID)).Str("conn", connID).Msg("bridge open")
	b.run(ctx)
	log.Info().Str("module", "tunnel").Str("tunnel", string(tunnelID)).Str("conn", connID).Msg("bridge closed")
}

// CloseTunnel implements the voice core's ProxyControl contract: every
// in-flight bridge for the tunnel is shut down.
func (p *Proxy) CloseTunnel(id domain.TunnelID) {
	p.mu.Lock()
	delete(p.live, id)
	conns := p.active[id]
	delete(p.active, id)
	p.mu.Unlock()
	for _, b := range conns {
		b.close()
	}
}

// ActiveConns reports in-flight bridges for a tunnel, for the ops
// surface and tests.
func (p *Proxy) ActiveConns(id domain.TunnelID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active[id])
}

// bridge is one requester↔owner pipe pair.
type bridge struct {
	a, b io.ReadWriteCloser
	once sync.Once
	done chan struct{}
}

// run copies both directions and returns when either copy stops.
// Closing both ends unblocks the surviving copy.
func (b *bridge) run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			b.close()
		case <-b.done:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(b.a, b.b)
		b.close()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(b.b, b.a)
		b.close()
	}()
	wg.Wait()
}

func (b *bridge) close() {
	b.once.Do(func() {
		_ = b.a.Close()
		_ = b.b.Close()
		close(b.done)
	})
}
