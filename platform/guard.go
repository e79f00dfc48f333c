package platform

import "context"

type guardKey struct{}

// guard marks a state-mutating call that is still in progress. It travels
// with the context into the ledger, so a callback that reuses the context is
// recognised as reentrant. While the ledger or the committer runs, the same
// guard is also published on the platform, which catches callbacks that
// arrive with a fresh context.
type guard struct {
	op string
}

func heldGuard(ctx context.Context) (*guard, bool) {
	g, ok := ctx.Value(guardKey{}).(*guard)
	return g, ok
}

func withGuard(ctx context.Context, op string) (context.Context, *guard) {
	g := &guard{op: op}
	return context.WithValue(ctx, guardKey{}, g), g
}

// external runs fn with g published as the outstanding call. The store is
// frozen until fn returns: no mutation happens while an external call is
// outstanding, so readers may observe it without the platform lock.
func (p *Platform) external(g *guard, fn func()) {
	p.calling.Store(g)
	defer func() {
		p.calling.Store(nil)
		// wait for readers that entered while the call was outstanding
		p.frozen.Lock()
		p.frozen.Unlock()
	}()
	fn()
}

// outstanding returns the guard of the call currently waiting on an
// external system, if any.
func (p *Platform) outstanding() *guard {
	return p.calling.Load()
}
