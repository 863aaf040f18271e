// Package session tracks who is signed in on a client and whether they hold
// the elevated role, and guards administrative routes on that basis.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

// ErrUnauthenticated is returned by Provider.Verify for a token that does
// not name a live session.
var ErrUnauthenticated = errors.New("unauthenticated")

type State int

const (
	Resolving State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity is a signed-in principal as reported by the identity provider.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Token string `json:"-"`
}

type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)
	SignInFederated(ctx context.Context, credential string) (Identity, error)
	// Verify resolves an access token to its identity, or ErrUnauthenticated.
	Verify(ctx context.Context, token string) (Identity, error)
	SignOut(ctx context.Context, id Identity) error
}

type RoleLookup interface {
	IsElevated(ctx context.Context, id Identity) (bool, error)
}

type Snapshot struct {
	State         State     `json:"state"`
	Identity      *Identity `json:"identity,omitempty"`
	Elevated      bool      `json:"elevated"`
	RoleResolving bool      `json:"roleResolving"`
}

// Settled reports whether neither the identity nor its role is pending.
func (s Snapshot) Settled() bool {
	return s.State != Resolving && !s.RoleResolving
}

// Admitted reports whether s may enter administrative routes.
func (s Snapshot) Admitted() bool {
	return s.State == Authenticated && s.Elevated && !s.RoleResolving
}

const defaultRoleTimeout = 5 * time.Second

// Gate is the session state machine of one client. All transitions happen
// under its lock, and role results that arrive for a superseded identity or
// after Close are discarded.
type Gate struct {
	provider    Provider
	roles       RoleLookup
	log         *zap.Logger
	roleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	snap    Snapshot
	gen     uint64
	closed  bool
	changed chan struct{}

	subs kit.Listeners[Snapshot]
}

func NewGate(p Provider, roles RoleLookup, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		provider:    p,
		roles:       roles,
		log:         log,
		roleTimeout: defaultRoleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		snap:        Snapshot{State: Resolving},
		changed:     make(chan struct{}),
	}
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap.clone()
}

// Observe applies an identity-provider signal: a concrete identity signs
// the client in and starts a role lookup, nil signs it out.
func (g *Gate) Observe(id *Identity) {
	g.observe(id, false)
}

// Resolve settles a Resolving gate from a stored access token. A token the
// provider rejects makes the client anonymous; a provider that cannot be
// reached leaves the gate resolving and returns the error.
func (g *Gate) Resolve(ctx context.Context, token string) error {
	if g.Snapshot().State != Resolving {
		return nil
	}
	if token == "" {
		g.observe(nil, true)
		return nil
	}

	id, err := g.provider.Verify(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		g.observe(nil, true)
		return nil
	}
	if err != nil {
		return err
	}
	g.observe(&id, true)
	return nil
}

func (g *Gate) SignInElevated(ctx context.Context, email, password string) (Snapshot, error) {
	id, err := g.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return g.Snapshot(), err
	}
	g.Observe(&id)
	return g.Snapshot(), nil
}

func (g *Gate) SignInFederated(ctx context.Context, credential string) (Snapshot, error) {
	id, err := g.provider.SignInFederated(ctx, credential)
	if err != nil {
		return g.Snapshot(), err
	}
	g.Observe(&id)
	return g.Snapshot(), nil
}

// SignOut ends the session with the provider and, once it agrees, resets
// the gate to Anonymous whatever the role was.
func (g *Gate) SignOut(ctx context.Context) error {
	var id Identity
	if cur := g.Snapshot().Identity; cur != nil {
		id = *cur
	}
	if err := g.provider.SignOut(ctx, id); err != nil {
		return err
	}
	g.Observe(nil)
	return nil
}

// Wait blocks until the snapshot is settled, the gate is closed or ctx is
// done, and returns the latest snapshot.
func (g *Gate) Wait(ctx context.Context) (Snapshot, error) {
	for {
		g.mu.Lock()
		snap, closed, ch := g.snap.clone(), g.closed, g.changed
		g.mu.Unlock()

		if closed || snap.Settled() {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (g *Gate) Subscribe(fn func(Snapshot)) (cancel func()) {
	return g.subs.Subscribe(fn)
}

func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close abandons any role lookup in flight. Later signals are ignored.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.gen++
	g.broadcastLocked()
	g.mu.Unlock()

	g.cancel()
}

func (g *Gate) observe(id *Identity, onlyIfResolving bool) {
	g.mu.Lock()
	if g.closed || (onlyIfResolving && g.snap.State != Resolving) {
		g.mu.Unlock()
		return
	}

	g.gen++
	gen := g.gen
	if id == nil {
		g.snap = Snapshot{State: Anonymous}
	} else {
		cp := *id
		g.snap = Snapshot{State: Authenticated, Identity: &cp, RoleResolving: true}
	}
	snap := g.snap.clone()
	g.broadcastLocked()
	g.mu.Unlock()

	g.subs.Notify(snap)

	if id != nil {
		go g.lookupRole(gen, *id)
	}
}

func (g *Gate) lookupRole(gen uint64, id Identity) {
	ctx, cancel := context.WithTimeout(g.ctx, g.roleTimeout)
	defer cancel()

	elevated, err := g.roles.IsElevated(ctx, id)
	if err != nil {
		g.log.Warn("role lookup failed", zap.String("uid", id.UID), zap.Error(err))
		elevated = false
	}

	g.mu.Lock()
	if g.closed || gen != g.gen {
		g.mu.Unlock()
		g.log.Debug("stale role result dropped", zap.String("uid", id.UID))
		return
	}
	g.snap.Elevated = elevated
	g.snap.RoleResolving = false
	snap := g.snap.clone()
	g.broadcastLocked()
	g.mu.Unlock()

	g.subs.Notify(snap)
}

func (g *Gate) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

func (s Snapshot) clone() Snapshot {
	if s.Identity != nil {
		cp := *s.Identity
		s.Identity = &cp
	}
	return s
}
