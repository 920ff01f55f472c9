package conn

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stratum-sv2/sv2core/internal/metrics"
	"github.com/stratum-sv2/sv2core/internal/sv2msg"
)

// ErrUnknownRemote is returned when a Directive names a remote this
// registry never registered.
var ErrUnknownRemote = fmt.Errorf("conn: unknown remote")

// Registry is a Router that looks connections up by name: the
// generalization of internal/p2p/node.go's libp2p peer table (its
// peer-id-keyed connection bookkeeping) to SV2 connections named by
// session id instead of peer id.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Conn
	log  *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{byID: make(map[string]*Conn), log: log}
}

// Add registers c under c.ID, replacing any previous connection with the
// same id.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	metrics.NoiseSessions.Inc()
}

// Remove forgets the connection named id, if any.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		delete(r.byID, id)
		metrics.NoiseSessions.Dec()
	}
}

// Get returns the connection named id, if registered.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Route implements Router by sending d's message(s) to the remote(s) it
// names, or back to the connection named from for Respond and for a
// RelayNew with an empty Remote. A RelaySame directive is not routed;
// Conn rewrites it into a RelayNew before calling Route.
func (r *Registry) Route(from string, d sv2msg.Directive) error {
	switch {
	case d.IsNone():
		return nil
	case d.IsMultiple():
		var firstErr error
		for _, part := range d.Parts {
			if err := r.Route(from, part); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	case d.IsRelayNew():
		target := d.Remote
		if target == "" {
			target = from
		}
		return r.sendTo(target, d.Message)
	case d.IsRespond():
		return r.sendTo(from, d.Message)
	default:
		return nil
	}
}

// sendTo sends msg to the connection named target.
func (r *Registry) sendTo(target string, msg sv2msg.Message) error {
	c, ok := r.Get(target)
	if !ok {
		r.log.Warn("route to unknown remote", zap.String("remote", target), zap.Uint8("msg_type", msg.MsgType()))
		return fmt.Errorf("%w: %s", ErrUnknownRemote, target)
	}
	c.Send(msg)
	return nil
}
