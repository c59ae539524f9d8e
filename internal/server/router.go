package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"namedchat/internal/protocol"
)

var errNotFound = errors.New("recipient not found")

// Router decides where an inbound line goes and delivers it through the
// Registry.  Delivery is synchronous: it runs on the sender's goroutine and
// writes straight to each recipient's connection, so a slow recipient holds
// up the sender for the duration of that write.
type Router struct {
	registry   *Registry
	logger     *log.Logger
	terminator string // appended to every delivered line
}

// NewRouter returns a router over reg.  terminator is appended to each
// delivered line; pass "" to deliver lines exactly as formatted.
func NewRouter(reg *Registry, logger *log.Logger, terminator string) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{registry: reg, logger: logger, terminator: terminator}
}

// Route acts on one parsed line from sender and reports whether every
// resulting delivery succeeded.  Lines that cause no delivery return false.
func (r *Router) Route(sender string, d protocol.Directive, payload string) bool {
	switch d {
	case protocol.Broadcast:
		return r.Broadcast(sender, payload)

	case protocol.Private:
		return r.private(sender, payload)

	case protocol.UserList:
		names := r.registry.Names()
		return r.notify(sender, fmt.Sprintf("%d user(s) online: %s", len(names), strings.Join(names, ", ")))

	case protocol.Exit:
		// The session ends itself on !exit; nothing to deliver.
		return false
	}

	if d.Reserved() {
		r.logger.Printf("[router] reserved directive %q from %s dropped", d, sender)
	} else {
		r.logger.Printf("[router] unrecognized directive %q from %s dropped", d, sender)
	}
	return false
}

// Broadcast sends "<sender>: <payload>" to every registered client, sender
// included.  A failed send is logged and does not stop delivery to the rest.
// It returns true iff every send succeeded.
func (r *Router) Broadcast(sender, payload string) bool {
	return r.fanOut(sender, protocol.FormatChat(sender, payload))
}

// Announce broadcasts a server notice.
func (r *Router) Announce(text string) bool {
	return r.fanOut(protocol.SystemName, protocol.FormatSystem(text))
}

// Unicast sends message to target alone.  It returns false when target is not
// registered or the send fails.
func (r *Router) Unicast(target, message string) bool {
	return r.deliver(target, message) == nil
}

func (r *Router) fanOut(origin, line string) bool {
	data := r.frame(line)
	ok := true
	for _, e := range r.registry.Snapshot() {
		if err := e.Conn.Send(data); err != nil {
			ok = false
			r.logger.Printf("[router] broadcast from %s to %s failed: %v", origin, e.Name, err)
		}
	}
	return ok
}

func (r *Router) private(sender, payload string) bool {
	target, text, ok := protocol.SplitTarget(payload)
	if !ok {
		r.notify(sender, "usage: "+string(protocol.Private)+" <name> <message>")
		return false
	}
	err := r.deliver(target, protocol.FormatPrivate(sender, text))
	switch {
	case err == nil:
		return true
	case errors.Is(err, errNotFound):
		r.logger.Printf("[router] private from %s: %q %v", sender, target, err)
		r.notify(sender, fmt.Sprintf("user %q not found", target))
	default:
		r.logger.Printf("[router] private from %s to %s failed: %v", sender, target, err)
	}
	return false
}

// notify sends a server notice to one client.
func (r *Router) notify(target, text string) bool {
	err := r.deliver(target, protocol.FormatSystem(text))
	if err != nil && !errors.Is(err, errNotFound) {
		r.logger.Printf("[router] notice to %s failed: %v", target, err)
	}
	return err == nil
}

func (r *Router) deliver(target, line string) error {
	c, ok := r.registry.Lookup(target)
	if !ok {
		return errNotFound
	}
	return c.Send(r.frame(line))
}

func (r *Router) frame(line string) []byte {
	return []byte(line + r.terminator)
}
