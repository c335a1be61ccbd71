package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/verte-zerg/overtype/internal/page"
)

// ActiveAttr marks the document element while a session owns the page.
const ActiveAttr = "data-overtype-active"

// ErrConcurrentSession is returned when another session already owns the page.
var ErrConcurrentSession = errors.New("session: another session is active on this page")

// Registry is the page-wide single-active-session marker. The claim is held
// both in memory and as an attribute on the document element, so separate
// registries over the same page still exclude each other.
type Registry struct {
	mu    sync.Mutex
	doc   *page.Document
	owner string
}

// NewRegistry returns the registry for doc.
func NewRegistry(doc *page.Document) *Registry {
	return &Registry{doc: doc}
}

// Acquire claims the page for id.
func (r *Registry) Acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != "" {
		return fmt.Errorf("%w: %s", ErrConcurrentSession, r.owner)
	}
	root := r.doc.DocumentElement()
	if root == nil {
		return fmt.Errorf("session: document has no root element")
	}
	if other, ok := page.Attr(root, ActiveAttr); ok && other != "" {
		return fmt.Errorf("%w: %s", ErrConcurrentSession, other)
	}
	r.owner = id
	r.doc.SetAttr(id, root, ActiveAttr, id)
	return nil
}

// Release gives up the claim if id holds it.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != id {
		return false
	}
	r.owner = ""
	if root := r.doc.DocumentElement(); root != nil {
		if v, ok := page.Attr(root, ActiveAttr); ok && v == id {
			r.doc.RemoveAttr(id, root, ActiveAttr)
		}
	}
	return true
}

// Active returns the owning session id, if any.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != "" {
		return r.owner
	}
	if root := r.doc.DocumentElement(); root != nil {
		if v, ok := page.Attr(root, ActiveAttr); ok {
			return v
		}
	}
	return ""
}

// ForceRelease clears any claim, including one left by another registry.
func (r *Registry) ForceRelease() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = ""
	if root := r.doc.DocumentElement(); root != nil {
		if _, ok := page.Attr(root, ActiveAttr); ok {
			r.doc.RemoveAttr("", root, ActiveAttr)
		}
	}
}
