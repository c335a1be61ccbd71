package page

import (
	"golang.org/x/net/html"
)

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert  Op = "insert"   // child list grew under Target
	OpRemove  Op = "remove"   // child list shrank under Target
	OpText    Op = "text"     // character data of Target changed
	OpAttr    Op = "attr"     // attribute Name of Target set
	OpAttrDel Op = "attr_del" // attribute Name of Target removed
)

// Mutation describes one change. Origin identifies the writer; host page
// scripts use the empty origin.
type Mutation struct {
	Op     Op
	Target *html.Node
	Name   string
	Origin string
}

// EventType enumerates page lifecycle events.
type EventType string

const (
	EventUnload     EventType = "unload"
	EventVisibility EventType = "visibility"
)

// Event is a page lifecycle notification.
type Event struct {
	Type   EventType
	Hidden bool
}

type watcher struct {
	region *html.Node
	fn     func(Mutation)
}

// Watch subscribes fn to mutations that touch region: the region itself, any
// descendant, or an ancestor whose child list changed. The returned function
// unsubscribes and is safe to call more than once.
func (d *Document) Watch(region *html.Node, fn func(Mutation)) (unsubscribe func()) {
	d.watchMu.Lock()
	id := d.nextID
	d.nextID++
	d.watchers[id] = &watcher{region: region, fn: fn}
	d.watchMu.Unlock()
	return func() {
		d.watchMu.Lock()
		delete(d.watchers, id)
		d.watchMu.Unlock()
	}
}

// WatcherCount reports the number of live subscriptions.
func (d *Document) WatcherCount() int {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	return len(d.watchers)
}

// OnEvent subscribes fn to lifecycle events.
func (d *Document) OnEvent(fn func(Event)) (unsubscribe func()) {
	d.watchMu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.watchMu.Unlock()
	return func() {
		d.watchMu.Lock()
		delete(d.listeners, id)
		d.watchMu.Unlock()
	}
}

func (d *Document) emit(ev Event) {
	d.watchMu.Lock()
	fns := make([]func(Event), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.watchMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// mutate applies fn under the write lock and then notifies matching
// watchers outside of it, so callbacks may read or mutate the document.
func (d *Document) mutate(m Mutation, fn func()) {
	d.watchMu.Lock()
	var matched []func(Mutation)
	for _, w := range d.watchers {
		if touches(w.region, m.Target) {
			matched = append(matched, w.fn)
		}
	}
	d.watchMu.Unlock()

	d.mu.Lock()
	fn()
	d.mu.Unlock()

	for _, cb := range matched {
		cb(m)
	}
}

func touches(region, target *html.Node) bool {
	if region == nil || target == nil {
		return false
	}
	return Contains(region, target) || Contains(target, region)
}

// SetText replaces the data of a text node.
func (d *Document) SetText(origin string, n *html.Node, data string) {
	d.mutate(Mutation{Op: OpText, Target: n, Origin: origin}, func() {
		n.Data = data
	})
}

// SetAttr sets or replaces an attribute.
func (d *Document) SetAttr(origin string, n *html.Node, key, val string) {
	d.mutate(Mutation{Op: OpAttr, Target: n, Name: key, Origin: origin}, func() {
		setAttr(n, key, val)
	})
}

// RemoveAttr deletes an attribute if present.
func (d *Document) RemoveAttr(origin string, n *html.Node, key string) {
	d.mutate(Mutation{Op: OpAttrDel, Target: n, Name: key, Origin: origin}, func() {
		removeAttr(n, key)
	})
}

// AppendChild appends child to parent.
func (d *Document) AppendChild(origin string, parent, child *html.Node) {
	d.mutate(Mutation{Op: OpInsert, Target: parent, Origin: origin}, func() {
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		parent.AppendChild(child)
	})
}

// InsertBefore inserts child before ref under parent; a nil ref appends.
func (d *Document) InsertBefore(origin string, parent, child, ref *html.Node) {
	d.mutate(Mutation{Op: OpInsert, Target: parent, Origin: origin}, func() {
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		parent.InsertBefore(child, ref)
	})
}

// RemoveNode detaches n from its parent. Detached nodes are ignored.
func (d *Document) RemoveNode(origin string, n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	d.mutate(Mutation{Op: OpRemove, Target: parent, Origin: origin}, func() {
		if n.Parent == parent {
			parent.RemoveChild(n)
		}
	})
}

// ReplaceChildren detaches all children of parent, appends the given nodes,
// and returns the detached children in order.
func (d *Document) ReplaceChildren(origin string, parent *html.Node, children []*html.Node) []*html.Node {
	var old []*html.Node
	d.mutate(Mutation{Op: OpInsert, Target: parent, Origin: origin}, func() {
		for c := parent.FirstChild; c != nil; {
			next := c.NextSibling
			parent.RemoveChild(c)
			old = append(old, c)
			c = next
		}
		for _, c := range children {
			if c.Parent != nil {
				c.Parent.RemoveChild(c)
			}
			parent.AppendChild(c)
		}
	})
	return old
}

// Edit runs an arbitrary change to target's subtree as one mutation.
func (d *Document) Edit(origin string, op Op, target *html.Node, fn func()) {
	d.mutate(Mutation{Op: op, Target: target, Origin: origin}, fn)
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}
