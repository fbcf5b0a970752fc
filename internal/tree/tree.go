// Package tree holds the runtime resource instances.
//
// A Tree owns its resources exclusively: a parent owns its children and
// removing it destroys the whole subtree. Writers take the tree's write
// lock, so operations on one tree are serialised; readers take the shared
// lock and always receive copies.
package tree

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
)

// Resource is one instance in the tree.
type Resource struct {
	// Definition is shared with the registry and never owned.
	Definition *ir.ResourceDefinition

	// Model maps attribute name to its current value. Undefined attributes
	// are absent.
	Model ir.Object

	Children map[ir.PathElement]*Resource
}

func newResource(def *ir.ResourceDefinition, model ir.Object) *Resource {
	if model == nil {
		model = ir.Object{}
	}
	return &Resource{Definition: def, Model: model, Children: map[ir.PathElement]*Resource{}}
}

// clone deep-copies the subtree. Definitions stay shared.
func (r *Resource) clone() *Resource {
	c := newResource(r.Definition, r.Model.Clone())
	for pe, child := range r.Children {
		c.Children[pe] = child.clone()
	}
	return c
}

// ChildPaths returns the child elements in address order.
func (r *Resource) ChildPaths() []ir.PathElement {
	return slices.SortedFunc(maps.Keys(r.Children), comparePath)
}

func comparePath(a, b ir.PathElement) int {
	return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Value, b.Value))
}

// Tree is a resource tree bound to a sealed registry.
type Tree struct {
	mu   sync.RWMutex
	reg  *registry.Registry
	root *Resource
}

// New returns a tree holding only the root resource.
func New(reg *registry.Registry) *Tree {
	return &Tree{reg: reg, root: newResource(reg.Root(), nil)}
}

// Registry returns the registry the tree's definitions come from.
func (t *Tree) Registry() *registry.Registry {
	return t.reg
}

// Update runs fn against a staged copy of the tree and installs the copy
// only when fn succeeds. A failing fn leaves the tree untouched. The write
// lock is held for the whole call.
func (t *Tree) Update(fn func(tx *Txn) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := &Txn{reg: t.reg, root: t.root.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	t.root = tx.root
	return nil
}

// View runs fn under the shared lock. fn must not retain or modify tx's
// resources.
func (t *Tree) View(fn func(tx *Txn) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(&Txn{reg: t.reg, root: t.root, readOnly: true})
}

// Add creates the resource at addr with model.
func (t *Tree) Add(addr ir.Address, model ir.Object) error {
	return t.Update(func(tx *Txn) error { return tx.Add(addr, model) })
}

// Remove destroys the resource at addr and its subtree. It returns the
// destroyed addresses, descendants before ancestors.
func (t *Tree) Remove(addr ir.Address) ([]ir.Address, error) {
	var removed []ir.Address
	err := t.Update(func(tx *Txn) error {
		var err error
		removed, err = tx.Remove(addr)
		return err
	})
	return removed, err
}

// WriteAttribute sets one attribute.
func (t *Tree) WriteAttribute(addr ir.Address, name string, value ir.Value) error {
	return t.Update(func(tx *Txn) error { return tx.WriteAttribute(addr, name, value) })
}

// UndefineAttribute removes one attribute from the model.
func (t *Tree) UndefineAttribute(addr ir.Address, name string) error {
	return t.Update(func(tx *Txn) error { return tx.UndefineAttribute(addr, name) })
}

// Exists reports whether a resource exists at addr.
func (t *Tree) Exists(addr ir.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, err := find(t.root, addr)
	return err == nil
}

// Model returns a copy of the model at addr.
func (t *Tree) Model(addr ir.Address) (ir.Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, err := find(t.root, addr)
	if err != nil {
		return nil, false
	}
	return r.Model.Clone(), true
}

// Get returns a deep copy of the resource at addr.
func (t *Tree) Get(addr ir.Address) (*Resource, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, err := find(t.root, addr)
	if err != nil {
		return nil, err
	}
	return r.clone(), nil
}

// Document returns the nested canonical document of the subtree at addr.
func (t *Tree) Document(addr ir.Address) (ir.Object, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, err := find(t.root, addr)
	if err != nil {
		return nil, err
	}
	return document(r), nil
}

// Walk calls fn for every resource, parents before children and siblings in
// address order. The root is visited first with the empty address. fn
// receives copies of the models.
func (t *Tree) Walk(fn func(addr ir.Address, model ir.Object) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return walk(ir.Address{}, t.root, func(addr ir.Address, r *Resource) error {
		return fn(addr, r.Model.Clone())
	})
}

// Len returns the number of resources, excluding the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := -1
	_ = walk(ir.Address{}, t.root, func(ir.Address, *Resource) error {
		n++
		return nil
	})
	return n
}

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Tree{reg: t.reg, root: t.root.clone()}
}

// Load replaces the whole tree with the content of a root document, as
// produced by Document(ir.Address{}).
func (t *Tree) Load(doc ir.Object) error {
	return t.Update(func(tx *Txn) error {
		tx.root = newResource(t.reg.Root(), nil)
		return tx.load(ir.Address{}, tx.root, doc)
	})
}

func find(root *Resource, addr ir.Address) (*Resource, error) {
	cur := root
	for i, pe := range addr {
		next, ok := cur.Children[pe]
		if !ok {
			return nil, ir.Errorf(ir.KindNotFound, "no resource at %s", pe).At(addr[:i+1])
		}
		cur = next
	}
	return cur, nil
}

func walk(addr ir.Address, r *Resource, fn func(ir.Address, *Resource) error) error {
	if err := fn(addr, r); err != nil {
		return err
	}
	for _, pe := range r.ChildPaths() {
		if err := walk(addr.Append(pe), r.Children[pe], fn); err != nil {
			return err
		}
	}
	return nil
}

// document renders attributes as fields and children under key, then
// value.
func document(r *Resource) ir.Object {
	doc := r.Model.Clone()
	for _, pe := range r.ChildPaths() {
		group, _ := doc[pe.Key].(ir.Object)
		if group == nil {
			group = ir.Object{}
			doc[pe.Key] = group
		}
		group[pe.Value] = document(r.Children[pe])
	}
	return doc
}
