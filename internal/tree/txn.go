package tree

import (
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
)

// Txn is a staged view of a tree inside Update or View.
type Txn struct {
	reg      *registry.Registry
	root     *Resource
	readOnly bool
}

// Add creates the resource at addr. The parent must exist and addr must be
// free and registered.
func (tx *Txn) Add(addr ir.Address, model ir.Object) error {
	if err := tx.writable(addr); err != nil {
		return err
	}
	if addr.IsRoot() {
		return ir.Errorf(ir.KindValidationFailure, "the root cannot be added").At(addr)
	}
	def, err := tx.reg.Lookup(addr)
	if err != nil {
		return err
	}
	parent, err := find(tx.root, addr.Parent())
	if err != nil {
		return ir.Errorf(ir.KindNotFound, "parent %s does not exist", addr.Parent()).At(addr)
	}
	pe := addr.Last()
	if _, exists := parent.Children[pe]; exists {
		return ir.Errorf(ir.KindDuplicatePath, "resource already exists").At(addr)
	}
	parent.Children[pe] = newResource(def, model.Clone())
	return nil
}

// Remove destroys the resource at addr and its subtree.
func (tx *Txn) Remove(addr ir.Address) ([]ir.Address, error) {
	if err := tx.writable(addr); err != nil {
		return nil, err
	}
	if addr.IsRoot() {
		return nil, ir.Errorf(ir.KindValidationFailure, "the root cannot be removed").At(addr)
	}
	r, err := find(tx.root, addr)
	if err != nil {
		return nil, err
	}
	parent, _ := find(tx.root, addr.Parent())

	var removed []ir.Address
	var collect func(a ir.Address, res *Resource)
	collect = func(a ir.Address, res *Resource) {
		for _, pe := range res.ChildPaths() {
			collect(a.Append(pe), res.Children[pe])
		}
		removed = append(removed, a)
	}
	collect(addr, r)

	delete(parent.Children, addr.Last())
	return removed, nil
}

// WriteAttribute sets one attribute of the resource at addr.
func (tx *Txn) WriteAttribute(addr ir.Address, name string, value ir.Value) error {
	if err := tx.writable(addr); err != nil {
		return err
	}
	r, err := find(tx.root, addr)
	if err != nil {
		return err
	}
	r.Model[name] = ir.Clone(value)
	return nil
}

// UndefineAttribute removes one attribute of the resource at addr.
func (tx *Txn) UndefineAttribute(addr ir.Address, name string) error {
	if err := tx.writable(addr); err != nil {
		return err
	}
	r, err := find(tx.root, addr)
	if err != nil {
		return err
	}
	delete(r.Model, name)
	return nil
}

// Exists reports whether a resource exists at addr.
func (tx *Txn) Exists(addr ir.Address) bool {
	_, err := find(tx.root, addr)
	return err == nil
}

// Model returns a copy of the model at addr.
func (tx *Txn) Model(addr ir.Address) (ir.Object, bool) {
	r, err := find(tx.root, addr)
	if err != nil {
		return nil, false
	}
	return r.Model.Clone(), true
}

// Definition returns the definition bound to the resource at addr.
func (tx *Txn) Definition(addr ir.Address) (*ir.ResourceDefinition, bool) {
	r, err := find(tx.root, addr)
	if err != nil {
		return nil, false
	}
	return r.Definition, true
}

// ChildPaths returns the children of the resource at addr in address order.
func (tx *Txn) ChildPaths(addr ir.Address) []ir.PathElement {
	r, err := find(tx.root, addr)
	if err != nil {
		return nil
	}
	return r.ChildPaths()
}

// Document returns the nested document of the subtree at addr.
func (tx *Txn) Document(addr ir.Address) (ir.Object, error) {
	r, err := find(tx.root, addr)
	if err != nil {
		return nil, err
	}
	return document(r), nil
}

// Walk calls fn for every resource of the staged tree, parents first.
// fn receives copies of the models.
func (tx *Txn) Walk(fn func(addr ir.Address, model ir.Object) error) error {
	return walk(ir.Address{}, tx.root, func(addr ir.Address, r *Resource) error {
		return fn(addr, r.Model.Clone())
	})
}

func (tx *Txn) writable(addr ir.Address) error {
	if tx.readOnly {
		return ir.Errorf(ir.KindValidationFailure, "tree is opened read-only").At(addr)
	}
	return nil
}

// load adds the children found in doc under r, recursively. Keys that are
// not child keys of r's definition are attributes.
func (tx *Txn) load(addr ir.Address, r *Resource, doc ir.Object) error {
	for _, key := range doc.SortedKeys() {
		val := doc[key]
		if !isChildKey(r.Definition, key) {
			r.Model[key] = ir.Clone(val)
			continue
		}
		group, ok := val.(ir.Object)
		if !ok {
			return ir.Errorf(ir.KindValidationFailure, "child group %q is %s, not map", key, ir.TypeOf(val)).At(addr)
		}
		for _, value := range group.SortedKeys() {
			childAddr := addr.Append(ir.PE(key, value))
			childDoc, ok := group[value].(ir.Object)
			if !ok {
				return ir.Errorf(ir.KindValidationFailure, "child document is not a map").At(childAddr)
			}
			def, err := tx.reg.Lookup(childAddr)
			if err != nil {
				return err
			}
			child := newResource(def, nil)
			r.Children[ir.PE(key, value)] = child
			if err := tx.load(childAddr, child, childDoc); err != nil {
				return err
			}
		}
	}
	return nil
}

func isChildKey(def *ir.ResourceDefinition, key string) bool {
	for _, c := range def.Children {
		if c.Path.Key == key {
			return true
		}
	}
	return false
}
