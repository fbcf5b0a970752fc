package transform

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/resmodel/internal/ir"
)

// Converter is a named pair of pure value conversions between a deprecated
// attribute and the attribute that replaced it.
type Converter struct {
	// Down converts a current value into its legacy form.
	Down func(ir.Value) (ir.Value, error)
	// Up converts a legacy value into its current form.
	Up func(ir.Value) (ir.Value, error)
}

// Rewriter replaces the default rewrite of one operation on a deprecated
// attribute. op is addressed at the canonical current address.
type Rewriter func(op ir.Operation, plan *Plan, view View) ([]ir.Operation, error)

// Catalog holds the converters and rewriters rules may name.
//
// A catalog is not locked. Finish registering before it is handed to a
// resolver or controller; after that it is read concurrently.
type Catalog struct {
	converters map[string]Converter
	rewriters  map[string]Rewriter
}

// NewCatalog returns a catalog holding the builtin functions:
//
//	converters: identity, string-list
//	rewriters:  discard, reject
func NewCatalog() *Catalog {
	c := &Catalog{
		converters: make(map[string]Converter),
		rewriters:  make(map[string]Rewriter),
	}
	c.RegisterConverter("identity", Converter{Down: identity, Up: identity})
	c.RegisterConverter("string-list", Converter{Down: listToString, Up: stringToList})
	c.RegisterRewriter("discard", discard)
	c.RegisterRewriter("reject", reject)
	return c
}

// RegisterConverter adds or replaces a converter. It must not run
// concurrently with lookups.
func (c *Catalog) RegisterConverter(name string, conv Converter) {
	c.converters[name] = conv
}

// RegisterRewriter adds or replaces a rewriter.
func (c *Catalog) RegisterRewriter(name string, rw Rewriter) {
	c.rewriters[name] = rw
}

// HasConverter reports whether a converter is registered under name. Model
// validation and the resolver use it to check the names rules carry. Like
// every lookup it reads the catalog without locking.
func (c *Catalog) HasConverter(name string) bool {
	_, ok := c.converters[name]
	return ok
}

// HasRewriter reports whether a rewriter is registered under name.
func (c *Catalog) HasRewriter(name string) bool {
	_, ok := c.rewriters[name]
	return ok
}

// Converter returns the named converter. The empty name is identity.
func (c *Catalog) Converter(name string) (Converter, bool) {
	if name == "" {
		return Converter{Down: identity, Up: identity}, true
	}
	conv, ok := c.converters[name]
	return conv, ok
}

// Rewriter returns the named rewriter.
func (c *Catalog) Rewriter(name string) (Rewriter, bool) {
	rw, ok := c.rewriters[name]
	return rw, ok
}

// ConverterNames returns the registered converter names, sorted.
func (c *Catalog) ConverterNames() []string {
	return slices.Sorted(maps.Keys(c.converters))
}

// RewriterNames returns the registered rewriter names, sorted.
func (c *Catalog) RewriterNames() []string {
	return slices.Sorted(maps.Keys(c.rewriters))
}

func identity(v ir.Value) (ir.Value, error) {
	return ir.Clone(v), nil
}

// listToString joins a list of strings with commas.
func listToString(v ir.Value) (ir.Value, error) {
	list, ok := v.(ir.List)
	if !ok {
		return nil, fmt.Errorf("string-list: expected list, got %s", ir.TypeOf(v))
	}
	parts := make([]string, 0, len(list))
	for i, elem := range list {
		s, ok := elem.(ir.String)
		if !ok {
			return nil, fmt.Errorf("string-list: element %d is %s, not string", i, ir.TypeOf(elem))
		}
		if strings.Contains(string(s), ",") {
			return nil, fmt.Errorf("string-list: element %d contains a comma", i)
		}
		parts = append(parts, string(s))
	}
	return ir.String(strings.Join(parts, ",")), nil
}

// stringToList splits a comma separated string. Blank items are dropped.
func stringToList(v ir.Value) (ir.Value, error) {
	s, ok := v.(ir.String)
	if !ok {
		return nil, fmt.Errorf("string-list: expected string, got %s", ir.TypeOf(v))
	}
	list := ir.List{}
	for _, part := range strings.Split(string(s), ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, ir.String(part))
		}
	}
	return list, nil
}

// discard drops the operation: the legacy write has no current effect.
func discard(ir.Operation, *Plan, View) ([]ir.Operation, error) {
	return nil, nil
}

// reject refuses the operation for clients at the plan's version.
func reject(op ir.Operation, plan *Plan, _ View) ([]ir.Operation, error) {
	return nil, ir.Errorf(ir.KindUnsupportedRewrite, "%s is rejected for this version", op.Name).
		At(op.Address).Attr(op.Attribute).AtVersion(plan.Version.String())
}
