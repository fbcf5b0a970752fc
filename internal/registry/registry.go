package registry

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
)

// Registry is the tree of resource definitions rooted at the empty address.
type Registry struct {
	root   *ir.ResourceDefinition
	sealed bool
	count  int
}

// New returns an empty, unsealed registry.
func New() *Registry {
	return &Registry{root: &ir.ResourceDefinition{Attributes: map[string]ir.AttributeSchema{}}}
}

// Build registers every top-level definition under the root and seals the
// registry.
func Build(defs []*ir.ResourceDefinition) (*Registry, error) {
	r := New()
	for _, def := range defs {
		if err := r.Register(ir.Address{}, def); err != nil {
			return nil, err
		}
	}
	if err := r.Seal(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds def, and recursively its children, under parent.
//
// Errors:
//   - NotFound: parent is not registered
//   - DuplicatePath: parent already has a child at def.Path
//   - ConfigurationConflict: def.Path's key equals one of the parent's
//     attribute names, a legacy path collides with a sibling, or the registry
//     is sealed
//
// def is copied; the registry never holds the caller's pointer. A failing
// call leaves the registry as it was.
func (r *Registry) Register(parent ir.Address, def *ir.ResourceDefinition) error {
	if r.sealed {
		return ir.Errorf(ir.KindConfigurationConflict, "registry is sealed").At(parent.Append(def.Path))
	}
	if def.Path.Key == "" || def.Path.Value == "" {
		return ir.Errorf(ir.KindConfigurationConflict, "definition has an empty path").At(parent)
	}

	p, err := r.Lookup(parent)
	if err != nil {
		return err
	}
	addr := parent.Append(def.Path)

	if p.Child(def.Path) != nil {
		return ir.Errorf(ir.KindDuplicatePath, "path %s is already registered", def.Path).At(addr)
	}
	if _, clash := p.Attributes[def.Path.Key]; clash {
		return ir.Errorf(ir.KindConfigurationConflict, "child key %q collides with an attribute of the parent", def.Path.Key).At(addr)
	}
	for _, sib := range p.Children {
		if slices.Contains(sib.LegacyPaths, def.Path) {
			return ir.Errorf(ir.KindConfigurationConflict, "path %s is a legacy alias of %s", def.Path, sib.Path).At(addr)
		}
		for _, legacy := range def.LegacyPaths {
			if legacy == sib.Path || slices.Contains(sib.LegacyPaths, legacy) {
				return ir.Errorf(ir.KindConfigurationConflict, "legacy path %s is already used by %s", legacy, sib.Path).At(addr)
			}
		}
	}
	for i, legacy := range def.LegacyPaths {
		if legacy == def.Path || slices.Contains(def.LegacyPaths[:i], legacy) {
			return ir.Errorf(ir.KindConfigurationConflict, "legacy path %s is repeated", legacy).At(addr)
		}
		if def.Path.IsWildcard() != legacy.IsWildcard() {
			return ir.Errorf(ir.KindConfigurationConflict, "legacy path %s must be a wildcard exactly when %s is", legacy, def.Path).At(addr)
		}
	}

	node := *def
	node.Children = nil
	node.Attributes = make(map[string]ir.AttributeSchema, len(def.Attributes))
	for name, attr := range def.Attributes {
		node.Attributes[name] = attr
	}
	count := r.count
	p.Children = append(p.Children, &node)
	r.count++

	for _, child := range def.Children {
		if err := r.Register(addr, child); err != nil {
			p.Children = slices.DeleteFunc(p.Children, func(c *ir.ResourceDefinition) bool { return c == &node })
			r.count = count
			return err
		}
	}
	return nil
}

// Seal verifies cross-references across the whole tree and makes the
// registry read-only. A failing Seal leaves the registry unsealed; callers
// treat the error as fatal.
func (r *Registry) Seal() error {
	if r.sealed {
		return nil
	}
	err := r.Walk(func(addr ir.Address, def *ir.ResourceDefinition) error {
		return checkDefinition(addr, def)
	})
	if err != nil {
		return err
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Len returns the number of registered definitions, excluding the root.
func (r *Registry) Len() int {
	return r.count
}

// Root returns the definition of the empty address. Its children are the
// top-level definitions.
func (r *Registry) Root() *ir.ResourceDefinition {
	return r.root
}

// Lookup returns the definition addressed by addr using current paths only.
// A concrete element matches a wildcard definition.
func (r *Registry) Lookup(addr ir.Address) (*ir.ResourceDefinition, error) {
	chain, err := r.Chain(addr)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return r.root, nil
	}
	return chain[len(chain)-1], nil
}

// Chain returns the definitions along addr, top-level first. The root
// address yields an empty chain.
func (r *Registry) Chain(addr ir.Address) ([]*ir.ResourceDefinition, error) {
	chain := make([]*ir.ResourceDefinition, 0, len(addr))
	def := r.root
	for i, pe := range addr {
		def = def.ChildFor(pe)
		if def == nil {
			return nil, ir.Errorf(ir.KindNotFound, "no resource definition for %s", pe).At(addr[:i+1])
		}
		chain = append(chain, def)
	}
	return chain, nil
}

// Walk calls fn for every registered definition in depth-first order,
// parents before children. The root is not visited.
func (r *Registry) Walk(fn func(addr ir.Address, def *ir.ResourceDefinition) error) error {
	var walk func(addr ir.Address, def *ir.ResourceDefinition) error
	walk = func(addr ir.Address, def *ir.ResourceDefinition) error {
		for _, child := range def.Children {
			childAddr := addr.Append(child.Path)
			if err := fn(childAddr, child); err != nil {
				return err
			}
			if err := walk(childAddr, child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(ir.Address{}, r.root)
}

// Resolved is the outcome of a version-aware lookup.
type Resolved struct {
	// Definition is the addressed node.
	Definition *ir.ResourceDefinition

	// Chain holds the definitions along the address, top-level first.
	Chain []*ir.ResourceDefinition

	// Address is the canonical current address. It differs from the
	// requested address when a legacy alias was used.
	Address ir.Address

	// Aliased reports whether any element was resolved through a legacy
	// alias.
	Aliased bool

	// Entry is set when the address names an entry child of a map
	// attribute. The resource does not exist in the current model: it
	// stands for one key of the attribute on the parent at Address.Parent().
	Entry *ir.MapChildren
}

// LookupAt resolves addr as a client at version sees it. Current paths
// resolve unless a rule active for version folds the child into a
// deprecated attribute of its parent. A legacy alias resolves only while a
// transformation rule of its node that redirects to it is active. Entry
// children of map attributes resolve while their rule is active.
func (r *Registry) LookupAt(addr ir.Address, version *semver.Version, policy ir.VersionPolicy) (*Resolved, error) {
	res := &Resolved{
		Definition: r.root,
		Chain:      make([]*ir.ResourceDefinition, 0, len(addr)),
		Address:    make(ir.Address, 0, len(addr)),
	}

	for i, pe := range addr {
		notFound := func() error {
			return ir.Errorf(ir.KindNotFound, "no resource definition for %s", pe).
				At(addr[:i+1]).AtVersion(version.String())
		}
		if res.Entry != nil {
			return nil, notFound()
		}

		parent := res.Definition
		canonical := pe
		def := parent.ChildFor(pe)
		if def != nil {
			folded, err := FoldedInto(parent, pe, version, policy)
			if err != nil {
				return nil, err
			}
			if folded != "" {
				return nil, ir.Errorf(ir.KindNotFound, "%s is the attribute %s at this version", pe, folded).
					At(addr[:i+1]).AtVersion(version.String())
			}
		}
		if def == nil {
			for _, c := range parent.Children {
				redirect, err := ActiveRedirect(c, version, policy)
				if err != nil {
					return nil, err
				}
				if redirect != nil && redirect.Matches(pe) && slices.ContainsFunc(c.LegacyPaths, func(l ir.PathElement) bool { return l.Matches(pe) }) {
					def = c
					canonical = canonicalElement(c.Path, pe)
					res.Aliased = true
					break
				}
			}
		}
		if def == nil {
			mc, err := ActiveMapChildren(parent, pe, version, policy)
			if err != nil {
				return nil, err
			}
			if mc != nil {
				attr, _ := parent.Attribute(mc.Attribute)
				def = mc.EntryDefinition(attr)
				res.Entry = mc
			}
		}
		if def == nil {
			return nil, notFound()
		}
		res.Definition = def
		res.Chain = append(res.Chain, def)
		res.Address = append(res.Address, canonical)
	}
	return res, nil
}

// FoldedInto returns the deprecated attribute of def that a rule active at
// version folds the child pe into, or "".
func FoldedInto(def *ir.ResourceDefinition, pe ir.PathElement, version *semver.Version, policy ir.VersionPolicy) (string, error) {
	for _, rule := range def.Transformations {
		if len(rule.AttributeRewrites) == 0 {
			continue
		}
		active, err := IsActive(rule, version, policy)
		if err != nil {
			return "", err
		}
		if !active {
			continue
		}
		for _, rw := range rule.AttributeRewrites {
			if rw.Kind() != ir.RewriteChild {
				continue
			}
			if target, err := rw.ChildPath(); err == nil && target == pe {
				return rw.Deprecated, nil
			}
		}
	}
	return "", nil
}

// ActiveMapChildren returns the map children of def's rules active at
// version whose path addresses pe, or nil. The highest threshold wins.
func ActiveMapChildren(def *ir.ResourceDefinition, pe ir.PathElement, version *semver.Version, policy ir.VersionPolicy) (*ir.MapChildren, error) {
	var (
		found *ir.MapChildren
		best  *semver.Version
	)
	for _, rule := range def.Transformations {
		for _, mc := range rule.MapChildren {
			if !mc.Path.Matches(pe) {
				continue
			}
			threshold, err := policy.Threshold(rule.AppliesBelow)
			if err != nil {
				return nil, ir.Errorf(ir.KindConfigurationConflict, "rule threshold").Wrap(err)
			}
			if !version.LessThan(threshold) || (best != nil && !threshold.GreaterThan(best)) {
				continue
			}
			found, best = &mc, threshold
		}
	}
	return found, nil
}

// CheckPolicy verifies that every rule threshold resolves under policy and
// is not above its current version.
func (r *Registry) CheckPolicy(policy ir.VersionPolicy) error {
	return r.Walk(func(addr ir.Address, def *ir.ResourceDefinition) error {
		for _, rule := range def.Transformations {
			threshold, err := policy.Threshold(rule.AppliesBelow)
			if err != nil {
				return ir.Errorf(ir.KindConfigurationConflict, "rule threshold").At(addr).Wrap(err)
			}
			if threshold.GreaterThan(policy.Current()) {
				return ir.Errorf(ir.KindConfigurationConflict,
					"rule below %s is above the current version %s", rule.AppliesBelow, policy.Current()).At(addr)
			}
		}
		return nil
	})
}

// ActiveRedirect returns the path redirect of def's rules active at
// version, or nil. Active rules that redirect to different paths are a
// ConfigurationConflict naming both thresholds.
func ActiveRedirect(def *ir.ResourceDefinition, version *semver.Version, policy ir.VersionPolicy) (*ir.PathElement, error) {
	var (
		redirect *ir.PathElement
		from     string
	)
	for _, rule := range def.Transformations {
		if rule.PathRedirect == nil {
			continue
		}
		active, err := IsActive(rule, version, policy)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}
		if redirect != nil && *redirect != *rule.PathRedirect {
			return nil, ir.Errorf(ir.KindConfigurationConflict,
				"rules below %s and %s redirect %s to both %s and %s",
				from, rule.AppliesBelow, def.Path, redirect, rule.PathRedirect).AtVersion(version.String())
		}
		redirect, from = rule.PathRedirect, rule.AppliesBelow
	}
	return redirect, nil
}

// IsActive reports whether rule applies to a client at version: the
// version is strictly below the rule's threshold.
func IsActive(rule ir.TransformationRule, version *semver.Version, policy ir.VersionPolicy) (bool, error) {
	threshold, err := policy.Threshold(rule.AppliesBelow)
	if err != nil {
		return false, ir.Errorf(ir.KindConfigurationConflict, "rule threshold").Wrap(err)
	}
	return version.LessThan(threshold), nil
}

// canonicalElement maps a concrete element addressed through an alias back
// to the definition's path. A wildcard definition keeps the instance name.
func canonicalElement(path, addressed ir.PathElement) ir.PathElement {
	if path.IsWildcard() {
		return ir.PE(path.Key, addressed.Value)
	}
	return path
}

// EffectiveElement maps a canonical element to what a client sees through
// redirect. A wildcard redirect keeps the instance name.
func EffectiveElement(canonical ir.PathElement, redirect *ir.PathElement) ir.PathElement {
	if redirect == nil {
		return canonical
	}
	if redirect.IsWildcard() {
		return ir.PE(redirect.Key, canonical.Value)
	}
	return *redirect
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d definitions, sealed=%t)", r.count, r.sealed)
}
