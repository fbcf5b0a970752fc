package transform

import (
	"cmp"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
)

// OverrideKey identifies an operation override.
type OverrideKey struct {
	Operation ir.OperationName
	Attribute string
}

// Plan is the resolved, version-specific view of one node.
type Plan struct {
	Version *semver.Version

	// Address is the canonical current address of the node.
	Address    ir.Address
	Definition *ir.ResourceDefinition

	// EffectivePath is the address as the client sees it: every element
	// goes through its own node's active path redirect.
	EffectivePath ir.Address

	// AttributeMap maps each deprecated attribute the client still uses to
	// its current location.
	AttributeMap map[string]ir.AttributeRewrite

	// OperationOverrides maps (operation, attribute) to a rewriter name.
	OperationOverrides map[OverrideKey]string

	// Omitted lists current attributes that did not exist yet at Version,
	// sorted. Map attributes the client sees as entry children are
	// included.
	Omitted []string

	// MapChildren lists the map attributes the client sees as entry
	// children, one per child key.
	MapChildren []ir.MapChildren

	// Identity is set when the client sees the current model unchanged.
	Identity bool
}

// IsOmitted reports whether name is hidden from the plan's client.
func (p *Plan) IsOmitted(name string) bool {
	_, found := slices.BinarySearch(p.Omitted, name)
	return found
}

// Legacy returns the deprecated attribute whose value the client sees in
// place of the child at pe, if any.
func (p *Plan) Legacy(pe ir.PathElement) (string, bool) {
	for name, rw := range p.AttributeMap {
		if rw.Kind() != ir.RewriteChild {
			continue
		}
		if target, err := rw.ChildPath(); err == nil && target == pe {
			return name, true
		}
	}
	return "", false
}

// Resolver computes plans from a sealed registry and a version policy.
type Resolver struct {
	reg     *registry.Registry
	policy  ir.VersionPolicy
	catalog *Catalog
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCatalog sets the catalog converters and rewriters are looked up in.
// Default: NewCatalog().
func WithCatalog(c *Catalog) ResolverOption {
	return func(r *Resolver) {
		r.catalog = c
	}
}

// NewResolver creates a resolver for reg under policy.
func NewResolver(reg *registry.Registry, policy ir.VersionPolicy, opts ...ResolverOption) *Resolver {
	r := &Resolver{reg: reg, policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil {
		r.catalog = NewCatalog()
	}
	return r
}

// Policy returns the resolver's version policy.
func (r *Resolver) Policy() ir.VersionPolicy {
	return r.policy
}

// Catalog returns the resolver's catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve computes the plan for the node at the canonical address addr as
// seen by a client at version.
//
// Rules are considered in descending threshold order and are active while
// version is strictly below their threshold. For each deprecated attribute
// and each operation override the first active rule wins. Active rules of
// one node that redirect its path differently are a ConfigurationConflict.
func (r *Resolver) Resolve(addr ir.Address, version *semver.Version) (*Plan, error) {
	chain, err := r.reg.Chain(addr)
	if err != nil {
		return nil, err
	}
	def := r.reg.Root()
	if len(chain) > 0 {
		def = chain[len(chain)-1]
	}

	plan := &Plan{
		Version:            version,
		Address:            addr,
		Definition:         def,
		EffectivePath:      addr,
		AttributeMap:       map[string]ir.AttributeRewrite{},
		OperationOverrides: map[OverrideKey]string{},
	}
	if r.policy.IsCurrent(version) {
		plan.Identity = true
		return plan, nil
	}

	effective := make(ir.Address, len(addr))
	for i, node := range chain {
		redirect, err := registry.ActiveRedirect(node, version, r.policy)
		if err != nil {
			return nil, withAddress(err, addr[:i+1])
		}
		effective[i] = registry.EffectiveElement(addr[i], redirect)
	}
	plan.EffectivePath = effective

	rules, err := r.activeRules(def, version)
	if err != nil {
		return nil, withAddress(err, addr)
	}
	entryKeys := make(map[string]bool)
	for _, rule := range rules {
		for _, mc := range rule.MapChildren {
			if entryKeys[mc.Path.Key] {
				continue
			}
			entryKeys[mc.Path.Key] = true
			plan.MapChildren = append(plan.MapChildren, mc)
			plan.Omitted = append(plan.Omitted, mc.Attribute)
		}
		for _, rw := range rule.AttributeRewrites {
			if _, seen := plan.AttributeMap[rw.Deprecated]; seen {
				continue
			}
			if err := r.checkRewrite(def, rw); err != nil {
				return nil, err.At(addr).AtVersion(version.String())
			}
			plan.AttributeMap[rw.Deprecated] = rw
		}
		for _, ov := range rule.OperationOverrides {
			key := OverrideKey{Operation: ov.Operation, Attribute: ov.Attribute}
			if _, seen := plan.OperationOverrides[key]; seen {
				continue
			}
			if !r.catalog.HasRewriter(ov.Rewriter) {
				return nil, ir.Errorf(ir.KindConfigurationConflict, "unknown rewriter %q", ov.Rewriter).
					At(addr).Attr(ov.Attribute).AtVersion(version.String())
			}
			plan.OperationOverrides[key] = ov.Rewriter
		}
	}

	for _, name := range def.AttributeNames() {
		attr := def.Attributes[name]
		if attr.IsDeprecated() || attr.Since == "" {
			continue
		}
		since, err := semver.NewVersion(attr.Since)
		if err != nil {
			return nil, ir.Errorf(ir.KindConfigurationConflict, "invalid since").At(addr).Attr(name).Wrap(err)
		}
		if version.LessThan(since) {
			plan.Omitted = append(plan.Omitted, name)
		}
	}
	slices.Sort(plan.Omitted)
	plan.Omitted = slices.Compact(plan.Omitted)

	return plan, nil
}

// activeRules returns def's rules active at version, highest threshold
// first. Rules with equal thresholds keep declaration order.
func (r *Resolver) activeRules(def *ir.ResourceDefinition, version *semver.Version) ([]ir.TransformationRule, error) {
	type ranked struct {
		rule      ir.TransformationRule
		threshold *semver.Version
	}
	var active []ranked
	for _, rule := range def.Transformations {
		threshold, err := r.policy.Threshold(rule.AppliesBelow)
		if err != nil {
			return nil, ir.Errorf(ir.KindConfigurationConflict, "rule threshold").Wrap(err)
		}
		if version.LessThan(threshold) {
			active = append(active, ranked{rule: rule, threshold: threshold})
		}
	}
	slices.SortStableFunc(active, func(a, b ranked) int {
		return cmp.Compare(0, a.threshold.Compare(b.threshold))
	})

	rules := make([]ir.TransformationRule, len(active))
	for i, a := range active {
		rules[i] = a.rule
	}
	return rules, nil
}

// checkRewrite re-verifies a rewrite at resolution time, including that its
// converter is known to this resolver's catalog.
func (r *Resolver) checkRewrite(def *ir.ResourceDefinition, rw ir.AttributeRewrite) *ir.Error {
	if err := registry.CheckRewrite(def, rw); err != nil {
		return err
	}
	if rw.Converter != "" && !r.catalog.HasConverter(rw.Converter) {
		return ir.Errorf(ir.KindConfigurationConflict, "unknown converter %q", rw.Converter).Attr(rw.Deprecated)
	}
	return nil
}

// withAddress sets addr on err when it is an *ir.Error without one.
func withAddress(err error, addr ir.Address) error {
	if e, ok := ir.AsError(err); ok && e.Address == "" {
		return e.At(addr)
	}
	return err
}
