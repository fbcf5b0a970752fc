package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
	"github.com/roach88/resmodel/internal/store"
	"github.com/roach88/resmodel/internal/transform"
	"github.com/roach88/resmodel/internal/tree"
)

// DefaultMaxSteps is the default maximum number of steps in one composite.
const DefaultMaxSteps = 1000

// Controller executes management operations against one resource tree.
//
// Thread-safety: Execute is safe from any goroutine. Writes are serialised
// by the tree; reads run concurrently with each other.
type Controller struct {
	reg      *registry.Registry
	policy   ir.VersionPolicy
	catalog  *transform.Catalog
	resolver *transform.Resolver
	tree     *tree.Tree
	store    *store.Store
	clock    SeqSource
	ids      IDGenerator
	builders map[string]Builder
	handles  *handles
	validate *validator
	logger   *slog.Logger
	defsHash string
	maxSteps int
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore journals every committed operation and keeps the snapshot in s.
// Without a store the controller is purely in-memory.
func WithStore(s *store.Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

// WithBuilder binds a builder to the definitions naming it.
func WithBuilder(name string, b Builder) Option {
	return func(c *Controller) {
		c.builders[name] = b
	}
}

// WithIDGenerator sets the operation ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Controller) {
		c.ids = g
	}
}

// WithClock sets the journal sequence source.
// Default: a Clock starting at 0, advanced by Restore.
func WithClock(s SeqSource) Option {
	return func(c *Controller) {
		c.clock = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithCatalog sets the converters and rewriters transformation rules may
// name. Default: transform.NewCatalog().
func WithCatalog(cat *transform.Catalog) Option {
	return func(c *Controller) {
		c.catalog = cat
	}
}

// WithMaxSteps limits the number of steps in one composite.
//
// Default: 1000 steps (DefaultMaxSteps). Zero disables the limit.
func WithMaxSteps(n int) Option {
	return func(c *Controller) {
		c.maxSteps = n
	}
}

// New creates a controller over a sealed registry. The tree starts empty;
// call Restore to load the stored snapshot.
func New(reg *registry.Registry, policy ir.VersionPolicy, opts ...Option) (*Controller, error) {
	if !reg.Sealed() {
		return nil, ir.Errorf(ir.KindConfigurationConflict, "registry must be sealed before it serves operations")
	}
	if err := reg.CheckPolicy(policy); err != nil {
		return nil, err
	}

	c := &Controller{
		reg:      reg,
		policy:   policy,
		tree:     tree.New(reg),
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		builders: make(map[string]Builder),
		handles:  newHandles(),
		validate: newValidator(),
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		c.catalog = transform.NewCatalog()
	}
	c.resolver = transform.NewResolver(reg, policy, transform.WithCatalog(c.catalog))

	hash, err := ir.DefinitionsHash(reg.Root().Children)
	if err != nil {
		return nil, fmt.Errorf("hash definitions: %w", err)
	}
	c.defsHash = hash

	// Builders named by definitions but never bound build nothing.
	_ = reg.Walk(func(addr ir.Address, def *ir.ResourceDefinition) error {
		if def.Builder != "" && c.builders[def.Builder] == nil {
			c.logger.Debug("no builder bound", "builder", def.Builder, "address", addr.String())
		}
		return nil
	})
	return c, nil
}

// Tree returns the controller's resource tree. Mutating it directly
// bypasses validation and the journal.
func (c *Controller) Tree() *tree.Tree {
	return c.tree
}

// Registry returns the sealed registry.
func (c *Controller) Registry() *registry.Registry {
	return c.reg
}

// Policy returns the version policy operations are resolved with.
func (c *Controller) Policy() ir.VersionPolicy {
	return c.policy
}

// Resolver returns the transformation resolver.
func (c *Controller) Resolver() *transform.Resolver {
	return c.resolver
}

// DefinitionsHash identifies the definitions the journal is written against.
func (c *Controller) DefinitionsHash() string {
	return c.defsHash
}

// Handle returns the runtime object built for the resource at addr.
func (c *Controller) Handle(addr ir.Address) (RuntimeHandle, bool) {
	return c.handles.get(addr)
}

// Close releases every runtime object. The store is owned by the caller.
func (c *Controller) Close() error {
	return c.handles.closeEverything(c.logger)
}

// Execute applies one management operation. Reads never modify the tree.
// A failing write leaves the tree, the journal and the runtime objects as
// they were.
func (c *Controller) Execute(ctx context.Context, op ir.Operation) (*ir.Result, error) {
	if errs := op.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, ir.Errorf(ir.KindValidationFailure, "%s", strings.Join(msgs, "; ")).
			At(op.Address).AtVersion(op.Version)
	}
	if op.Name == ir.OpComposite && c.maxSteps > 0 && len(op.Steps) > c.maxSteps {
		return nil, NewStepsError(len(op.Steps), c.maxSteps)
	}

	if op.Name.IsRead() {
		var value ir.Value
		err := c.tree.View(func(tx *tree.Txn) error {
			var err error
			value, err = c.step(tx, &batch{}, op)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &ir.Result{Value: value}, nil
	}
	return c.write(ctx, op)
}

func (c *Controller) write(ctx context.Context, op ir.Operation) (*ir.Result, error) {
	b := &batch{}
	var (
		value ir.Value
		stale []built
	)

	err := c.tree.Update(func(tx *tree.Txn) error {
		var err error
		if op.Name == ir.OpComposite {
			value, err = c.composite(tx, b, op)
		} else {
			value, err = c.step(tx, b, op)
		}
		if err != nil {
			return err
		}
		if err := c.finish(ctx, tx, b, op.Version); err != nil {
			return err
		}
		if len(b.applied) > 0 {
			if err := c.commit(ctx, tx, b, op); err != nil {
				return err
			}
		}
		// Handles change under the tree lock, in commit order.
		stale = c.handles.install(b.built, b.removed)
		return nil
	})
	if err != nil {
		closeAll(c.logger, b.built)
		c.logger.Debug("operation rejected", "operation", op.String(), "error", err)
		return nil, err
	}

	closeAll(c.logger, stale)
	if len(b.applied) > 0 {
		c.logger.Info("operation applied",
			"seq", b.seq,
			"id", b.id,
			"operation", op.String(),
			"version", op.Version,
			"applied", len(b.applied),
		)
	}
	return &ir.Result{Value: value, Applied: b.applied}, nil
}

// composite runs the steps in order against the same staged tree. A step
// without a version inherits the composite's. The result lists one
// outcome per step.
func (c *Controller) composite(tx *tree.Txn, b *batch, op ir.Operation) (ir.Value, error) {
	results := make(ir.List, 0, len(op.Steps))
	for i, step := range op.Steps {
		if step.Version == "" {
			step.Version = op.Version
		}
		value, err := c.step(tx, b, step)
		if err != nil {
			return nil, fmt.Errorf("step-%d: %w", i+1, err)
		}
		outcome := ir.Object{"outcome": ir.String("success")}
		if value != nil {
			outcome["result"] = value
		}
		results = append(results, outcome)
	}
	return results, nil
}

// step resolves one operation at its version, rewrites it into the current
// schema and applies it. Reads return their value.
func (c *Controller) step(tx *tree.Txn, b *batch, op ir.Operation) (ir.Value, error) {
	version, err := c.policy.ClientVersion(op.Version)
	if err != nil {
		return nil, ir.Errorf(ir.KindValidationFailure, "%v", err).At(op.Address).AtVersion(op.Version)
	}
	resolved, err := c.reg.LookupAt(op.Address, version, c.policy)
	if err != nil {
		return nil, err
	}
	addr := resolved.Address

	if resolved.Entry != nil {
		return c.entry(tx, b, op, resolved, version)
	}
	if op.Name.IsRead() {
		return c.read(tx, op, resolved, version)
	}

	ops := []ir.Operation{current(op, addr)}
	if !c.policy.IsCurrent(version) {
		plan, err := c.resolver.Resolve(addr, version)
		if err != nil {
			return nil, err
		}
		if ops, err = c.resolver.Rewrite(op, plan, tx); err != nil {
			return nil, err
		}
	}

	if err := b.claim(addr, ops); err != nil {
		return nil, withVersion(err, op.Version)
	}
	for _, cur := range ops {
		if err := c.apply(tx, b, cur); err != nil {
			return nil, withVersion(err, op.Version)
		}
	}
	return nil, nil
}

// current strips the version and canonicalises the address.
func current(op ir.Operation, addr ir.Address) ir.Operation {
	op.Version = ""
	op.Address = addr
	return op
}

// withVersion attaches the client version to a model error lacking one.
func withVersion(err error, version string) error {
	e, ok := ir.AsError(err)
	if !ok || e.Version != "" || version == "" {
		return err
	}
	return e.AtVersion(version)
}
