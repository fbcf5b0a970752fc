package engine

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/resmodel/internal/ir"
)

// RuntimeHandle is the runtime object a builder produced for a resource.
// The controller closes it when the resource is removed or rebuilt.
type RuntimeHandle interface {
	Close() error
}

// Builder turns a validated current model into a runtime object. It is
// bound to definitions by name (ir.ResourceDefinition.Builder). Returning
// an error rejects the operation that created or changed the resource.
type Builder func(ctx context.Context, addr ir.Address, model ir.Object) (RuntimeHandle, error)

// HandleFunc adapts a plain function to RuntimeHandle.
type HandleFunc func() error

// Close calls f.
func (f HandleFunc) Close() error {
	return f()
}

// handles tracks the live runtime objects keyed by canonical address.
type handles struct {
	mu     sync.Mutex
	byAddr map[string]RuntimeHandle
}

func newHandles() *handles {
	return &handles{byAddr: make(map[string]RuntimeHandle)}
}

func (h *handles) get(addr ir.Address) (RuntimeHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.byAddr[addr.String()]
	return r, ok
}

func (h *handles) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byAddr)
}

// built is a runtime object produced inside a pending operation.
type built struct {
	addr   ir.Address
	handle RuntimeHandle
}

// install records the new objects and returns the ones they replace or
// whose resources were removed, for the caller to close once the tree lock
// is released. Removed addresses arrive descendants first, so children
// close before their parents.
func (h *handles) install(created []built, removed []ir.Address) []built {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []built
	for _, addr := range removed {
		key := addr.String()
		if old, ok := h.byAddr[key]; ok {
			stale = append(stale, built{addr: addr, handle: old})
			delete(h.byAddr, key)
		}
	}
	for _, b := range created {
		key := b.addr.String()
		if old, ok := h.byAddr[key]; ok {
			stale = append(stale, built{addr: b.addr, handle: old})
		}
		h.byAddr[key] = b.handle
	}
	return stale
}

// closeAll closes handles in order, logging failures. Closing never fails
// an operation that has already committed.
func closeAll(logger *slog.Logger, list []built) {
	for _, b := range list {
		if err := b.handle.Close(); err != nil {
			logger.Warn("closing runtime handle failed",
				"address", b.addr.String(),
				"error", err,
			)
		}
	}
}

// closeEverything closes every live handle, deepest addresses first.
func (h *handles) closeEverything(logger *slog.Logger) error {
	h.mu.Lock()
	list := make([]built, 0, len(h.byAddr))
	for key, handle := range h.byAddr {
		addr, err := ir.ParseAddress(key)
		if err != nil {
			continue
		}
		list = append(list, built{addr: addr, handle: handle})
	}
	h.byAddr = make(map[string]RuntimeHandle)
	h.mu.Unlock()

	sortDeepestFirst(list)

	var errs []error
	for _, b := range list {
		if err := b.handle.Close(); err != nil {
			logger.Warn("closing runtime handle failed", "address", b.addr.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortDeepestFirst(list []built) {
	slices.SortFunc(list, func(a, b built) int {
		return cmp.Or(cmp.Compare(len(b.addr), len(a.addr)), strings.Compare(b.addr.String(), a.addr.String()))
	})
}
