// Package engine implements the management controller: the single entry
// point that applies add, remove, read-resource, read-attribute,
// write-attribute, undefine-attribute and composite operations to a
// resource tree.
//
// Request Flow:
//  1. The operation's address is resolved with the registry at the
//     operation's version (legacy aliases included).
//  2. Older versions are rewritten into current-schema operations by the
//     transformation resolver.
//  3. The current-schema operations are applied to a staged copy of the
//     tree; required children are created and models are validated.
//  4. Builders produce runtime objects for new or changed resources.
//  5. The operation is journaled and the snapshot replaced. Runtime
//     objects are recorded before the staged tree is installed.
//
// Any failure before step 5 completes leaves the tree, the store and the
// runtime objects untouched.
//
// Writers are serialised by the tree's write lock, and the store commit
// happens while it is held, so the journal order is the apply order. Reads
// take the shared lock and work on copies.
//
// All journal entries are stamped with a monotonic seq from the logical
// clock. NEVER use wall-clock timestamps for ordering.
package engine
