// Package registry holds the resource definition tree.
//
// Definitions are registered once at startup under their parent address.
// Seal checks the cross-references that can only be verified once the whole
// tree is known (deprecation targets, path redirects) and makes the registry
// read-only. A sealed registry is never mutated again, so any number of
// goroutines may look definitions up without locking.
//
// Lookup resolves current paths only. LookupAt also resolves the legacy
// alias an older client uses when one of the node's transformation rules
// redirects its path at that client's version.
package registry
