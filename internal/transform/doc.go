// Package transform turns the current resource model into what an older
// client sees, and turns that client's writes back into current-schema
// operations.
//
// Resolve computes a Plan for one node at one client version from the
// transformation rules along the node's chain. Project renders a current
// document through plans (down-version read); Rewrite translates one
// operation through a plan (up-version write). Both are pure: they read
// definitions and documents and never mutate a tree.
//
// Conversion functions and operation rewriters are referenced from rules by
// name and live in a Catalog, so each one can be tested on its own.
package transform
