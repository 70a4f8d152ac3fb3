// Package services implements the driving port interfaces.
//
// The sync engine is split into small services: the Paginator walks a scope,
// the Materializer writes batches into the graph, the Runner drives a unit
// through its scopes and the Controller owns unit lifecycle. They depend only
// on driven ports, so every storage and connector adapter is swappable.
package services
