// Package engine implements the module registry: the authoritative rules for
// enabling, disabling, installing, uninstalling and configuring modules,
// reconciliation of a declarative baseline into the store, and the derived
// read views (status, statistics, enabled set) served through the cache.
//
// Every mutating operation runs in a single store transaction while holding
// a lock on the target key, so precondition checks and the write commit
// together. Caches are invalidated only after a successful commit.
package engine
