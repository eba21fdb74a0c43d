// Package locstore tracks which cluster machines hold a replica of each
// content-addressed build-artifact blob.
//
// The package centers on Router, a dual-backend consistency layer that lets
// operators migrate location-metadata traffic between a legacy backend
// (queried per call against a shared store) and a replicated backend (served
// from a locally materialized view) without downtime. Reads and writes are
// routed independently, so any migration stage can be expressed as a pair of
// backend sets.
//
// Basic usage:
//
//	mode := locstore.NewModeSet(
//	    locstore.NewBackendSet(locstore.Replicated),                    // reads
//	    locstore.NewBackendSet(locstore.Legacy, locstore.Replicated),   // writes
//	)
//	router := locstore.New(mode, legacyBackend, replicatedBackend)
//
//	// Register replicas held by this machine
//	router.Register(ctx, "machine-7", []locstore.BlobRecord{{Hash: h, Size: 100}}, true)
//
//	// Bulk lookup, preferring the local view
//	locs, _ := router.Lookup(ctx, []locstore.ContentHash{h}, locstore.OriginLocal)
//
//	// Expiry management
//	router.Touch(ctx, "machine-7", hashes)
//	router.TrimByHashes(ctx, stale)
//
//	// Space reclamation
//	for c := range router.EvictionOrder(ctx, candidates) { ... }
//	router.GarbageCollect(ctx)
//
// Writes issued while both backends are in the write set are dual-writes:
// both sides are always started, both are always awaited, and the combined
// outcome is the conjunction of the two, so a half-successful write is never
// reported as a clean success. The router itself holds no state beyond its
// configuration; each backend owns its own storage and concurrency.
package locstore
