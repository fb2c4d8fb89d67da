// Package storage is the system of record for SmartKey credentials.
//
// A [Store] holds one [Record] per device together with three indices: the
// device → token id reverse index and the owner/user balance counters. The
// store carries no business logic. It enforces a single authorized writer (the
// authority) and the basic data invariants of a record; state transitions are
// the business of the engagement and registry packages.
//
// # Authority
//
// Every mutating call names its caller. Only the current authority may mutate,
// and only the authority may hand the capability to someone else with
// TransferAuthority. A store is created with a bootstrap authority (the
// deployer) which then grants the capability to the registry:
//
//	store := storage.NewMemoryStore(deployer)
//	reg, _ := registry.New(store, cfg)
//	_ = store.TransferAuthority(ctx, deployer, reg.Address())
//
// # Implementations
//
//   - [MemoryStore]: maps guarded by a mutex
//   - [FileStore]: MemoryStore with JSON snapshot persistence
//   - [SQLStore]: bun over SQLite or PostgreSQL, one transaction per mutation
//
// # Record layout
//
// [EncodeRecord] produces the CBOR 9-tuple
// (owner, device, user, state, hashOwnerDevice, hashUserDevice,
// dataEngagement, timestamp, timeout) consumed by external indexers.
package storage
