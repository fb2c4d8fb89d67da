// Package registry is the outward-facing credential registry: an ownable
// token per device, with the pairing extensions of the engagement and
// delegation packages layered on top.
//
// A Registry does not own its store. The store authority must be handed to
// the registry after both exist:
//
//	store := storage.NewMemoryStore(deployer)
//	reg, err := registry.New(store, registry.Config{
//	    Address:      registryAddr,
//	    Manufacturer: manufacturer,
//	})
//	err = store.TransferAuthority(ctx, deployer, reg.Address())
//
// Until the transfer happened every mutating operation fails with
// storage.ErrAccessDenied.
//
// Operations are serialised by a registry-wide lock. Each runs its checks,
// performs at most one store write and then emits its journal events, so a
// failed operation has no visible effect.
package registry
