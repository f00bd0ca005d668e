// Package device models a connected LED-matrix display over Bluetooth Low Energy.
//
// This package provides:
//   - Endpoint-role negotiation across the supported GATT profiles
//   - A Session that owns the transport handle and exposes role operations
//   - A cancellable, single-consumer notification stream bound to one role
//   - The ConnectedSession capability interface implemented by transport backends
//
// Backends live in sub-packages: go-ble for real hardware and fake for fixtures.
package device
