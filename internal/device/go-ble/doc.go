// Package goble implements device.ConnectedSession on top of github.com/go-ble/ble.
//
// Notifications arrive on go-ble callback goroutines. They are copied into an overlapped
// ring buffer and a single pump goroutine forwards them to the Notifications channel, so a
// slow consumer loses the oldest values instead of stalling the BLE stack.
package goble
