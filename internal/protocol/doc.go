// Package protocol implements the binary wire formats spoken by the LED-matrix display.
//
// Two frame shapes exist on the wire, both little-endian:
//   - Short frames carry control commands: a 4-byte header (total length, command id,
//     command namespace) followed by the command payload.
//   - Chunk headers (16 bytes) prefix every logical chunk of a bulk transfer (text, GIF,
//     image) and carry the total payload length and its CRC-32.
//
// Everything in this package is pure encode/decode with no I/O.
package protocol
