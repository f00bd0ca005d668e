package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBaseSuffix completes a 16/32-bit assigned number into a full 128-bit UUID.
const bluetoothBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// CanonicalUUID converts a UUID string to lowercase dashed 128-bit form.
// Accepts dashed or undashed 128-bit UUIDs and 16/32-bit short forms (with or without 0x).
func CanonicalUUID(s string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, "0x")
	if raw == "" {
		return "", fmt.Errorf("empty UUID")
	}

	switch len(raw) {
	case 4:
		raw = "0000" + raw + bluetoothBaseSuffix
	case 8:
		raw = raw + bluetoothBaseSuffix
	}

	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// MustCanonicalUUID is CanonicalUUID for compile-time constants.
func MustCanonicalUUID(s string) string {
	c, err := CanonicalUUID(s)
	if err != nil {
		panic(err)
	}
	return c
}

// SameUUID compares two UUID strings on canonical form.
func SameUUID(a, b string) bool {
	ca, errA := CanonicalUUID(a)
	cb, errB := CanonicalUUID(b)
	return errA == nil && errB == nil && ca == cb
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
