package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svc(uuid string, chars ...CharacteristicInfo) ServiceInfo {
	return ServiceInfo{UUID: uuid, Characteristics: chars}
}

func char(uuid string, props Properties) CharacteristicInfo {
	return CharacteristicInfo{UUID: uuid, Properties: props}
}

const (
	fee9Write = "d44bc439-abfd-45a2-b575-925416129600"
	fee9Pref1 = "d44bc439-abfd-45a2-b575-925416129601"
	fee9Pref2 = "d44bc439-abfd-45a2-b575-925416129616"
)

func roleUUID(t *testing.T, n *Negotiation, role EndpointRole) string {
	t.Helper()
	uuid, ok := n.Roles.Get(role)
	require.True(t, ok, "%s MUST be resolved", role)
	return uuid
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name           string
		services       []ServiceInfo
		expectedGatt   GattProfile
		expectedNotify string
	}{
		{
			name:           "fa/fa02 with preferred notify",
			services:       []ServiceInfo{svc("00fa", char("fa02", PropWriteWithoutResponse), char("fa03", PropNotify))},
			expectedGatt:   ProfileFaFa02,
			expectedNotify: "0000fa03-0000-1000-8000-00805f9b34fb",
		},
		{
			name:           "fee9 falls back to second preference",
			services:       []ServiceInfo{svc("fee9", char(fee9Write, PropWrite), char(fee9Pref2, PropNotify))},
			expectedGatt:   ProfileFee9D44,
			expectedNotify: fee9Pref2,
		},
		{
			name:           "fee9 honours preference order",
			services:       []ServiceInfo{svc("fee9", char(fee9Write, PropWrite), char(fee9Pref2, PropNotify), char(fee9Pref1, PropNotify))},
			expectedGatt:   ProfileFee9D44,
			expectedNotify: fee9Pref1,
		},
		{
			name:           "any notifying characteristic on the service",
			services:       []ServiceInfo{svc("00fa", char("fa02", PropWrite), char("fa10", PropRead), char("fa09", PropIndicate))},
			expectedGatt:   ProfileFaFa02,
			expectedNotify: "0000fa09-0000-1000-8000-00805f9b34fb",
		},
		{
			name: "fa/fa02 wins when both generations are present",
			services: []ServiceInfo{
				svc("fee9", char(fee9Write, PropWrite), char(fee9Pref1, PropNotify)),
				svc("00fa", char("fa02", PropWrite), char("fa03", PropNotify)),
			},
			expectedGatt:   ProfileFaFa02,
			expectedNotify: "0000fa03-0000-1000-8000-00805f9b34fb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Negotiate(tt.services)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedGatt, n.Profile)
			assert.Equal(t, tt.expectedNotify, roleUUID(t, n, RoleReadNotifyCharacteristic))
			assert.Equal(t, 3, n.Roles.Len(), "all roles MUST be bound exactly once")
		})
	}
}

func TestNegotiateMissingEndpoints(t *testing.T) {
	// GOAL: Verify a failed negotiation names every unresolved role
	//
	// TEST SCENARIO: FA service without a writable fa02 and no notify characteristic → MissingEndpointsError → names write and read/notify roles

	_, err := Negotiate([]ServiceInfo{svc("00fa", char("fa02", PropRead))})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequiredEndpoints), "error MUST match ErrMissingRequiredEndpoints")

	var missing *MissingEndpointsError
	require.ErrorAs(t, err, &missing)
	require.Len(t, missing.Missing, 2)
	assert.Equal(t, RoleWriteCharacteristic, missing.Missing[0].Role)
	assert.Equal(t, RoleReadNotifyCharacteristic, missing.Missing[1].Role)
	assert.Contains(t, err.Error(), "write characteristic (0000fa02-0000-1000-8000-00805f9b34fb)")
	assert.Contains(t, err.Error(), "read/notify characteristic")

	presence, ok := missing.Presence.Get(RoleControlService)
	require.True(t, ok)
	require.Len(t, presence, 2, "presence MUST cover both profile candidates")
	assert.True(t, presence[0].Present)
	assert.Equal(t, ProfileFaFa02, presence[0].Profile)
	assert.False(t, presence[1].Present)
}

func TestNegotiateMissingNotifyOnly(t *testing.T) {
	// GOAL: Verify a writable fa02 without any notify characteristic names only the read/notify role
	//
	// TEST SCENARIO: FA service, writable fa02, read-only fa10 → MissingEndpointsError → read/notify role only

	_, err := Negotiate([]ServiceInfo{svc("00fa", char("fa02", PropWrite|PropWriteWithoutResponse), char("fa10", PropRead))})

	var missing *MissingEndpointsError
	require.ErrorAs(t, err, &missing)
	require.Len(t, missing.Missing, 1)
	assert.Equal(t, RoleReadNotifyCharacteristic, missing.Missing[0].Role)
	assert.Equal(t, []string{"0000fa03-0000-1000-8000-00805f9b34fb"}, missing.Missing[0].Expected)
	assert.NotContains(t, err.Error(), "write characteristic")
}

func TestNegotiatePreferredNotifyNeedsProperties(t *testing.T) {
	t.Run("falls back past a non-notifying preferred UUID", func(t *testing.T) {
		n, err := Negotiate([]ServiceInfo{svc("00fa", char("fa02", PropWrite), char("fa03", PropRead), char("fa09", PropNotify))})
		require.NoError(t, err)
		assert.Equal(t, "0000fa09-0000-1000-8000-00805f9b34fb", roleUUID(t, n, RoleReadNotifyCharacteristic))
	})

	t.Run("read-only preferred UUID does not resolve", func(t *testing.T) {
		_, err := Negotiate([]ServiceInfo{svc("00fa", char("fa02", PropWrite), char("fa03", PropRead))})

		var missing *MissingEndpointsError
		require.ErrorAs(t, err, &missing)
		require.Len(t, missing.Missing, 1)
		assert.Equal(t, RoleReadNotifyCharacteristic, missing.Missing[0].Role)

		presence, ok := missing.Presence.Get(RoleReadNotifyCharacteristic)
		require.True(t, ok)
		assert.Equal(t, RolePresence{Profile: ProfileFaFa02, UUID: "0000fa03-0000-1000-8000-00805f9b34fb", Present: false}, presence[0])
	})
}

func TestNegotiatePresenceIncludesFallbackNotify(t *testing.T) {
	_, err := Negotiate([]ServiceInfo{svc("00fa", char("fa02", PropRead), char("fa09", PropIndicate))})

	var missing *MissingEndpointsError
	require.ErrorAs(t, err, &missing)
	require.Len(t, missing.Missing, 1)
	assert.Equal(t, RoleWriteCharacteristic, missing.Missing[0].Role)

	write, ok := missing.Presence.Get(RoleWriteCharacteristic)
	require.True(t, ok)
	assert.False(t, write[0].Present, "a non-writable fa02 MUST not be reported present")

	notifyPresence, ok := missing.Presence.Get(RoleReadNotifyCharacteristic)
	require.True(t, ok)
	assert.Contains(t, notifyPresence, RolePresence{Profile: ProfileFaFa02, UUID: "0000fa09-0000-1000-8000-00805f9b34fb", Present: true})
}

func TestNegotiateNoServices(t *testing.T) {
	_, err := Negotiate(nil)
	var missing *MissingEndpointsError
	require.ErrorAs(t, err, &missing)
	assert.Len(t, missing.Missing, 3)
	assert.Equal(t, 3, missing.Presence.Len())
}
