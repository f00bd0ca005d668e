package device

import (
	"errors"
	"fmt"

	"github.com/cornelk/hashmap"
)

// EndpointRole names the three GATT endpoints a session needs.
type EndpointRole uint8

const (
	RoleControlService EndpointRole = iota
	RoleWriteCharacteristic
	RoleReadNotifyCharacteristic
)

// AllRoles lists roles in resolution order.
var AllRoles = []EndpointRole{RoleControlService, RoleWriteCharacteristic, RoleReadNotifyCharacteristic}

func (r EndpointRole) String() string {
	switch r {
	case RoleControlService:
		return "control service"
	case RoleWriteCharacteristic:
		return "write characteristic"
	case RoleReadNotifyCharacteristic:
		return "read/notify characteristic"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// GattProfile identifies a device generation's endpoint layout.
type GattProfile uint8

const (
	ProfileFaFa02 GattProfile = iota
	ProfileFee9D44
)

func (p GattProfile) String() string {
	switch p {
	case ProfileFaFa02:
		return "fa/fa02"
	case ProfileFee9D44:
		return "fee9/d44"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

type profileLayout struct {
	profile          GattProfile
	service          string
	write            string
	notifyPreference []string
}

// profileLayouts is ordered: negotiation tries FaFa02 first.
var profileLayouts = []profileLayout{
	{
		profile:          ProfileFaFa02,
		service:          MustCanonicalUUID("000000fa-0000-1000-8000-00805f9b34fb"),
		write:            MustCanonicalUUID("0000fa02-0000-1000-8000-00805f9b34fb"),
		notifyPreference: []string{MustCanonicalUUID("0000fa03-0000-1000-8000-00805f9b34fb")},
	},
	{
		profile: ProfileFee9D44,
		service: MustCanonicalUUID("0000fee9-0000-1000-8000-00805f9b34fb"),
		write:   MustCanonicalUUID("d44bc439-abfd-45a2-b575-925416129600"),
		notifyPreference: []string{
			MustCanonicalUUID("d44bc439-abfd-45a2-b575-925416129601"),
			MustCanonicalUUID("d44bc439-abfd-45a2-b575-925416129616"),
		},
	},
}

// ErrRoleAlreadyResolved is returned when a role is bound twice.
var ErrRoleAlreadyResolved = errors.New("endpoint role already resolved")

// RoleMap binds each role to exactly one canonical UUID. Entries are insert-only.
type RoleMap struct {
	m *hashmap.Map[EndpointRole, string]
}

// NewRoleMap creates an empty RoleMap.
func NewRoleMap() *RoleMap {
	return &RoleMap{m: hashmap.New[EndpointRole, string]()}
}

// Bind records uuid for role. A second bind for the same role fails.
func (r *RoleMap) Bind(role EndpointRole, uuid string) error {
	canonical, err := CanonicalUUID(uuid)
	if err != nil {
		return err
	}
	actual, loaded := r.m.GetOrInsert(role, canonical)
	if loaded {
		return fmt.Errorf("%w: %s is %s", ErrRoleAlreadyResolved, role, actual)
	}
	return nil
}

// Get returns the UUID bound to role.
func (r *RoleMap) Get(role EndpointRole) (string, bool) {
	return r.m.Get(role)
}

// Len returns the number of bound roles.
func (r *RoleMap) Len() int {
	return r.m.Len()
}
