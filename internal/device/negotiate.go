package device

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrMissingRequiredEndpoints matches every *MissingEndpointsError.
var ErrMissingRequiredEndpoints = errors.New("missing required endpoints")

// MissingEndpoint names one unresolved role and the UUIDs that would satisfy it.
type MissingEndpoint struct {
	Role     EndpointRole
	Expected []string
}

// RolePresence reports whether one profile candidate for a role was found.
type RolePresence struct {
	Profile GattProfile
	UUID    string
	Present bool
}

// MissingEndpointsError reports a failed negotiation.
type MissingEndpointsError struct {
	Missing  []MissingEndpoint
	Presence *orderedmap.OrderedMap[EndpointRole, []RolePresence]
}

func (e *MissingEndpointsError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.Role, strings.Join(m.Expected, " or ")))
	}
	return fmt.Sprintf("%s: %s", ErrMissingRequiredEndpoints, strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrMissingRequiredEndpoints) hold.
func (e *MissingEndpointsError) Is(target error) bool {
	return target == ErrMissingRequiredEndpoints
}

// Negotiation is the outcome of a successful endpoint negotiation.
type Negotiation struct {
	Profile GattProfile
	Roles   *RoleMap
}

type resolution struct {
	layout profileLayout
	uuids  map[EndpointRole]string
}

func (r resolution) complete() bool {
	return len(r.uuids) == len(AllRoles)
}

// Negotiate selects the first GATT profile whose three roles all resolve in services.
func Negotiate(services []ServiceInfo) (*Negotiation, error) {
	index := indexServices(services)

	resolutions := make([]resolution, 0, len(profileLayouts))
	for _, layout := range profileLayouts {
		res := resolve(layout, index)
		if res.complete() {
			roles := NewRoleMap()
			for _, role := range AllRoles {
				if err := roles.Bind(role, res.uuids[role]); err != nil {
					return nil, err
				}
			}
			return &Negotiation{Profile: layout.profile, Roles: roles}, nil
		}
		resolutions = append(resolutions, res)
	}

	return nil, explainFailure(resolutions, index)
}

type serviceIndex map[string]map[string]Properties

func indexServices(services []ServiceInfo) serviceIndex {
	idx := make(serviceIndex, len(services))
	for _, svc := range services {
		svcUUID, err := CanonicalUUID(svc.UUID)
		if err != nil {
			continue
		}
		chars, ok := idx[svcUUID]
		if !ok {
			chars = make(map[string]Properties, len(svc.Characteristics))
			idx[svcUUID] = chars
		}
		for _, c := range svc.Characteristics {
			charUUID, err := CanonicalUUID(c.UUID)
			if err != nil {
				continue
			}
			chars[charUUID] |= c.Properties
		}
	}
	return idx
}

func resolve(layout profileLayout, index serviceIndex) resolution {
	res := resolution{layout: layout, uuids: make(map[EndpointRole]string, len(AllRoles))}

	chars, ok := index[layout.service]
	if !ok {
		return res
	}
	res.uuids[RoleControlService] = layout.service

	if qualifies(chars, RoleWriteCharacteristic, layout.write) {
		res.uuids[RoleWriteCharacteristic] = layout.write
	}

	for _, candidate := range layout.notifyPreference {
		if qualifies(chars, RoleReadNotifyCharacteristic, candidate) {
			res.uuids[RoleReadNotifyCharacteristic] = candidate
			return res
		}
	}

	// any notifying characteristic on the service, lowest UUID for a stable pick
	notifiable := mapset.NewSet[string]()
	for uuid, props := range chars {
		if props.CanNotify() {
			notifiable.Add(uuid)
		}
	}
	if notifiable.Cardinality() > 0 {
		res.uuids[RoleReadNotifyCharacteristic] = lowest(notifiable.ToSlice())
	}
	return res
}

func lowest(uuids []string) string {
	best := uuids[0]
	for _, u := range uuids[1:] {
		if u < best {
			best = u
		}
	}
	return best
}

func expectedFor(layout profileLayout, role EndpointRole) []string {
	switch role {
	case RoleControlService:
		return []string{layout.service}
	case RoleWriteCharacteristic:
		return []string{layout.write}
	default:
		return layout.notifyPreference
	}
}

// explainFailure builds the presence report and names the roles missing from the
// closest profile candidate.
func explainFailure(resolutions []resolution, index serviceIndex) *MissingEndpointsError {
	presence := orderedmap.New[EndpointRole, []RolePresence]()
	for _, role := range AllRoles {
		entries := make([]RolePresence, 0, len(profileLayouts))
		for _, res := range resolutions {
			expected := expectedFor(res.layout, role)
			for _, uuid := range expected {
				entries = append(entries, RolePresence{
					Profile: res.layout.profile,
					UUID:    uuid,
					Present: uuidPresent(index, res.layout.service, role, uuid),
				})
			}
			if uuid, ok := res.uuids[role]; ok && !slices.Contains(expected, uuid) {
				entries = append(entries, RolePresence{Profile: res.layout.profile, UUID: uuid, Present: true})
			}
		}
		presence.Set(role, entries)
	}

	closest := resolutions[0]
	for _, res := range resolutions[1:] {
		if len(res.uuids) > len(closest.uuids) {
			closest = res
		}
	}

	unresolved := mapset.NewSet[EndpointRole](AllRoles...)
	for role := range closest.uuids {
		unresolved.Remove(role)
	}

	missing := make([]MissingEndpoint, 0, unresolved.Cardinality())
	for _, role := range AllRoles {
		if unresolved.Contains(role) {
			missing = append(missing, MissingEndpoint{Role: role, Expected: expectedFor(closest.layout, role)})
		}
	}

	return &MissingEndpointsError{Missing: missing, Presence: presence}
}

func uuidPresent(index serviceIndex, service string, role EndpointRole, uuid string) bool {
	chars, ok := index[service]
	if !ok {
		return false
	}
	if role == RoleControlService {
		return true
	}
	return qualifies(chars, role, uuid)
}

// qualifies reports whether uuid exists on the service with the properties role needs.
func qualifies(chars map[string]Properties, role EndpointRole, uuid string) bool {
	props, ok := chars[uuid]
	if !ok {
		return false
	}
	switch role {
	case RoleWriteCharacteristic:
		return props.CanWrite()
	case RoleReadNotifyCharacteristic:
		return props.CanNotify()
	default:
		return true
	}
}
