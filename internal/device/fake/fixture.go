package fake

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
)

// HexBytes is a byte slice written in YAML as hex, optionally space separated.
type HexBytes []byte

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *HexBytes) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	b, err := parseHex(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*h = b
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (h HexBytes) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("% x", []byte(h)), nil
}

func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.ToLower(clean), "0x")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// CharacteristicFixture describes one characteristic of a fixture device.
type CharacteristicFixture struct {
	UUID       string   `yaml:"uuid"`
	Properties []string `yaml:"properties"`
	Value      HexBytes `yaml:"value,omitempty"`
}

// ServiceFixture describes one service of a fixture device.
type ServiceFixture struct {
	UUID            string                  `yaml:"uuid"`
	Characteristics []CharacteristicFixture `yaml:"characteristics"`
}

// Behavior scripts how the emulated display acknowledges transfers.
type Behavior struct {
	// GifCached answers the first GIF chunk with Finished.
	GifCached bool `yaml:"gif_cached"`
	// RejectStatus answers every chunk with Error(family, status) when non-zero.
	RejectStatus byte `yaml:"reject_status"`
	// FinishAfterChunks answers chunk N (1-based) with Finished when non-zero.
	FinishAfterChunks int `yaml:"finish_after_chunks"`
	// Silent never acknowledges anything.
	Silent bool `yaml:"silent"`
	// MaxFragment fails unacknowledged writes longer than this when non-zero.
	MaxFragment int `yaml:"max_fragment"`
}

// Fixture is a YAML description of an emulated display.
type Fixture struct {
	Name     string           `yaml:"name"`
	Address  string           `yaml:"address"`
	MaxWrite int              `yaml:"max_write"`
	Services []ServiceFixture `yaml:"services"`
	// Pending notifications are queued on the first subscription to their characteristic.
	Pending  []HexBytes `yaml:"pending"`
	Behavior Behavior   `yaml:"behavior"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixture reads and decodes a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %q: %w", path, err)
	}
	return ParseFixture(data)
}

func (f *Fixture) validate() error {
	if len(f.Services) == 0 {
		return fmt.Errorf("fixture %q declares no services", f.Name)
	}
	for _, svc := range f.Services {
		if _, err := device.CanonicalUUID(svc.UUID); err != nil {
			return fmt.Errorf("fixture %q: service: %w", f.Name, err)
		}
		for _, c := range svc.Characteristics {
			if _, err := device.CanonicalUUID(c.UUID); err != nil {
				return fmt.Errorf("fixture %q: characteristic: %w", f.Name, err)
			}
			if _, err := parseProperties(c.Properties); err != nil {
				return fmt.Errorf("fixture %q: characteristic %s: %w", f.Name, c.UUID, err)
			}
		}
	}
	return nil
}

func parseProperties(names []string) (device.Properties, error) {
	var p device.Properties
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "broadcast":
			p |= device.PropBroadcast
		case "read":
			p |= device.PropRead
		case "write":
			p |= device.PropWrite
		case "write-without-response", "write_without_response", "writenr":
			p |= device.PropWriteWithoutResponse
		case "notify":
			p |= device.PropNotify
		case "indicate":
			p |= device.PropIndicate
		default:
			return 0, fmt.Errorf("unknown property %q", name)
		}
	}
	return p, nil
}

// serviceInfos converts fixture services into canonical ServiceInfo values.
func (f *Fixture) serviceInfos() []device.ServiceInfo {
	out := make([]device.ServiceInfo, 0, len(f.Services))
	for _, svc := range f.Services {
		info := device.ServiceInfo{UUID: device.MustCanonicalUUID(svc.UUID)}
		for _, c := range svc.Characteristics {
			props, _ := parseProperties(c.Properties)
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:       device.MustCanonicalUUID(c.UUID),
				Properties: props,
			})
		}
		out = append(out, info)
	}
	return out
}

// FaFa02Fixture returns a fixture for the FA/FA02 device generation.
func FaFa02Fixture() *Fixture {
	return &Fixture{
		Name:     "IDM-FaFa02",
		Address:  "aa:bb:cc:dd:ee:01",
		MaxWrite: 509,
		Services: []ServiceFixture{{
			UUID: "00fa",
			Characteristics: []CharacteristicFixture{
				{UUID: "fa02", Properties: []string{"write", "write-without-response"}},
				{UUID: "fa03", Properties: []string{"notify"}},
			},
		}},
	}
}

// Fee9D44Fixture returns a fixture for the FEE9/D44 device generation.
func Fee9D44Fixture() *Fixture {
	return &Fixture{
		Name:     "IDM-Fee9",
		Address:  "aa:bb:cc:dd:ee:02",
		MaxWrite: 244,
		Services: []ServiceFixture{{
			UUID: "fee9",
			Characteristics: []CharacteristicFixture{
				{UUID: "d44bc439-abfd-45a2-b575-925416129600", Properties: []string{"write"}},
				{UUID: "d44bc439-abfd-45a2-b575-925416129616", Properties: []string{"notify", "read"}},
			},
		}},
	}
}
