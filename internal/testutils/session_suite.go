package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/device/fake"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// FakeSessionSuite runs tests against a device.Session backed by a fake.Peripheral.
//
// Usage:
//
//	type MySuite struct {
//	    testutils.FakeSessionSuite
//	}
//
//	func (s *MySuite) SetupTest() {
//	    s.Fixture = fake.Fee9D44Fixture()    // optional, defaults to FA/FA02
//	    s.FakeSessionSuite.SetupTest()       // call parent last to apply configuration
//	}
type FakeSessionSuite struct {
	suite.Suite

	Helper  *TestHelper
	Logger  *logrus.Logger
	Timeout time.Duration

	// Configuration consumed by SetupTest
	Fixture     *fake.Fixture
	FakeOptions []fake.Option
	Profile     device.DeviceProfile

	Peripheral *fake.Peripheral
	Session    *device.Session
}

// DefaultProfile is a 32x32 panel using timed GIF headers.
func DefaultProfile() device.DeviceProfile {
	return device.DeviceProfile{
		PanelWidth:        32,
		PanelHeight:       32,
		FallbackChunkSize: 18,
		GifHeader:         protocol.GifHeaderTimed,
		ImageMode:         device.ImageFile,
	}
}

// SetupSuite initializes the helper and logger once per suite.
func (s *FakeSessionSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Timeout = 5 * time.Second
}

// SetupTest opens a session on a fresh peripheral built from Fixture.
func (s *FakeSessionSuite) SetupTest() {
	s.Helper.LogHook.Reset()

	if s.Fixture == nil {
		s.Fixture = fake.FaFa02Fixture()
	}
	if s.Profile == (device.DeviceProfile{}) {
		s.Profile = DefaultProfile()
	}

	opts := append([]fake.Option{fake.WithLogger(s.Logger)}, s.FakeOptions...)
	s.Peripheral = fake.New(s.Fixture, opts...)

	session, err := device.Open(context.Background(), s.Peripheral, s.Profile, s.Logger)
	s.Require().NoError(err, "fake session MUST open")
	s.Session = session
}

// Reopen replaces the current session with one on a new peripheral.
func (s *FakeSessionSuite) Reopen(fixture *fake.Fixture, opts ...fake.Option) {
	if s.Session != nil {
		_ = s.Session.Close(context.Background())
	}
	s.Fixture = fixture
	s.FakeOptions = opts
	s.Session = nil
	s.SetupTest()
}

// TearDownTest closes the session and resets per-test configuration.
func (s *FakeSessionSuite) TearDownTest() {
	if s.Session != nil {
		if err := s.Session.Close(context.Background()); err != nil {
			s.Logger.WithError(err).Debug("Session close failed during teardown")
		}
	}
	s.Session = nil
	s.Peripheral = nil
	s.Fixture = nil
	s.FakeOptions = nil
	s.Profile = device.DeviceProfile{}
}

// Context returns a context bounded by the suite timeout.
func (s *FakeSessionSuite) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	s.T().Cleanup(cancel)
	return ctx
}
