package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yahallo-auth/yahallo/internal/domain"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

type fakeConn struct {
	methods   map[string]interface{}
	exported  map[string]interface{}
	reply     dbus.RequestNameReply
	nameErr   error
	exportErr error
	flags     dbus.RequestNameFlags
}

func newFakeConn() *fakeConn {
	return &fakeConn{exported: map[string]interface{}{}, reply: dbus.RequestNameReplyPrimaryOwner}
}

func (c *fakeConn) ExportMethodTable(methods map[string]interface{}, _ dbus.ObjectPath, _ string) error {
	if c.exportErr != nil {
		return c.exportErr
	}
	c.methods = methods
	return nil
}

func (c *fakeConn) Export(v interface{}, _ dbus.ObjectPath, iface string) error {
	c.exported[iface] = v
	return nil
}

func (c *fakeConn) RequestName(_ string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	c.flags = flags
	return c.reply, c.nameErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_CheckMatch(t *testing.T) {
	tests := []struct {
		name    string
		authErr error
		want    string
	}{
		{"success", nil, "Success"},
		{"timeout", domain.ErrTimeout, "Timeout"},
		{"no data", domain.ErrNoData, "NoData"},
		{"no face", domain.ErrNoFace, "NoFace"},
		{"multiple faces", domain.ErrMultipleFaces, "MultipleFaces"},
		{"too dark", domain.ErrTooDark, "TooDark"},
		{"unknown user", domain.ErrUnknownUser, "UnknownUser"},
		{"other", domain.Other(errors.New("capture frame: device gone")), "capture frame: device gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(MockAuthenticator)
			auth.On("Authenticate", mock.Anything, "alice").Return(tt.authErr)
			svc := NewService(context.Background(), auth, testLogger())

			result, dbusErr := svc.CheckMatch("alice")

			assert.Nil(t, dbusErr)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, tt.authErr == nil, domain.ParseResult(result) == nil)
			auth.AssertExpectations(t)
		})
	}
}

func TestServe(t *testing.T) {
	auth := new(MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "bob").Return(nil)
	conn := newFakeConn()

	require.NoError(t, Serve(conn, NewService(context.Background(), auth, testLogger())))

	assert.Equal(t, dbus.NameFlagDoNotQueue, conn.flags)
	require.Contains(t, conn.methods, "CheckMatch")
	fn, ok := conn.methods["CheckMatch"].(func(string) (string, *dbus.Error))
	require.True(t, ok)
	result, _ := fn("bob")
	assert.Equal(t, "Success", result)

	intro, ok := conn.exported["org.freedesktop.DBus.Introspectable"].(introspect.Introspectable)
	require.True(t, ok)
	xml, dbusErr := intro.Introspect()
	require.Nil(t, dbusErr)
	assert.True(t, strings.Contains(xml, `<method name="CheckMatch">`))
	assert.Contains(t, xml, Interface)
}

func TestServe_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *fakeConn)
		wantErr string
	}{
		{
			name:    "name already owned",
			setup:   func(c *fakeConn) { c.reply = dbus.RequestNameReplyExists },
			wantErr: "already taken",
		},
		{
			name:    "request fails",
			setup:   func(c *fakeConn) { c.nameErr = errors.New("access denied") },
			wantErr: "access denied",
		},
		{
			name:    "export fails",
			setup:   func(c *fakeConn) { c.exportErr = errors.New("path in use") },
			wantErr: "export com.iamkroot.yahallo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			tt.setup(conn)

			err := Serve(conn, NewService(context.Background(), new(MockAuthenticator), testLogger()))

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// TestClient_SessionBus round-trips a call through a real session bus when
// one is available.
func TestClient_SessionBus(t *testing.T) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Skipf("no session bus: %v", err)
	}
	defer func() { _ = conn.Close() }()

	auth := new(MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "carol").Return(domain.ErrTimeout)
	if err := Serve(conn, NewService(context.Background(), auth, testLogger())); err != nil {
		t.Skipf("cannot claim %s: %v", Name, err)
	}
	defer func() { _, _ = conn.ReleaseName(Name) }()

	result, err := NewClient(conn).CheckMatch(context.Background(), "carol")

	require.NoError(t, err)
	assert.Equal(t, "Timeout", result)
}
