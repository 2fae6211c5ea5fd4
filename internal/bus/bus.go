package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/yahallo-auth/yahallo/internal/domain"
)

const (
	// Name is both the well-known bus name and the interface name.
	Name      = "com.iamkroot.yahallo"
	Interface = Name
	Path      = dbus.ObjectPath("/")

	methodCheckMatch = "CheckMatch"
)

// Authenticator runs one authentication attempt.
type Authenticator interface {
	Authenticate(ctx context.Context, username string) error
}

// Conn is the subset of *dbus.Conn used to publish the service.
type Conn interface {
	ExportMethodTable(methods map[string]interface{}, path dbus.ObjectPath, iface string) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
}

var _ Conn = (*dbus.Conn)(nil)

// Service exposes CheckMatch on the bus.
type Service struct {
	ctx    context.Context
	auth   Authenticator
	logger *slog.Logger
}

// NewService binds auth to the bus. ctx bounds every call; bus method calls
// carry no context of their own.
func NewService(ctx context.Context, auth Authenticator, logger *slog.Logger) *Service {
	return &Service{
		ctx:    ctx,
		auth:   auth,
		logger: logger.With("component", "bus"),
	}
}

// CheckMatch authenticates username and returns the result string. Only
// "Success" grants access.
func (s *Service) CheckMatch(username string) (string, *dbus.Error) {
	err := s.auth.Authenticate(s.ctx, username)
	result := domain.Result(err)

	if err != nil && domain.CodeOf(err) == domain.CodeOther {
		s.logger.Error("check match failed", slog.String("username", username), slog.String("error", err.Error()))
	}
	return result, nil
}

func introspection() *introspect.Node {
	return &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: Interface,
				Methods: []introspect.Method{
					{
						Name: methodCheckMatch,
						Args: []introspect.Arg{
							{Name: "username", Type: "s", Direction: "in"},
							{Name: "result", Type: "s", Direction: "out"},
						},
					},
				},
			},
		},
	}
}

// Serve exports svc and claims the well-known name. It fails when another
// process already owns the name.
func Serve(conn Conn, svc *Service) error {
	methods := map[string]interface{}{
		methodCheckMatch: svc.CheckMatch,
	}
	if err := conn.ExportMethodTable(methods, Path, Interface); err != nil {
		return fmt.Errorf("export %s: %w", Interface, err)
	}

	if err := conn.Export(introspect.NewIntrospectable(introspection()), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(Name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", Name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already taken", Name)
	}

	svc.logger.Info("bus service ready", slog.String("name", Name), slog.String("path", string(Path)))
	return nil
}

// Client calls CheckMatch on a running daemon.
type Client struct {
	obj dbus.BusObject
}

func NewClient(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(Name, Path)}
}

// CheckMatch returns the daemon's raw result string. Transport failures are
// returned as errors; a denied attempt is not an error.
func (c *Client) CheckMatch(ctx context.Context, username string) (string, error) {
	var result string
	call := c.obj.CallWithContext(ctx, Interface+"."+methodCheckMatch, 0, username)
	if err := call.Store(&result); err != nil {
		return "", fmt.Errorf("call %s: %w", methodCheckMatch, err)
	}
	return result, nil
}
