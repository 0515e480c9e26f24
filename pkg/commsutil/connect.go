// Package commsutil provides COMMS connection helpers and utilities.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Role selects the reconnect policy of a connection.
type Role string

const (
	// RoleHost is the long-running development host. It keeps reconnecting.
	RoleHost Role = "host"
	// RoleWidget is a widget-side bridge. Pending requests time out after
	// seconds, so a widget gives up on a lost broker quickly.
	RoleWidget Role = "widget"
)

const (
	connectTimeout       = 5 * time.Second
	hostReconnectWait    = 2 * time.Second
	widgetReconnectWait  = 500 * time.Millisecond
	widgetMaxReconnects  = 10
	widgetPendingBufSize = 1 << 20
)

// ClientName names a connection after the service and, when known, the
// widget it carries, e.g. "widget-bridge/clock".
func ClientName(service, widgetID string) string {
	if widgetID == "" {
		return service
	}
	return service + "/" + widgetID
}

// Connect opens a COMMS connection for role.
func Connect(url, name string, role Role) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s (%s)", logPrefix, url, name, role))

	nc, err := comms.Connect(url, connectOptions(name, role)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS as %s: %w", logPrefix, role, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}

func connectOptions(name string, role Role) []comms.Option {
	opts := []comms.Option{
		comms.Name(name),
		comms.Timeout(connectTimeout),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - %s %q disconnected: %v", logPrefix, role, name, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - %s %q reconnected to %s", logPrefix, role, name, nc.ConnectedUrl()))
		}),
		comms.ErrorHandler(func(_ *comms.Conn, sub *comms.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Warn(fmt.Sprintf("%s - async error on %q: %v", logPrefix, subject, err))
		}),
	}

	switch role {
	case RoleWidget:
		opts = append(opts,
			comms.ReconnectWait(widgetReconnectWait),
			comms.MaxReconnects(widgetMaxReconnects),
			comms.ReconnectBufSize(widgetPendingBufSize),
		)
	default:
		opts = append(opts,
			comms.ReconnectWait(hostReconnectWait),
			comms.MaxReconnects(-1),
		)
	}
	return opts
}
