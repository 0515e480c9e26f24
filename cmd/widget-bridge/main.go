// Package main is a command-line widget: it attaches a bridge to a host and
// invokes capabilities, reads context, emits and watches events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/widget-bridge/internal/config"
	"github.com/morezero/widget-bridge/pkg/bridge"
	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/events"
	"github.com/morezero/widget-bridge/pkg/invoke"
	"github.com/morezero/widget-bridge/pkg/manifest"
	"github.com/morezero/widget-bridge/pkg/metrics"
	"github.com/morezero/widget-bridge/pkg/protocol"
	"github.com/morezero/widget-bridge/pkg/transport"
	"github.com/morezero/widget-bridge/pkg/widget"
)

const usage = `Usage: widget-bridge <command> [args]
       widget-bridge invoke <module.method> [json-arg ...]   Call a host capability and print the reply.
       widget-bridge context                                 Print the widget's context from the host.
       widget-bridge watch [event ...]                       Print events (default context-update) until interrupted.
       widget-bridge emit <event> [json-payload]             Send an event to the host.
       widget-bridge methods                                 List the methods in the manifest.

Environment: BRIDGE_TRANSPORT (nats|ws), COMMS_URL, BRIDGE_WS_URL, BRIDGE_HOST_SUBJECT,
BRIDGE_EVENT_SUBJECT, WIDGET_ID, BRIDGE_REQUEST_TIMEOUT, BRIDGE_CONTEXT_STRATEGY,
BRIDGE_MANIFEST_FILE, BRIDGE_HTTP_ADDR (watch: serve /metrics), LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd := args[0]; cmd {
	case "invoke":
		if len(args) < 2 {
			log.Fatalf("widget-bridge invoke: require <module.method>")
		}
		err = withBridge(func(ctx context.Context, b *bridge.Bridge, cfg *config.Config) error {
			return runInvoke(ctx, b, cfg.WidgetID, args[1], args[2:])
		})
	case "context":
		err = withBridge(func(ctx context.Context, b *bridge.Bridge, cfg *config.Config) error {
			return runContext(ctx, b, cfg.WidgetID)
		})
	case "watch":
		err = withBridge(func(ctx context.Context, b *bridge.Bridge, cfg *config.Config) error {
			return runWatch(ctx, b, cfg, args[1:])
		})
	case "emit":
		if len(args) < 2 {
			log.Fatalf("widget-bridge emit: require <event>")
		}
		err = withBridge(func(ctx context.Context, b *bridge.Bridge, cfg *config.Config) error {
			var payload interface{}
			if len(args) > 2 {
				raw, perr := parseJSONArg(args[2])
				if perr != nil {
					return perr
				}
				payload = raw
			}
			return b.Emit(ctx, args[1], cfg.WidgetID, payload)
		})
	case "methods":
		err = runMethods()
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("widget-bridge %s: %v", args[0], err)
	}
}

// withBridge loads config, opens the configured channel, attaches the
// process-wide bridge and runs fn until it returns or a signal arrives.
func withBridge(fn func(ctx context.Context, b *bridge.Bridge, cfg *config.Config) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.SetupLogging()
	if err := cfg.ValidateForWidget(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel, closeConn, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	reg := prometheus.NewRegistry()
	b, err := bridge.Acquire(channel,
		bridge.WithTimeout(cfg.RequestTimeout),
		bridge.WithObserver(metrics.NewBridge(reg)),
	)
	if err != nil {
		channel.Close()
		return fmt.Errorf("attach bridge: %w", err)
	}
	defer bridge.Release(bridge.DefaultKey)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error(fmt.Sprintf("widget-bridge - metrics server: %v", err))
			}
		}()
		defer srv.Close()
	}

	return fn(ctx, b, cfg)
}

func openChannel(ctx context.Context, cfg *config.Config) (transport.Channel, func(), error) {
	if cfg.Transport == config.TransportWS {
		ch, err := transport.DialWS(ctx, cfg.WSURL, nil)
		if err != nil {
			return nil, nil, err
		}
		return ch, func() {}, nil
	}

	name := commsutil.ClientName(cfg.COMMSName, cfg.WidgetID)
	nc, err := commsutil.Connect(cfg.COMMSURL, name, commsutil.RoleWidget)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	ch, err := transport.NewCommsChannel(nc, &transport.CommsChannelOpts{
		HostSubject:  cfg.HostSubject,
		EventSubject: cfg.EventSubject,
		Name:         name,
	})
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return ch, func() { nc.Close() }, nil
}

func runInvoke(ctx context.Context, b *bridge.Bridge, widgetID, path string, rawArgs []string) error {
	args := make([]interface{}, 0, len(rawArgs))
	for _, a := range rawArgs {
		v, err := parseJSONArg(a)
		if err != nil {
			return err
		}
		args = append(args, v)
	}

	f, err := invoke.Root(b, path, widgetID).Invoke(ctx, args...)
	if err != nil {
		return err
	}
	reply, err := f.Await(ctx)
	if err != nil {
		return err
	}
	return printJSON(reply)
}

func runContext(ctx context.Context, b *bridge.Bridge, widgetID string) error {
	f, err := b.Request(ctx, protocol.TypeGetContext, widgetID, map[string]string{"sdkVersion": widget.SDKVersion})
	if err != nil {
		return err
	}
	var c widget.Context
	if err := f.Decode(ctx, &c); err != nil {
		return err
	}
	return printJSON(c)
}

func runWatch(ctx context.Context, b *bridge.Bridge, cfg *config.Config, names []string) error {
	strategy, err := widget.ParseStrategy(cfg.ContextStrategy)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = []string{events.ContextUpdate}
	}

	for _, name := range names {
		if name == events.ContextUpdate && cfg.WidgetID != "" {
			continue
		}
		event := name
		unsubscribe := b.On(event, func(p json.RawMessage) {
			fmt.Printf("%s %s\n", event, p)
		}, cfg.WidgetID)
		defer unsubscribe()
	}

	// Context updates for a known widget go through a scope so the
	// configured strategy is applied before printing.
	if cfg.WidgetID != "" && contains(names, events.ContextUpdate) {
		initial, err := widget.FetchContext(ctx, b, cfg.WidgetID)
		if err != nil {
			return err
		}
		scope, err := widget.Mount(b, initial, widget.WithStrategy(strategy))
		if err != nil {
			return err
		}
		defer scope.Unmount()
		scope.OnChange(func(c widget.Context) {
			data, _ := json.Marshal(c)
			fmt.Printf("%s %s\n", events.ContextUpdate, data)
		})
	}

	slog.Info(fmt.Sprintf("widget-bridge - watching %v for widget %q", names, cfg.WidgetID))
	<-ctx.Done()
	return nil
}

func runMethods() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return err
	}
	resolved, err := manifest.Resolve(m)
	if err != nil {
		return err
	}
	for _, name := range resolved.Methods() {
		fmt.Println(name)
	}
	return nil
}

// parseJSONArg decodes a JSON argument; anything that is not valid JSON is
// sent as a string.
func parseJSONArg(s string) (json.RawMessage, error) {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func printJSON(v interface{}) error {
	if raw, ok := v.(json.RawMessage); ok && commsutil.IsAbsent(raw) {
		fmt.Println("null")
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
