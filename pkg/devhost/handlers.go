package devhost

import (
	"context"
	"encoding/json"
	"time"
)

// routes maps every implemented module.method to its handler. The root
// storage shortcuts read and write the local area.
func (d *Dispatcher) routes() map[string]methodHandler {
	h := map[string]methodHandler{
		"storage.getItem": d.storageGet(AreaLocal),
		"storage.setItem": d.storageSet(AreaLocal),
		"ui.alert":        d.uiNotify("alert"),
		"ui.confirm":      d.uiConfirm,
		"io.setOutput":    d.ioSetOutput,
	}
	for _, area := range []string{AreaLocal, AreaSession} {
		prefix := "storage." + area + "."
		h[prefix+"getItem"] = d.storageGet(area)
		h[prefix+"setItem"] = d.storageSet(area)
		h[prefix+"removeItem"] = d.storageRemove(area)
		h[prefix+"clear"] = d.storageClear(area)
	}
	for _, v := range []string{"success", "error", "info", "warning"} {
		h["ui.toast."+v] = d.uiNotify("toast." + v)
	}
	return h
}

func (d *Dispatcher) storageGet(area string) methodHandler {
	return func(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
		key, err := argString(args, 0, "key")
		if err != nil {
			return nil, err
		}
		v, err := d.store.GetItem(ctx, widgetID, area, key)
		if err != nil {
			return nil, NewHostError(CodeInternal, "Storage read failed: %v", err)
		}
		if v == nil {
			return nil, nil
		}
		return v, nil
	}
}

func (d *Dispatcher) storageSet(area string) methodHandler {
	return func(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
		key, err := argString(args, 0, "key")
		if err != nil {
			return nil, err
		}
		if err := d.store.SetItem(ctx, widgetID, area, key, argRaw(args, 1)); err != nil {
			return nil, NewHostError(CodeInternal, "Storage write failed: %v", err)
		}
		return nil, nil
	}
}

func (d *Dispatcher) storageRemove(area string) methodHandler {
	return func(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
		key, err := argString(args, 0, "key")
		if err != nil {
			return nil, err
		}
		if err := d.store.RemoveItem(ctx, widgetID, area, key); err != nil {
			return nil, NewHostError(CodeInternal, "Storage remove failed: %v", err)
		}
		return nil, nil
	}
}

func (d *Dispatcher) storageClear(area string) methodHandler {
	return func(ctx context.Context, widgetID string, _ []json.RawMessage) (interface{}, error) {
		if err := d.store.Clear(ctx, widgetID, area); err != nil {
			return nil, NewHostError(CodeInternal, "Storage clear failed: %v", err)
		}
		return nil, nil
	}
}

func (d *Dispatcher) uiNotify(kind string) methodHandler {
	return func(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
		message, err := argString(args, 0, "message")
		if err != nil {
			return nil, err
		}
		n := Notification{WidgetID: widgetID, Kind: kind, Message: message, At: time.Now().UTC()}
		if err := d.notifier.Notify(ctx, n); err != nil {
			return nil, NewHostError(CodeInternal, "Notification failed: %v", err)
		}
		return nil, nil
	}
}

func (d *Dispatcher) uiConfirm(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
	message, err := argString(args, 0, "message")
	if err != nil {
		return nil, err
	}
	n := Notification{WidgetID: widgetID, Kind: "confirm", Message: message, At: time.Now().UTC()}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return nil, NewHostError(CodeInternal, "Notification failed: %v", err)
	}
	return d.confirm(widgetID, message), nil
}

func (d *Dispatcher) ioSetOutput(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error) {
	if err := d.store.SetOutput(ctx, widgetID, argRaw(args, 0)); err != nil {
		return nil, NewHostError(CodeInternal, "Output write failed: %v", err)
	}
	return nil, nil
}
