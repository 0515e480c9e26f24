package manifest

import (
	"reflect"
	"testing"

	"github.com/morezero/widget-bridge/pkg/widget"
)

func TestResolve_Lookups(t *testing.T) {
	m := Default()
	m.Aliases = map[string]string{"local": "storage.local"}
	r, err := Resolve(m)
	if err != nil {
		t.Fatalf("manifest:types_test - Resolve: %v", err)
	}

	tests := []struct {
		module, method string
		want           bool
	}{
		{"storage.local", "getItem", true},
		{"storage", "setItem", true},
		{"storage", "clear", false},
		{"ui.toast", "warning", true},
		{"io", "setOutput", true},
		{"local", "removeItem", true},
		{"ui", "prompt", false},
		{"nope", "x", false},
	}
	for _, tt := range tests {
		if got := r.Has(tt.module, tt.method); got != tt.want {
			t.Errorf("manifest:types_test - Has(%s, %s) = %v, want %v", tt.module, tt.method, got, tt.want)
		}
	}

	if r.Module("local") == nil {
		t.Error("manifest:types_test - alias lookup failed")
	}
}

func TestResolve_Methods(t *testing.T) {
	m := &Manifest{Modules: map[string]Module{
		"ui": {Methods: []string{"confirm", "alert"}},
		"io": {Methods: []string{"setOutput"}},
	}}
	r, err := Resolve(m)
	if err != nil {
		t.Fatalf("manifest:types_test - Resolve: %v", err)
	}
	want := []string{"io.setOutput", "ui.alert", "ui.confirm"}
	if got := r.Methods(); !reflect.DeepEqual(got, want) {
		t.Errorf("manifest:types_test - Methods = %v, want %v", got, want)
	}
	if r.SDKRange() != DefaultSDKRange {
		t.Errorf("manifest:types_test - SDKRange = %q", r.SDKRange())
	}
	if got := r.ModuleNames(); !reflect.DeepEqual(got, []string{"io", "ui"}) {
		t.Errorf("manifest:types_test - ModuleNames = %v", got)
	}
}

func TestResolve_Errors(t *testing.T) {
	if _, err := Resolve(&Manifest{SDKRange: "not a range"}); err == nil {
		t.Error("manifest:types_test - expected error for invalid range")
	}
	bad := &Manifest{Modules: map[string]Module{"ui": {}}, Aliases: map[string]string{"x": "missing"}}
	if _, err := Resolve(bad); err == nil {
		t.Error("manifest:types_test - expected error for dangling alias")
	}
}

func TestResolved_Widget(t *testing.T) {
	m := Default()
	m.Widgets = map[string]widget.Context{"clock": {Theme: "dark"}}
	r, _ := Resolve(m)

	ctx, ok := r.Widget("clock")
	if !ok || ctx.WidgetID != "clock" || ctx.Theme != "dark" {
		t.Errorf("manifest:types_test - Widget(clock) = %+v, %v", ctx, ok)
	}
	if _, ok := r.Widget("other"); ok {
		t.Error("manifest:types_test - unexpected context for unknown widget")
	}
	if ids := r.WidgetIDs(); len(ids) != 1 || ids[0] != "clock" {
		t.Errorf("manifest:types_test - WidgetIDs = %v", ids)
	}
}

func TestResolved_CheckSDK(t *testing.T) {
	r, _ := Resolve(Default())
	tests := []struct {
		version string
		ok      bool
	}{
		{"2.0.0", true},
		{"2.7.1", true},
		{"1.9.0", false},
		{"3.0.0", false},
		{"banana", false},
	}
	for _, tt := range tests {
		if err := r.CheckSDK(tt.version); (err == nil) != tt.ok {
			t.Errorf("manifest:types_test - CheckSDK(%s) = %v, want ok=%v", tt.version, err, tt.ok)
		}
	}
}
