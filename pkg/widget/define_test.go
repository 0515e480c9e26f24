package widget

import (
	"errors"
	"testing"
)

func TestDefine(t *testing.T) {
	noop := func(*Scope) error { return nil }
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid", Definition{ID: "clock", Version: "1.2.0", Setup: noop}, false},
		{"missing id", Definition{Version: "1.0.0", Setup: noop}, true},
		{"missing setup", Definition{ID: "clock", Version: "1.0.0"}, true},
		{"bad version", Definition{ID: "clock", Version: "one", Setup: noop}, true},
		{"partial version", Definition{ID: "clock", Version: "1.0", Setup: noop}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Define(tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("widget:define_test - err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (w.SDKVersion != SDKVersion || w.Version().String() != tt.def.Version) {
				t.Errorf("widget:define_test - widget = %+v", w)
			}
		})
	}
}

func TestWidget_MountRunsSetup(t *testing.T) {
	b, _ := newHost(t, nil)
	var got *Scope
	w, err := Define(Definition{ID: "clock", Version: "1.0.0", Setup: func(s *Scope) error {
		got = s
		return nil
	}})
	if err != nil {
		t.Fatalf("widget:define_test - Define: %v", err)
	}

	s, err := w.Mount(b, initial)
	if err != nil {
		t.Fatalf("widget:define_test - Mount: %v", err)
	}
	defer s.Unmount()
	if got != s {
		t.Errorf("widget:define_test - setup received a different scope")
	}
}

func TestWidget_SetupFailureUnmounts(t *testing.T) {
	b, _ := newHost(t, nil)
	w, _ := Define(Definition{ID: "clock", Version: "1.0.0", Setup: func(*Scope) error { return errSetup }})

	if _, err := w.Mount(b, initial); !errors.Is(err, errSetup) {
		t.Fatalf("widget:define_test - err = %v, want errSetup", err)
	}
	if b.Events().Has("context-update") {
		t.Errorf("widget:define_test - failed mount left a subscription")
	}
}
