package commsutil

import "testing"

func TestBuildInboxSubject(t *testing.T) {
	tests := []struct {
		name   string
		client string
		token  string
		want   string
	}{
		{"basic", "widget-bridge", "abc", "widget.inbox.widget-bridge.abc"},
		{"dotted client", "clock.widget", "x1", "widget.inbox.clock_widget.x1"},
		{"empty client", "", "t", "widget.inbox._.t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInboxSubject(tt.client, tt.token)
			if got != tt.want {
				t.Errorf("BuildInboxSubject(%q, %q) = %q, want %q", tt.client, tt.token, got, tt.want)
			}
		})
	}
}

func TestBuildWidgetEventSubject(t *testing.T) {
	tests := []struct {
		name     string
		widgetID string
		want     string
	}{
		{"simple", "w1", "widget.events.w1"},
		{"wildcards are neutralized", "a.*.>", "widget.events.a___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildWidgetEventSubject(SubjectEvents, tt.widgetID)
			if got != tt.want {
				t.Errorf("BuildWidgetEventSubject(%q) = %q, want %q", tt.widgetID, got, tt.want)
			}
		})
	}
}
