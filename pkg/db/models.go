package db

import (
	"encoding/json"
	"time"
)

// StorageItem represents a row in the widget_storage table.
type StorageItem struct {
	WidgetID string          `json:"widget_id"`
	Area     string          `json:"area"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Created  time.Time       `json:"created"`
	Modified time.Time       `json:"modified"`
}

// Output represents a row in the widget_outputs table.
type Output struct {
	WidgetID string          `json:"widget_id"`
	Value    json.RawMessage `json:"value"`
	Revision int             `json:"revision"`
	Modified time.Time       `json:"modified"`
}
