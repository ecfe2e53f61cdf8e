package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is the JSON column type shared by fetch metadata, log context
// and resolver settings. It implements sql.Scanner and driver.Valuer so
// the maps round-trip through sqlite text columns.
type Metadata map[string]any

// Scan implements the sql.Scanner interface. A NULL column scans to an
// empty map.
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scanning metadata: unsupported type %T", v)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return json.Marshal(m)
}
