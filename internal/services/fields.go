package services

import (
	"encoding/json"
	"fmt"

	"ledgermeta/internal/models"
)

func decodeFields(e models.Entry) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(e.Payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", e.Type, e.Index, err)
	}
	return fields, nil
}
