package extraction

import (
	"encoding/json"
	"fmt"

	"ledgermeta/internal/models"
)

// StateChange is the effect of one affected node on the ledger state
type StateChange struct {
	NodeType string
	Index    string
	Type     string
	Fields   map[string]any
}

// Deleted reports whether the object was removed
func (c StateChange) Deleted() bool {
	return c.NodeType == models.NodeDeleted
}

// StateChanges lists the state changes of tx in metadata order
func StateChanges(tx *models.Transaction) []StateChange {
	changes := make([]StateChange, 0, len(tx.Meta.AffectedNodes))
	for i := range tx.Meta.AffectedNodes {
		node := &tx.Meta.AffectedNodes[i]
		changes = append(changes, StateChange{
			NodeType: node.NodeType,
			Index:    node.LedgerIndex,
			Type:     node.LedgerEntryType,
			Fields:   node.Fields(),
		})
	}
	return changes
}

// Apply returns the entry after c, given the entry before it (nil when absent).
// Modified fields are merged over the previous payload.
func (c StateChange) Apply(previous *models.Entry) (models.Entry, error) {
	object := make(map[string]any)
	if previous != nil && c.NodeType == models.NodeModified {
		if err := json.Unmarshal(previous.Payload, &object); err != nil {
			return models.Entry{}, fmt.Errorf("failed to decode %s %s: %w", previous.Type, previous.Index, err)
		}
	}
	for k, v := range c.Fields {
		object[k] = v
	}
	object["index"] = c.Index
	object["LedgerEntryType"] = c.Type

	payload, err := json.Marshal(object)
	if err != nil {
		return models.Entry{}, fmt.Errorf("failed to encode %s %s: %w", c.Type, c.Index, err)
	}
	return models.Entry{Index: c.Index, Type: c.Type, Payload: payload}, nil
}
