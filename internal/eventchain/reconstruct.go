package eventchain

import (
	"fmt"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// Reconstruct orders the records of a single trace into causal order by
// following parent pointers from the root. Storage is free to return records
// in any physical order; the chain structure alone fixes the sequence.
//
// It returns an error when the records do not form one linear chain: no root,
// multiple roots, a parent referencing a missing record, or a cycle.
func Reconstruct(records []domain.EventRecord) ([]domain.EventRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	byParent := make(map[string]domain.EventRecord, len(records))
	ids := make(map[string]bool, len(records))
	var root *domain.EventRecord

	for i := range records {
		r := records[i]
		if ids[r.EventID] {
			return nil, fmt.Errorf("eventchain: duplicate event id %s", r.EventID)
		}
		ids[r.EventID] = true

		if r.ParentEventID == nil {
			if root != nil {
				return nil, fmt.Errorf("eventchain: multiple roots in trace %s", r.TraceID)
			}
			root = &records[i]
			continue
		}
		if _, dup := byParent[*r.ParentEventID]; dup {
			return nil, fmt.Errorf("eventchain: parent %s has multiple children", *r.ParentEventID)
		}
		byParent[*r.ParentEventID] = r
	}

	if root == nil {
		return nil, fmt.Errorf("eventchain: no root event in trace %s", records[0].TraceID)
	}

	ordered := make([]domain.EventRecord, 0, len(records))
	ordered = append(ordered, *root)
	for {
		next, ok := byParent[ordered[len(ordered)-1].EventID]
		if !ok {
			break
		}
		ordered = append(ordered, next)
	}

	if len(ordered) != len(records) {
		return nil, fmt.Errorf("eventchain: broken chain in trace %s: ordered %d of %d records",
			records[0].TraceID, len(ordered), len(records))
	}
	return ordered, nil
}
