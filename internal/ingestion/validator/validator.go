// Package validator checks ingest events before they reach the engine.
// Schema-level checks stay with the engine; this catches malformed events.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion"
)

const (
	maxBatchDocs = 10000
	maxEventID   = 255
)

// ValidationError holds one message per offending event attribute.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func ValidateEvent(e *ingestion.IndexEvent) error {
	errs := make(map[string]string)
	if len(e.EventID) > maxEventID {
		errs["event_id"] = fmt.Sprintf("must be at most %d characters", maxEventID)
	}
	switch e.Type {
	case ingestion.EventAdd:
		if len(e.Documents) == 0 {
			errs["documents"] = "an add event needs at least one document"
		} else if len(e.Documents) > maxBatchDocs {
			errs["documents"] = fmt.Sprintf("at most %d documents per event", maxBatchDocs)
		}
		if len(e.IDs) > 0 {
			errs["ids"] = "not allowed on an add event"
		}
	case ingestion.EventDelete:
		if len(e.IDs) == 0 {
			errs["ids"] = "a delete event needs at least one id"
		} else if len(e.IDs) > maxBatchDocs {
			errs["ids"] = fmt.Sprintf("at most %d ids per event", maxBatchDocs)
		}
		if len(e.Documents) > 0 {
			errs["documents"] = "not allowed on a delete event"
		}
	case ingestion.EventCommit:
		if len(e.Documents) > 0 || len(e.IDs) > 0 {
			errs["type"] = "a commit event carries no documents or ids"
		}
	case "":
		errs["type"] = "is required"
	default:
		errs["type"] = fmt.Sprintf("unknown event type %q", e.Type)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
