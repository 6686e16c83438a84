// Package ingestion defines the events that drive the index from Kafka and
// the notice published after each commit.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
)

type EventType string

const (
	EventAdd    EventType = "add"
	EventDelete EventType = "delete"
	EventCommit EventType = "commit"
)

// IndexEvent is the payload of a document-ingest message.
type IndexEvent struct {
	EventID    string              `json:"event_id"`
	Type       EventType           `json:"type"`
	Documents  []document.Document `json:"documents,omitempty"`
	IDs        []int64             `json:"ids,omitempty"`
	Overwrite  bool                `json:"overwrite,omitempty"`
	Commit     bool                `json:"commit,omitempty"`
	ProducedAt time.Time           `json:"produced_at"`
}

// CommitNotice is published on the index-committed topic after every
// successful commit.
type CommitNotice struct {
	Generation  uint64    `json:"generation"`
	Documents   uint64    `json:"documents"`
	CommittedAt time.Time `json:"committed_at"`
	Host        string    `json:"host,omitempty"`
}
