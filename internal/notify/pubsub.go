// Package notify dispatches events for newly inserted breach records.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// insertedEvent is the wire payload published for each new record.
type insertedEvent struct {
	Identity         string `json:"identity"`
	Key              string `json:"key"`
	SourceID         string `json:"source_id"`
	OrganizationName string `json:"organization_name"`
	ReportedDate     string `json:"reported_date,omitempty"`
	AffectedCount    *int64 `json:"affected_count,omitempty"`
	DocumentURL      string `json:"document_url,omitempty"`
}

// PubSubDispatcher publishes inserted-record events to a Pub/Sub topic.
type PubSubDispatcher struct {
	topic *pubsub.Topic
}

// NewPubSub creates a dispatcher for the given topic.
func NewPubSub(topic *pubsub.Topic) (*PubSubDispatcher, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSubDispatcher{topic: topic}, nil
}

// RecordInserted implements pipeline.Dispatcher.
func (d *PubSubDispatcher) RecordInserted(ctx context.Context, rec pipeline.PersistedRecord) error {
	event := insertedEvent{
		Identity:         rec.Identity,
		Key:              rec.Key,
		SourceID:         rec.SourceID,
		OrganizationName: rec.OrganizationName,
		AffectedCount:    rec.AffectedCount,
		DocumentURL:      rec.DocumentURL,
	}
	if rec.ReportedDate != nil {
		event.ReportedDate = rec.ReportedDate.Format("2006-01-02")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := d.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source_id": rec.SourceID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Stop flushes pending publishes.
func (d *PubSubDispatcher) Stop() {
	d.topic.Stop()
}
