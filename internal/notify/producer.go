// Package notify announces published snapshots on a Kafka topic so
// downstream dashboards and alerting can refresh.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/resilience"
)

// EventSnapshotPublished is the event type header of every message.
const EventSnapshotPublished = "snapshot.published"

// topSuspects caps the suspects included in a message.
const topSuspects = 3

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = eris.New("notify: producer closed")

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Suspect is a ranked entity summarised in a message.
type Suspect struct {
	EntityID   string  `json:"entity_id"`
	Rank       int     `json:"rank"`
	TotalScore float64 `json:"total_score"`
}

// Handoff is the best handoff candidate summarised in a message.
type Handoff struct {
	OldEntityID  string  `json:"old_entity_id"`
	NewEntityID  string  `json:"new_entity_id"`
	H3Cell       string  `json:"h3_cell"`
	HandoffScore float64 `json:"handoff_score"`
}

// Event is the JSON payload of a snapshot notification.
type Event struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	ComputedAt  time.Time `json:"computed_at"`
	Edges       int       `json:"co_presence_edges"`
	Rankings    int       `json:"suspect_rankings"`
	Handoffs    int       `json:"handoff_candidates"`
	HighCells   int       `json:"high_activity_cells"`
	TopSuspects []Suspect `json:"top_suspects"`
	TopHandoff  *Handoff  `json:"top_handoff,omitempty"`
}

// Producer publishes snapshot events.
type Producer struct {
	writer Writer
	topic  string
	closed atomic.Bool
}

// NewProducer creates a Producer writing to cfg.Topic on cfg.Brokers.
func NewProducer(cfg config.NotifyConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("notify: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, eris.New("notify: topic is required")
	}

	// Retries are handled by the sink policy, so the writer tries once.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
		MaxAttempts:            1,
	}
	return &Producer{writer: w, topic: cfg.Topic}, nil
}

// Name identifies the sink in logs and metrics.
func (p *Producer) Name() string { return "notify" }

// Publish sends one EventSnapshotPublished message keyed by run id.
func (p *Producer) Publish(ctx context.Context, snap *model.Snapshot) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	value, err := json.Marshal(NewEvent(snap))
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	msg := kafka.Message{
		Key:   []byte(snap.RunID),
		Value: value,
		Time:  snap.ComputedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventSnapshotPublished)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if temporary(err) {
			err = resilience.NewTransientError(err, p.Name())
		}
		return eris.Wrapf(err, "notify: write to %s", p.topic)
	}

	zap.L().Debug("notify: snapshot event sent",
		zap.String("topic", p.topic),
		zap.String("run_id", snap.RunID),
		zap.Int("bytes", len(value)),
	)
	return nil
}

// temporary reports whether the broker marked err, or any per-message error
// in a batch, as retriable.
func temporary(err error) bool {
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil && temporary(e) {
				return true
			}
		}
		return false
	}
	var kerr kafka.Error
	return errors.As(err, &kerr) && kerr.Temporary()
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return eris.Wrap(p.writer.Close(), "notify: close writer")
}

// NewEvent summarises snap. Rankings and handoffs are already sorted by rank.
func NewEvent(snap *model.Snapshot) Event {
	ev := Event{
		Type:        EventSnapshotPublished,
		RunID:       snap.RunID,
		ComputedAt:  snap.ComputedAt,
		Edges:       len(snap.CoPresenceEdges),
		Rankings:    len(snap.Rankings),
		Handoffs:    len(snap.Handoffs),
		TopSuspects: []Suspect{},
	}
	for _, c := range snap.CellCounts {
		if c.IsHighActivity {
			ev.HighCells++
		}
	}
	for _, r := range snap.Rankings {
		if len(ev.TopSuspects) == topSuspects {
			break
		}
		ev.TopSuspects = append(ev.TopSuspects, Suspect{EntityID: r.EntityID, Rank: r.Rank, TotalScore: r.TotalScore})
	}
	if len(snap.Handoffs) > 0 {
		h := snap.Handoffs[0]
		ev.TopHandoff = &Handoff{
			OldEntityID:  h.OldEntityID,
			NewEntityID:  h.NewEntityID,
			H3Cell:       h.H3Cell,
			HandoffScore: h.HandoffScore,
		}
	}
	return ev
}
