package api

import (
	"time"

	"factorcorr/domain/factor"
	"factorcorr/ports"
)

// TrainingEventBroadcaster adapts the SSEHub to the model's training observer
type TrainingEventBroadcaster struct {
	hub   *SSEHub
	topic string
}

var _ ports.TrainingObserver = (*TrainingEventBroadcaster)(nil)

// NewTrainingEventBroadcaster publishes epochs under topic
func NewTrainingEventBroadcaster(hub *SSEHub, topic string) *TrainingEventBroadcaster {
	return &TrainingEventBroadcaster{hub: hub, topic: topic}
}

// OnEpoch converts epoch progress into an SSE event
func (b *TrainingEventBroadcaster) OnEpoch(p factor.EpochProgress) {
	progress := 0.0
	if p.Epochs > 0 {
		progress = float64(p.Epoch) / float64(p.Epochs)
	}
	b.hub.Broadcast(TrainingEvent{
		Topic:     b.topic,
		EventType: "epoch",
		Progress:  progress,
		Data: map[string]interface{}{
			"epoch":      p.Epoch,
			"epochs":     p.Epochs,
			"train_loss": p.TrainLoss,
			"val_loss":   p.ValLoss,
			"improved":   p.Improved,
		},
		Timestamp: time.Now().UTC(),
	})
}

// Finished announces the end of a run
func (b *TrainingEventBroadcaster) Finished(err error) {
	event := TrainingEvent{Topic: b.topic, EventType: "finished", Progress: 1}
	if err != nil {
		event.EventType = "failed"
		event.Data = map[string]interface{}{"error": err.Error()}
	}
	b.hub.Broadcast(event)
}
