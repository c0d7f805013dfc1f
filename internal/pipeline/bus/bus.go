// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus fans state and fault notifications out to in-process consumers.
package bus

import "context"

// Topics.
const (
	// TopicState carries model.StatusEvent after every applied transition.
	TopicState = "stream.state"
	// TopicFault carries model.FaultEvent for every handled pipeline fault.
	TopicFault = "stream.fault"
)

// Message is any payload published on a topic.
type Message any

// Bus is a topic based publish/subscribe channel.
type Bus interface {
	// Publish delivers msg to every subscriber of topic, blocking until each
	// has accepted it or ctx is done.
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Subscriber receives messages for one topic until closed.
type Subscriber interface {
	C() <-chan Message
	Close() error
}
