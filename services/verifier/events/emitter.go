// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides lifecycle event emission for the verification
// pipeline. Consumers (logging, CLI, reporting) subscribe handlers;
// the core never depends on any handler for correctness.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle event kind.
type Type string

const (
	TypeCheckpointCompleted Type = "checkpoint:completed"
	TypePipelineCompleted   Type = "pipeline:completed"
	TypePipelineError       Type = "pipeline:error"
	TypePipelinePaused      Type = "pipeline:paused"
	TypePipelineResumed     Type = "pipeline:resumed"
	TypePipelineCancelled   Type = "pipeline:cancelled"
	TypeSnapshotCreated     Type = "snapshot:created"
	TypeRollbackCompleted   Type = "rollback:completed"
)

// Event is a single lifecycle notification.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string

	// Type is the event kind.
	Type Type

	// ExecutionID identifies the pipeline execution or rollback attempt
	// the event belongs to.
	ExecutionID string

	// Timestamp is when the event was emitted.
	Timestamp time.Time

	// Data carries the type-specific payload (e.g. a CheckpointResult).
	Data any
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must not block for long.
type Handler func(*Event)

// Filter decides whether a subscription receives an event.
type Filter func(*Event) bool

type subscription struct {
	id      string
	handler Handler
	types   map[Type]bool // nil means all types
	filter  Filter
}

// Emitter dispatches events to subscribers in registration order.
//
// # Thread Safety
//
// Emitter is safe for concurrent use. Delivery is synchronous: Emit
// returns after every matching handler has run.
type Emitter struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler, optionally limited to specific event
// types. Returns the subscription id for Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.subscribe(handler, nil, types...)
}

// SubscribeWithFilter registers a handler gated by a predicate.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	return e.subscribe(handler, filter, types...)
}

func (e *Emitter) subscribe(handler Handler, filter Filter, types ...Type) string {
	if handler == nil {
		return ""
	}

	sub := subscription{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (e *Emitter) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Emit delivers an event to all matching subscribers in the order they
// were registered.
func (e *Emitter) Emit(t Type, executionID string, data any) {
	event := &Event{
		ID:          uuid.NewString(),
		Type:        t,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Data:        data,
	}

	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, sub := range subs {
		if sub.types != nil && !sub.types[t] {
			continue
		}
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		sub.handler(event)
	}
}
