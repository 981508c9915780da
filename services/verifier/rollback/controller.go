// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

// SystemController is the engine's hook into the system being
// restored. Implementations own the actual agents, tasks, and storage
// backends; the engine only sequences them.
//
// Thread Safety:
//
//	Implementations must tolerate calls from the engine's rollback
//	goroutine while regular system traffic continues.
type SystemController interface {
	// SuspendAgents pauses all agents before any restore work.
	SuspendAgents(ctx context.Context) error

	// ResumeAgents releases agents after restore (or abort).
	ResumeAgents(ctx context.Context) error

	// StopActiveTasks halts in-flight tasks so restored task state
	// cannot race live execution.
	StopActiveTasks(ctx context.Context) error

	// CurrentState captures the live system for safety checks and
	// snapshot creation. The returned snapshot is unsealed.
	CurrentState(ctx context.Context) (*snapshot.Snapshot, error)

	// RestoreDatabase applies the captured database status.
	RestoreDatabase(ctx context.Context, state snapshot.DatabaseState) error

	// RestoreFileSystem applies the captured file manifest.
	RestoreFileSystem(ctx context.Context, state snapshot.FileSystemState) error

	// RestoreMemory applies the captured working-memory payload.
	RestoreMemory(ctx context.Context, memory map[string]any) error

	// RestoreSystem applies the captured coordinator state.
	RestoreSystem(ctx context.Context, state snapshot.SystemState) error

	// RestoreTaskStates applies the captured task map.
	RestoreTaskStates(ctx context.Context, tasks map[string]snapshot.TaskState) error

	// RestoreAgentStates applies the captured agent map.
	RestoreAgentStates(ctx context.Context, agents map[string]snapshot.AgentState) error

	// CheckAgentLiveness verifies agents respond after restore.
	CheckAgentLiveness(ctx context.Context) error
}

// MemoryController is an in-process SystemController holding all
// state in maps. It backs tests and single-process deployments where
// the verifier owns the agent registry directly.
type MemoryController struct {
	mu        sync.RWMutex
	agents    map[string]snapshot.AgentState
	tasks     map[string]snapshot.TaskState
	system    snapshot.SystemState
	fs        snapshot.FileSystemState
	db        snapshot.DatabaseState
	memory    map[string]any
	suspended bool
}

// NewMemoryController returns an empty controller.
func NewMemoryController() *MemoryController {
	return &MemoryController{
		agents: make(map[string]snapshot.AgentState),
		tasks:  make(map[string]snapshot.TaskState),
		memory: make(map[string]any),
		db:     snapshot.DatabaseState{Connected: true},
	}
}

// SetAgent registers or updates an agent.
func (c *MemoryController) SetAgent(a snapshot.AgentState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[a.ID] = a
}

// SetTask registers or updates a task.
func (c *MemoryController) SetTask(t snapshot.TaskState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[t.ID] = t
}

// SetSystem replaces the coordinator state.
func (c *MemoryController) SetSystem(s snapshot.SystemState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = s
}

// SetDatabase replaces the database status.
func (c *MemoryController) SetDatabase(d snapshot.DatabaseState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = d
}

// SetMemoryValue stores one working-memory entry.
func (c *MemoryController) SetMemoryValue(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[key] = val
}

// Suspended reports whether agents are currently suspended.
func (c *MemoryController) Suspended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suspended
}

// Agent returns one agent's state.
func (c *MemoryController) Agent(id string) (snapshot.AgentState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	return a, ok
}

// Task returns one task's state.
func (c *MemoryController) Task(id string) (snapshot.TaskState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	return t, ok
}

// MemoryValue returns one working-memory entry.
func (c *MemoryController) MemoryValue(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.memory[key]
	return v, ok
}

func (c *MemoryController) SuspendAgents(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
	for id, a := range c.agents {
		a.Status = "suspended"
		c.agents[id] = a
	}
	return nil
}

func (c *MemoryController) ResumeAgents(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = false
	for id, a := range c.agents {
		if a.Status == "suspended" {
			a.Status = "active"
			c.agents[id] = a
		}
	}
	return nil
}

func (c *MemoryController) StopActiveTasks(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.tasks {
		if t.Status == "running" {
			t.Status = "stopped"
			c.tasks[id] = t
		}
	}
	return nil
}

func (c *MemoryController) CurrentState(context.Context) (*snapshot.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agents := make(map[string]snapshot.AgentState, len(c.agents))
	for id, a := range c.agents {
		agents[id] = a
	}
	tasks := make(map[string]snapshot.TaskState, len(c.tasks))
	for id, t := range c.tasks {
		tasks[id] = t
	}
	memory := make(map[string]any, len(c.memory))
	for k, v := range c.memory {
		memory[k] = v
	}

	return &snapshot.Snapshot{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		AgentStates: agents,
		TaskStates:  tasks,
		System:      c.system,
		FileSystem:  c.fs,
		Database:    c.db,
		Memory:      memory,
		Metadata:    map[string]string{},
	}, nil
}

func (c *MemoryController) RestoreDatabase(_ context.Context, state snapshot.DatabaseState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = state
	return nil
}

func (c *MemoryController) RestoreFileSystem(_ context.Context, state snapshot.FileSystemState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fs = state
	return nil
}

func (c *MemoryController) RestoreMemory(_ context.Context, memory map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = make(map[string]any, len(memory))
	for k, v := range memory {
		c.memory[k] = v
	}
	return nil
}

func (c *MemoryController) RestoreSystem(_ context.Context, state snapshot.SystemState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = state
	return nil
}

func (c *MemoryController) RestoreTaskStates(_ context.Context, tasks map[string]snapshot.TaskState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make(map[string]snapshot.TaskState, len(tasks))
	for id, t := range tasks {
		c.tasks[id] = t
	}
	return nil
}

func (c *MemoryController) RestoreAgentStates(_ context.Context, agents map[string]snapshot.AgentState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents = make(map[string]snapshot.AgentState, len(agents))
	for id, a := range agents {
		c.agents[id] = a
	}
	return nil
}

func (c *MemoryController) CheckAgentLiveness(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, a := range c.agents {
		if a.Status == "" {
			return fmt.Errorf("agent %s has no status after restore", id)
		}
	}
	return nil
}

var _ SystemController = (*MemoryController)(nil)
