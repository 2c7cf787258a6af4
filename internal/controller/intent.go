package controller

import (
	"govorilka/internal/chat"
	"govorilka/internal/wire"
)

// Intent is one unit of work for the sequential state loop. Every
// asynchronous completion re-enters the loop as an intent; nothing
// mutates state from anywhere else.
type Intent interface {
	intent()
}

// SetIdentity stores the candidate identity while disconnected.
type SetIdentity struct {
	Name string
}

// Connect locks in the candidate identity, drives the session connect
// and schedules the one-shot occupancy fetch.
type Connect struct{}

// UpdateDraft replaces the pending message draft.
type UpdateDraft struct {
	Text string
}

// Send publishes the pending draft and clears it.
type Send struct{}

// MessageReceived appends a translated inbound message to the log.
type MessageReceived struct {
	Message chat.Message
}

// UserOnline inserts an identifier into the online set.
type UserOnline struct {
	UUID string
}

// UserOffline removes an identifier from the online set.
type UserOffline struct {
	UUID string
}

// OccupancyFetched delivers the result of the occupancy snapshot.
type OccupancyFetched struct {
	Result wire.HereNowResponse
	Err    error
}

// Teardown disconnects the session. Dispatched by the shutdown hook and
// safe to apply more than once.
type Teardown struct{}

func (SetIdentity) intent()      {}
func (Connect) intent()          {}
func (UpdateDraft) intent()      {}
func (Send) intent()             {}
func (MessageReceived) intent()  {}
func (UserOnline) intent()       {}
func (UserOffline) intent()      {}
func (OccupancyFetched) intent() {}
func (Teardown) intent()         {}

// snapshotRequest lets readers observe state without leaving the
// sequential loop.
type snapshotRequest struct {
	reply chan Snapshot
}

func (snapshotRequest) intent() {}
