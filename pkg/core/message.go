// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the types shared by every controller component: the
// message envelope, sender roles, dispatch outcomes and the interfaces of
// the collaborators the control core drives.
package core

import "github.com/google/uuid"

// Message is the envelope exchanged with the message router.
type Message struct {
	ID      string
	From    string
	To      string
	Payload string
}

// NewMessage builds a message with a generated ID.
func NewMessage(from, to, payload string) Message {
	return Message{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Payload: payload,
	}
}

// Outcome tells the caller of Dispatch whether to keep running.
type Outcome int

const (
	Continue Outcome = iota
	Terminate
)

func (o Outcome) String() string {
	if o == Terminate {
		return "terminate"
	}
	return "continue"
}

// Handle identifies an entity in the knowledge store.
type Handle uint64
