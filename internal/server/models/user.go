// Package models holds the domain types shared by the relay's storage and
// session layers.
package models

import (
	"fmt"
	"time"
)

// State is a user's position in the conversation lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateSearching         State = "searching"
	StatePaired            State = "paired"
	StatePartnerLeft       State = "partner_left"
	StateChattingWithAgent State = "chatting_with_agent"
)

// States lists every lifecycle state in declaration order.
var States = []State{StateIdle, StateSearching, StatePaired, StatePartnerLeft, StateChattingWithAgent}

// ParseState validates a stored status value.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown user state %q", s)
}

func (s State) String() string { return string(s) }

// User is the stored record for one platform user.
//
// PartnerID is set if and only if State is StatePaired. SearchingSince is set
// while State is StateSearching and orders the waiting queue.
type User struct {
	ID             int64
	State          State
	PartnerID      *int64
	MessageCount   int64
	SearchingSince *time.Time
}

// Partner returns the partner id and whether one is recorded.
func (u *User) Partner() (int64, bool) {
	if u == nil || u.PartnerID == nil {
		return 0, false
	}
	return *u.PartnerID, true
}

// IsPairedWith reports whether u's stored partner is id and u is Paired.
func (u *User) IsPairedWith(id int64) bool {
	p, ok := u.Partner()
	return ok && p == id && u.State == StatePaired
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	if u.PartnerID != nil {
		p := *u.PartnerID
		c.PartnerID = &p
	}
	if u.SearchingSince != nil {
		t := *u.SearchingSince
		c.SearchingSince = &t
	}
	return &c
}
