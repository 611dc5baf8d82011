package domain

import "time"

// Decision is the closed result set of an admission attempt. Callers
// switch over the concrete types; the unexported marker keeps the set
// sealed to this package.
type Decision interface {
	decision()
}

// Admitted means the caller is a participant; Token is the media-layer
// access credential minted for this entry.
type Admitted struct {
	Meeting *Meeting
	Token   string
}

// Pending means the caller was placed in (or is already in) the waiting room.
type Pending struct {
	Meeting *Meeting
}

// NotStarted means the meeting is scheduled and only the host can open it.
type NotStarted struct {
	StartTime time.Time
}

// NotFound means no meeting exists for the given code.
type NotFound struct{}

// Ended means the meeting has terminated and accepts no joiners.
type Ended struct{}

func (Admitted) decision()   {}
func (Pending) decision()    {}
func (NotStarted) decision() {}
func (NotFound) decision()   {}
func (Ended) decision()      {}
