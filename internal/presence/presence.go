// Package presence turns raw platform presence updates into monitoring
// transitions.
package presence

import (
	"strings"
	"time"
)

// Status is the platform presence value. Values outside the named constants
// are kept verbatim and classify as Irrelevant.
type Status string

const (
	Online       Status = "online"
	Offline      Status = "offline"
	Invisible    Status = "invisible"
	Idle         Status = "idle"
	DoNotDisturb Status = "dnd"
)

// ParseStatus normalizes a platform status string.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Class is the monitoring-relevant meaning of a presence change.
type Class int

const (
	Irrelevant Class = iota
	WentOffline
	CameOnline
)

func (c Class) String() string {
	switch c {
	case WentOffline:
		return "went_offline"
	case CameOnline:
		return "came_online"
	default:
		return "irrelevant"
	}
}

// Classify maps a status to a transition class. Only automated accounts are
// ever classified; everyone else is Irrelevant.
func Classify(status Status, automated bool) Class {
	if !automated {
		return Irrelevant
	}
	switch status {
	case Offline, Invisible:
		return WentOffline
	case Online:
		return CameOnline
	default:
		return Irrelevant
	}
}

// Signal is one presence change as delivered by the gateway.
// Automated is already resolved; unknown counts as false.
type Signal struct {
	ID         string
	SubjectID  string
	Status     Status
	Automated  bool
	GuildID    string
	ReceivedAt time.Time
}

// Transition is the classified form of a Signal. It is never persisted.
type Transition struct {
	SubjectID string `json:"subject_id"`
	Class     Class  `json:"-"`
	ClassName string `json:"class"`
}

func NewTransition(subjectID string, c Class) Transition {
	return Transition{SubjectID: subjectID, Class: c, ClassName: c.String()}
}

// Classify is shorthand for NewTransition(s.SubjectID, Classify(s.Status, s.Automated)).
func (s Signal) Classify() Transition {
	return NewTransition(s.SubjectID, Classify(s.Status, s.Automated))
}
