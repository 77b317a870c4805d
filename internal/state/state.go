// Package state holds a monarch's decrees as a value and the reducer that
// moves it forward. Reduce never performs I/O; it returns the commands the
// caller has to run to make storage and notifications catch up.
package state

import (
	"errors"
	"fmt"
	"time"

	"royal-decrees/internal/model"
)

var (
	ErrDecreeNotFound = errors.New("decree not found")
	ErrDecreeClosed   = errors.New("decree is already closed")
	ErrInvalidAmount  = errors.New("progress amount must be positive")
)

// State is everything known about one monarch's decrees.
type State struct {
	MonarchID uint
	Decrees   []model.Decree
}

// Find returns the decree with the given id.
func (s State) Find(id string) (model.Decree, bool) {
	if i := s.index(id); i >= 0 {
		return s.Decrees[i], true
	}
	return model.Decree{}, false
}

func (s State) index(id string) int {
	for i := range s.Decrees {
		if s.Decrees[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) with(i int, d model.Decree) State {
	decrees := make([]model.Decree, len(s.Decrees))
	copy(decrees, s.Decrees)
	decrees[i] = d
	return State{MonarchID: s.MonarchID, Decrees: decrees}
}

// Action is an event applied by Reduce.
type Action interface{ action() }

type (
	// Loaded replaces the state with rows fetched from storage.
	Loaded struct{ Decrees []model.Decree }
	// Issued adds a freshly created decree. The decree must carry an ID.
	Issued struct{ Decree model.Decree }
	// ProgressRecorded adds Amount units of progress.
	ProgressRecorded struct {
		ID     string
		Amount int
		At     time.Time
	}
	Completed struct {
		ID string
		At time.Time
	}
	Abandoned struct{ ID string }
	// Revoked deletes the decree.
	Revoked   struct{ ID string }
)

func (Loaded) action()           {}
func (Issued) action()           {}
func (ProgressRecorded) action() {}
func (Completed) action()        {}
func (Abandoned) action()        {}
func (Revoked) action()          {}

// Command is a side effect requested by Reduce.
type Command interface{ command() }

type (
	SaveDecree struct {
		Decree model.Decree
		New    bool
	}
	DeleteDecree  struct{ ID string }
	GrantRenown   struct{ Points int }
	Announce      struct{ Text string }
	// WriteSnapshot persists the whole state to the offline snapshot.
	WriteSnapshot struct{ State State }
)

func (SaveDecree) command()    {}
func (DeleteDecree) command()  {}
func (GrantRenown) command()   {}
func (Announce) command()      {}
func (WriteSnapshot) command() {}

// Renown returns the points granted for completing a decree of type t.
func Renown(t model.DecreeType) int {
	switch t {
	case model.TypeExam:
		return 25
	case model.TypeCalendarEvent:
		return 5
	default:
		return 10
	}
}

// Reduce applies a to s. On error the returned state equals s and no commands are issued.
func Reduce(s State, a Action) (State, []Command, error) {
	switch a := a.(type) {
	case Loaded:
		next := State{MonarchID: s.MonarchID, Decrees: append([]model.Decree(nil), a.Decrees...)}
		return next, []Command{WriteSnapshot{State: next}}, nil

	case Issued:
		if a.Decree.ID == "" {
			return s, nil, errors.New("issue decree: missing id")
		}
		if s.index(a.Decree.ID) >= 0 {
			return s, nil, fmt.Errorf("issue decree %s: duplicate id", a.Decree.ID)
		}
		d := a.Decree
		d.UserID = s.MonarchID
		d.Status = model.StatusPending
		d.CurrentQuantity = 0
		d.CompletedAt = nil
		decrees := make([]model.Decree, 0, len(s.Decrees)+1)
		decrees = append(decrees, s.Decrees...)
		decrees = append(decrees, d)
		next := State{MonarchID: s.MonarchID, Decrees: decrees}
		return next, []Command{SaveDecree{Decree: d, New: true}, WriteSnapshot{State: next}}, nil

	case ProgressRecorded:
		if a.Amount <= 0 {
			return s, nil, ErrInvalidAmount
		}
		i, d, err := s.open(a.ID)
		if err != nil {
			return s, nil, err
		}
		d.CurrentQuantity += a.Amount
		if d.TargetQuantity > 0 && d.CurrentQuantity >= d.TargetQuantity {
			return s.complete(i, d, a.At)
		}
		next := s.with(i, d)
		return next, []Command{SaveDecree{Decree: d}, WriteSnapshot{State: next}}, nil

	case Completed:
		i, d, err := s.open(a.ID)
		if err != nil {
			return s, nil, err
		}
		return s.complete(i, d, a.At)

	case Abandoned:
		i, d, err := s.open(a.ID)
		if err != nil {
			return s, nil, err
		}
		d.Status = model.StatusAbandoned
		next := s.with(i, d)
		return next, []Command{SaveDecree{Decree: d}, WriteSnapshot{State: next}}, nil

	case Revoked:
		i := s.index(a.ID)
		if i < 0 {
			return s, nil, ErrDecreeNotFound
		}
		decrees := make([]model.Decree, 0, len(s.Decrees)-1)
		decrees = append(decrees, s.Decrees[:i]...)
		decrees = append(decrees, s.Decrees[i+1:]...)
		next := State{MonarchID: s.MonarchID, Decrees: decrees}
		return next, []Command{DeleteDecree{ID: a.ID}, WriteSnapshot{State: next}}, nil

	default:
		return s, nil, fmt.Errorf("unknown action %T", a)
	}
}

func (s State) open(id string) (int, model.Decree, error) {
	i := s.index(id)
	if i < 0 {
		return -1, model.Decree{}, ErrDecreeNotFound
	}
	d := s.Decrees[i]
	if d.Closed() {
		return -1, model.Decree{}, fmt.Errorf("%w: %s", ErrDecreeClosed, d.Status)
	}
	return i, d, nil
}

func (s State) complete(i int, d model.Decree, at time.Time) (State, []Command, error) {
	d.Status = model.StatusCompleted
	d.CompletedAt = &at
	next := s.with(i, d)
	points := Renown(d.Type)
	return next, []Command{
		SaveDecree{Decree: d},
		GrantRenown{Points: points},
		Announce{Text: fmt.Sprintf("The decree %q has been fulfilled. +%d renown.", d.Title, points)},
		WriteSnapshot{State: next},
	}, nil
}
