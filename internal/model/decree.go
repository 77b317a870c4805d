package model

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DecreeType tells which part of the realm a decree belongs to.
type DecreeType string

const (
	TypeGeneral       DecreeType = "GENERAL"
	TypeLibrary       DecreeType = "LIBRARY"
	TypeTheatre       DecreeType = "THEATRE"
	TypeBarracks      DecreeType = "BARRACKS"
	TypeExam          DecreeType = "EXAM"
	TypeCalendarEvent DecreeType = "CALENDAR_EVENT"
)

// DecreeTypes lists every known type in display order.
var DecreeTypes = []DecreeType{TypeGeneral, TypeLibrary, TypeTheatre, TypeBarracks, TypeExam, TypeCalendarEvent}

// Unit is what TargetQuantity and CurrentQuantity count.
type Unit string

const (
	UnitSessions Unit = "SESSIONS"
	UnitMinutes  Unit = "MINUTES"
	UnitPages    Unit = "PAGES"
)

var Units = []Unit{UnitSessions, UnitMinutes, UnitPages}

// Status of a decree. PENDING may move to COMPLETED or ABANDONED, both terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusAbandoned Status = "ABANDONED"
)

// Frequency of a repetitive decree.
type Frequency string

const (
	FrequencyDaily      Frequency = "DAILY"
	FrequencyWeekly     Frequency = "WEEKLY"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyCustom     Frequency = "CUSTOM"
	FrequencyBiweekly   Frequency = "BIWEEKLY"
	FrequencyEvery2Days Frequency = "EVERY_2_DAYS"
)

var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom, FrequencyBiweekly, FrequencyEvery2Days}

var (
	ErrMissingDays      = errors.New("weekly and custom recurrence need at least one weekday")
	ErrUnknownFrequency = errors.New("unknown recurrence frequency")
)

// Recurrence controls on which calendar days a decree shows up.
// Days holds weekday indices with Sunday=0.
type Recurrence struct {
	IsRepetitive bool      `json:"isRepetitive"`
	Frequency    Frequency `json:"frequency,omitempty"`
	Days         []int     `json:"days"`
	Interval     int       `json:"interval"`
}

// Repetitive reports whether r describes a repeating decree. A nil rule is one-shot.
func (r *Recurrence) Repetitive() bool {
	return r != nil && r.IsRepetitive
}

// Normalize returns a copy of r with derived fields filled in.
func (r Recurrence) Normalize() Recurrence {
	if !r.IsRepetitive {
		return Recurrence{Interval: 1}
	}

	out := Recurrence{IsRepetitive: true, Frequency: r.Frequency, Interval: 1}
	switch r.Frequency {
	case FrequencyEvery2Days:
		out.Interval = 2
	case FrequencyBiweekly:
		out.Interval = 14
	case FrequencyWeekly, FrequencyCustom:
		seen := make(map[int]bool, len(r.Days))
		for _, d := range r.Days {
			if d < 0 || d > 6 || seen[d] {
				continue
			}
			seen[d] = true
			out.Days = append(out.Days, d)
		}
		sort.Ints(out.Days)
	}
	return out
}

// Validate checks a normalized rule before it is stored.
func (r Recurrence) Validate() error {
	if !r.IsRepetitive {
		return nil
	}
	switch r.Frequency {
	case FrequencyDaily, FrequencyMonthly, FrequencyBiweekly, FrequencyEvery2Days:
		return nil
	case FrequencyWeekly, FrequencyCustom:
		if len(r.Days) == 0 {
			return ErrMissingDays
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, r.Frequency)
	}
}

// Decree is a task issued by a monarch.
type Decree struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	UserID          uint        `gorm:"index" json:"userId"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Type            DecreeType  `gorm:"size:32;default:GENERAL" json:"type"`
	TargetQuantity  int         `json:"targetQuantity"`
	CurrentQuantity int         `gorm:"default:0" json:"currentQuantity"`
	Unit            Unit        `gorm:"size:16;default:SESSIONS" json:"unit"`
	Status          Status      `gorm:"size:16;default:PENDING;index" json:"status"`
	DueDate         *time.Time  `json:"dueDate,omitempty"`
	Recurrence      *Recurrence `gorm:"serializer:json" json:"recurrence,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// BeforeCreate assigns an ID to decrees that were not given one.
func (d *Decree) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Closed reports whether the decree reached a terminal status.
func (d Decree) Closed() bool {
	return d.Status == StatusCompleted || d.Status == StatusAbandoned
}

// ParseDecreeType accepts the stored upper-case name in any case.
func ParseDecreeType(raw string) (DecreeType, bool) {
	for _, t := range DecreeTypes {
		if equalFold(string(t), raw) {
			return t, true
		}
	}
	return "", false
}

func ParseUnit(raw string) (Unit, bool) {
	for _, u := range Units {
		if equalFold(string(u), raw) {
			return u, true
		}
	}
	return "", false
}

func ParseFrequency(raw string) (Frequency, bool) {
	for _, f := range Frequencies {
		if equalFold(string(f), raw) {
			return f, true
		}
	}
	return "", false
}
