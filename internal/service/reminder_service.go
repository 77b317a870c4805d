package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"royal-decrees/internal/calendar"
	"royal-decrees/internal/model"
	"royal-decrees/internal/recurrence"
)

// ReminderService builds human-readable summaries for the daily war report.
type ReminderService struct {
	decrees *DecreeService
}

func NewReminderService(decrees *DecreeService) *ReminderService {
	return &ReminderService{decrees: decrees}
}

// DailySummary lists the decrees active today and the pending days of the coming week.
func (s *ReminderService) DailySummary(ctx context.Context, monarch model.Monarch, now time.Time) (string, error) {
	decrees, err := s.decrees.List(ctx, &monarch)
	if err != nil {
		return "", err
	}

	var pending, completed, abandoned []model.Decree
	for _, d := range decrees {
		if !recurrence.IsActiveOn(d, now) {
			continue
		}
		switch d.Status {
		case model.StatusPending:
			pending = append(pending, d)
		case model.StatusCompleted:
			completed = append(completed, d)
		case model.StatusAbandoned:
			abandoned = append(abandoned, d)
		}
	}
	sortByDue(pending)

	var builder strings.Builder
	builder.WriteString("📜 <b>The War Report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s · renown %d\n\n", now.Format("Monday, 02 Jan 2006"), monarch.Renown))

	builder.WriteString("⚔️ <b>Decrees of the day</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— the realm is at peace today\n")
	} else {
		for _, d := range pending {
			builder.WriteString(FormatDecree(d, now))
		}
	}

	if len(completed) > 0 {
		builder.WriteString("\n✅ <b>Fulfilled</b>\n")
		for _, d := range completed {
			builder.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(d.Title)))
		}
	}
	if len(abandoned) > 0 {
		builder.WriteString("\n🏳 <b>Abandoned</b>\n")
		for _, d := range abandoned {
			builder.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(d.Title)))
		}
	}

	builder.WriteString("\n🔭 <b>The week ahead</b>\n")
	builder.WriteString(weekAhead(decrees, now))

	return strings.TrimSpace(builder.String()), nil
}

func weekAhead(decrees []model.Decree, now time.Time) string {
	markers := calendar.Project(decrees, now.AddDate(0, 0, 4), 3)
	var busy []string
	for i := 1; i <= 7; i++ {
		date := now.AddDate(0, 0, i)
		if mk, ok := markers[calendar.DateKey(date)]; ok && mk.HasPending {
			busy = append(busy, date.Format("Mon 02"))
		}
	}
	if len(busy) == 0 {
		return "— no pending decrees in the next 7 days\n"
	}
	return fmt.Sprintf("%d busy days: %s\n", len(busy), strings.Join(busy, ", "))
}

func sortByDue(decrees []model.Decree) {
	sort.SliceStable(decrees, func(i, j int) bool {
		a, b := decrees[i], decrees[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		default:
			return a.DueDate.Before(*b.DueDate)
		}
	})
}

// FormatDecree renders one decree as an HTML chat entry.
func FormatDecree(d model.Decree, now time.Time) string {
	var sb strings.Builder

	icon := typeIcon(d.Type)
	if d.DueDate != nil && d.Status == model.StatusPending {
		due := recurrence.EndOfDay(*d.DueDate, now.Location())
		switch {
		case now.After(due):
			icon = "⚠️"
		case due.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, ShortID(d.ID), html.EscapeString(strings.TrimSpace(d.Title))))
	if d.TargetQuantity > 0 {
		sb.WriteString(fmt.Sprintf(" · %d/%d %s", d.CurrentQuantity, d.TargetQuantity, strings.ToLower(string(d.Unit))))
	}
	if d.Recurrence.Repetitive() {
		sb.WriteString(fmt.Sprintf("\n   🔁 %s", DescribeRecurrence(*d.Recurrence)))
	}
	if d.DueDate != nil {
		due := d.DueDate.In(now.Location())
		if d.Status == model.StatusPending && now.After(recurrence.EndOfDay(due, now.Location())) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", due.Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", due.Format("2006-01-02")))
		}
	}
	if d.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(d.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// DescribeRecurrence renders a rule for people.
func DescribeRecurrence(r model.Recurrence) string {
	if !r.IsRepetitive {
		return "once"
	}
	switch r.Frequency {
	case model.FrequencyDaily:
		return "every day"
	case model.FrequencyEvery2Days:
		return "every 2 days"
	case model.FrequencyBiweekly:
		return "every 2 weeks"
	case model.FrequencyMonthly:
		return "monthly"
	case model.FrequencyWeekly, model.FrequencyCustom:
		names := make([]string, 0, len(r.Days))
		for _, d := range r.Days {
			if d >= 0 && d <= 6 {
				names = append(names, time.Weekday(d).String()[:3])
			}
		}
		return "on " + strings.Join(names, ", ")
	default:
		return strings.ToLower(string(r.Frequency))
	}
}

// ShortID is the prefix of a decree ID shown in chat.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func typeIcon(t model.DecreeType) string {
	switch t {
	case model.TypeLibrary:
		return "📚"
	case model.TypeTheatre:
		return "🎭"
	case model.TypeBarracks:
		return "🛡"
	case model.TypeExam:
		return "🎓"
	case model.TypeCalendarEvent:
		return "📅"
	default:
		return "📜"
	}
}
