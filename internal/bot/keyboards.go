package bot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"royal-decrees/internal/model"
)

var typeLabels = map[model.DecreeType]string{
	model.TypeGeneral:       "📜 General",
	model.TypeLibrary:       "📚 Library",
	model.TypeTheatre:       "🎭 Theatre",
	model.TypeBarracks:      "🛡 Barracks",
	model.TypeExam:          "🎓 Exam",
	model.TypeCalendarEvent: "📅 Calendar event",
}

var frequencyLabels = []struct {
	label string
	freq  model.Frequency
}{
	{"Daily", model.FrequencyDaily},
	{"Every 2 days", model.FrequencyEvery2Days},
	{"Weekly", model.FrequencyWeekly},
	{"Biweekly", model.FrequencyBiweekly},
	{"Monthly", model.FrequencyMonthly},
	{"Custom", model.FrequencyCustom},
}

var weekdayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

func typeLabel(t model.DecreeType) string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return string(t)
}

// parseDecreeType accepts a keyboard label or the stored type name.
func parseDecreeType(text string) (model.DecreeType, bool) {
	value := strings.TrimSpace(text)
	for t, label := range typeLabels {
		if strings.EqualFold(label, value) {
			return t, true
		}
	}
	return model.ParseDecreeType(strings.ReplaceAll(value, " ", "_"))
}

func parseFrequency(text string) (model.Frequency, bool) {
	value := strings.TrimSpace(text)
	for _, f := range frequencyLabels {
		if strings.EqualFold(f.label, value) {
			return f.freq, true
		}
	}
	return model.ParseFrequency(value)
}

// parseWeekdays reads weekday names or indices (Sunday=0) separated by spaces or commas.
func parseWeekdays(text string) ([]int, error) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';'
	})
	seen := make(map[int]bool, len(fields))
	days := make([]int, 0, len(fields))
	for _, field := range fields {
		day, ok := weekdayNames[field]
		if !ok {
			n, err := strconv.Atoi(field)
			if err != nil || n < 0 || n > 6 {
				return nil, fmt.Errorf("unknown weekday %q", field)
			}
			day = n
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Ints(days)
	return days, nil
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "" || value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "stop"
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelDecree),
			tgbotapi.NewKeyboardButton(menuLabelDecrees),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelTable),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func yesNoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func typeKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(model.DecreeTypes); i += 2 {
		row := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(typeLabel(model.DecreeTypes[i])))
		if i+1 < len(model.DecreeTypes) {
			row = append(row, tgbotapi.NewKeyboardButton(typeLabel(model.DecreeTypes[i+1])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnSkip),
		tgbotapi.NewKeyboardButton(btnCancelDialog),
	))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func unitKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Sessions"),
			tgbotapi.NewKeyboardButton("Minutes"),
			tgbotapi.NewKeyboardButton("Pages"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func frequencyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(frequencyLabels); i += 3 {
		row := tgbotapi.NewKeyboardButtonRow()
		for _, f := range frequencyLabels[i:min(i+3, len(frequencyLabels))] {
			row = append(row, tgbotapi.NewKeyboardButton(f.label))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
