package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"royal-decrees/internal/calendar"
	"royal-decrees/internal/model"
	"royal-decrees/internal/recurrence"
	"royal-decrees/internal/repository"
	"royal-decrees/internal/service"
	"royal-decrees/internal/state"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageType
	stageUnit
	stageTarget
	stageDueDate
	stageRecurring
	stageFrequency
	stageDays
)

const (
	cbCompletePrefix = "complete:"
	cbAbandonPrefix  = "abandon:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
)

const (
	btnSkip          = "⏭️ Skip"
	btnYes           = "Yes"
	btnNo            = "No"
	btnConfirm       = "✅ Confirm"
	btnCancel        = "↩️ Cancel"
	btnCancelDialog  = "⏪ Stop dictation"
	menuLabelDecree  = "📜 New decree"
	menuLabelDecrees = "⚔️ Decrees"
	menuLabelToday   = "🗓 Today"
	menuLabelTable   = "🗺 War table"
	menuLabelHelp    = "ℹ️ Help"
)

const dateLayout = "2006-01-02"

type conversationState struct {
	stage conversationStage
	input service.DecreeInput
}

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionAbandon
)

type confirmationRequest struct {
	decreeID string
	action   confirmationAction
}

// sender is the part of the Bot API used to answer users.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot connects the Telegram API with the decree services.
type Bot struct {
	api           *tgbotapi.BotAPI
	out           sender
	monarchRepo   *repository.MonarchRepository
	decreeSvc     *service.DecreeService
	reminderSvc   *service.ReminderService
	calendarSvc   *service.CalendarService
	log           *zap.Logger
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, monarchRepo *repository.MonarchRepository, decreeSvc *service.DecreeService, reminderSvc *service.ReminderService, calendarSvc *service.CalendarService, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("bot")

	log.Info("bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:           api,
		out:           api,
		monarchRepo:   monarchRepo,
		decreeSvc:     decreeSvc,
		reminderSvc:   reminderSvc,
		calendarSvc:   calendarSvc,
		log:           log,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warn("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warn("handle message", zap.Error(err))
			}
		}
	}

	return ctx.Err()
}

// Notify sends an announcement to the monarch's private chat.
func (b *Bot) Notify(_ context.Context, monarch model.Monarch, text string) error {
	if monarch.TelegramID == 0 {
		return fmt.Errorf("monarch %d has no telegram chat", monarch.ID)
	}
	return b.sendText(monarch.TelegramID, "📯 "+escape(text))
}

// SendDailyReports sends the war report to every known monarch.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	monarchs, err := b.monarchRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(b.calendarSvc.Location())
	for _, monarch := range monarchs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reminderSvc.DailySummary(ctx, monarch, now)
		if err != nil {
			b.log.Warn("build summary", zap.Int64("telegram_id", monarch.TelegramID), zap.Error(err))
			continue
		}
		if err := b.sendText(monarch.TelegramID, text); err != nil {
			b.log.Warn("send summary", zap.Int64("telegram_id", monarch.TelegramID), zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Dictation abandoned. The scribe awaits your next command.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Info("command", zap.Int64("from", msg.From.ID), zap.String("command", msg.Command()), zap.String("args", msg.CommandArguments()))
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		b.log.Debug("conversation step", zap.Int("stage", int(b.getConversation(msg.From.ID).stage)), zap.Int64("from", msg.From.ID))
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "The scribe did not understand. Use /newdecree to dictate a decree or /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "newdecree":
		return b.startNewDecreeConversation(ctx, msg)
	case "decrees":
		return b.handleListDecrees(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "wartable":
		return b.handleWarTable(ctx, msg)
	case "progress":
		return b.handleProgress(ctx, msg)
	case "complete":
		return b.handleStatusCommand(ctx, msg, actionComplete)
	case "abandon":
		return b.handleStatusCommand(ctx, msg, actionAbandon)
	case "revoke":
		return b.handleRevoke(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Dictation abandoned.")
	default:
		return b.sendText(msg.Chat.ID, "No such command in the royal book. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(
		"👑 Hail, %s!\n<b>I am your royal scribe. I keep your decrees and mark them on the war table.</b>\n\n%s",
		escape(monarch.DisplayName()),
		helpText(),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Royal commands</b>\n"+helpText())
}

func helpText() string {
	return "• /newdecree — dictate a decree step by step\n" +
		"• /decrees — every pending decree, with buttons\n" +
		"• /today — decrees active today\n" +
		"• /wartable [YYYY-MM-DD] — the calendar around a date\n" +
		"• /progress &lt;id&gt; &lt;amount&gt; — record sessions, minutes or pages\n" +
		"• /complete &lt;id&gt; — mark a decree fulfilled\n" +
		"• /abandon &lt;id&gt; — abandon a decree\n" +
		"• /revoke &lt;id&gt; — strike a decree from the records\n" +
		"• /report — the daily war report\n" +
		"• /cancel — stop the current dictation"
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminderSvc.DailySummary(ctx, *monarch, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("The report could not be drawn up: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) startNewDecreeConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureMonarch(ctx, msg.From); err != nil {
		return err
	}
	b.log.Info("start new decree conversation", zap.Int64("from", msg.From.ID))
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "📜 A new decree.\n<b>Step 1:</b> what shall it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	conv := b.getConversation(msg.From.ID)
	if conv == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch conv.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "A decree needs a title.", cancelKeyboard())
		}
		conv.input.Title = text
		conv.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press «Skip»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			conv.input.Description = text
		}
		conv.stage = stageType
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏰 Which part of the realm does it concern?", typeKeyboard())
	case stageType:
		t := model.TypeGeneral
		if !isSkipInput(text) {
			parsed, ok := parseDecreeType(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the buttons.", typeKeyboard())
			}
			t = parsed
		}
		conv.input.Type = t
		conv.stage = stageUnit
		return b.sendWithReplyMarkup(msg.Chat.ID, "📏 What is counted: sessions, minutes or pages?", unitKeyboard())
	case stageUnit:
		u := model.UnitSessions
		if !isSkipInput(text) {
			parsed, ok := model.ParseUnit(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the buttons.", unitKeyboard())
			}
			u = parsed
		}
		conv.input.Unit = u
		conv.stage = stageTarget
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("🎯 How many %s make the decree fulfilled? (or «Skip»)", strings.ToLower(string(u))), skipKeyboard())
	case stageTarget:
		if !isSkipInput(text) {
			target, err := strconv.Atoi(text)
			if err != nil || target < 0 {
				return b.sendWithReplyMarkup(msg.Chat.ID, "The target must be a whole number, zero or more.", skipKeyboard())
			}
			conv.input.TargetQuantity = target
		}
		conv.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2025-11-30</code> (or «Skip»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			parsed, err := time.ParseInLocation(dateLayout, text, b.calendarSvc.Location())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "That date is unreadable. Use <code>2025-11-30</code> or «Skip».", skipKeyboard())
			}
			conv.input.DueDate = &parsed
		}
		conv.stage = stageRecurring
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Shall the decree repeat?", yesNoKeyboard())
	case stageRecurring:
		switch strings.ToLower(text) {
		case "yes", "y":
			conv.stage = stageFrequency
			return b.sendWithReplyMarkup(msg.Chat.ID, "How often?", frequencyKeyboard())
		case "no", "n", "-":
			err := b.finishDecreeCreation(ctx, msg.From, conv.input, msg.Chat.ID)
			b.clearConversation(msg.From.ID)
			return err
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, "Press «Yes» or «No».", yesNoKeyboard())
	case stageFrequency:
		freq, ok := parseFrequency(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the buttons.", frequencyKeyboard())
		}
		conv.input.Recurrence = &model.Recurrence{IsRepetitive: true, Frequency: freq}
		if freq == model.FrequencyWeekly || freq == model.FrequencyCustom {
			conv.stage = stageDays
			return b.sendWithReplyMarkup(msg.Chat.ID, "📆 On which weekdays? For example <code>mon wed fri</code> or <code>1 3 5</code> (Sunday is 0).", tgbotapi.NewRemoveKeyboard(true))
		}
		err := b.finishDecreeCreation(ctx, msg.From, conv.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	case stageDays:
		days, err := parseWeekdays(text)
		if err != nil || len(days) == 0 {
			return b.sendText(msg.Chat.ID, "Name at least one weekday, like <code>mon wed</code>.")
		}
		conv.input.Recurrence.Days = days
		err = b.finishDecreeCreation(ctx, msg.From, conv.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "The dictation was reset. Start again with /newdecree.")
	}
}

func (b *Bot) finishDecreeCreation(ctx context.Context, from *tgbotapi.User, input service.DecreeInput, chatID int64) error {
	monarch, err := b.ensureMonarch(ctx, from)
	if err != nil {
		return err
	}

	decree, err := b.decreeSvc.Issue(ctx, monarch, input)
	if err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("The decree could not be sealed: %s", escape(err.Error())))
	}

	b.log.Info("decree created", zap.String("id", decree.ID), zap.Uint("monarch", monarch.ID), zap.Bool("repetitive", decree.Recurrence.Repetitive()))

	var summary strings.Builder
	summary.WriteString("🔏 <b>Decree sealed</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", service.ShortID(decree.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(decree.Title))))
	summary.WriteString(fmt.Sprintf("• <b>Type:</b> %s\n", typeLabel(decree.Type)))
	if decree.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(decree.Description)))
	}
	if decree.TargetQuantity > 0 {
		summary.WriteString(fmt.Sprintf("• <b>Target:</b> %d %s\n", decree.TargetQuantity, strings.ToLower(string(decree.Unit))))
	}
	if decree.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", decree.DueDate.Format(dateLayout)))
	}
	if decree.Recurrence.Repetitive() {
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", service.DescribeRecurrence(*decree.Recurrence)))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendDecreeList(ctx, chatID, monarch)
}

func (b *Bot) handleListDecrees(ctx context.Context, msg *tgbotapi.Message) error {
	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendDecreeList(ctx, msg.Chat.ID, monarch)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	decrees, err := b.decreeSvc.List(ctx, monarch)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("The records could not be read: %s", escape(err.Error())))
	}

	now := b.now()
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗓 <b>%s</b>\n\n", now.Format("Monday, 02 Jan 2006")))
	count := 0
	for _, d := range decrees {
		if d.Status != model.StatusPending || !recurrence.IsActiveOn(d, now) {
			continue
		}
		builder.WriteString(service.FormatDecree(d, now))
		count++
	}
	if count == 0 {
		builder.WriteString("No decree demands your attention today.")
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleWarTable(ctx context.Context, msg *tgbotapi.Message) error {
	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}

	center := b.now()
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		parsed, err := calendar.ParseDateKey(arg, b.calendarSvc.Location())
		if err != nil {
			return b.sendText(msg.Chat.ID, "Use <code>/wartable 2025-11-30</code>.")
		}
		center = parsed
	}

	markers, err := b.calendarSvc.WarTable(ctx, monarch, center)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("The war table could not be laid out: %s", escape(err.Error())))
	}
	grid := service.RenderMonth(center, markers)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗺 <b>War table</b>\n<pre>%s</pre>", escape(grid)))
}

func (b *Bot) handleProgress(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Name the decree and the amount: /progress 1a2b3c4d 25")
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		return b.sendText(msg.Chat.ID, "The amount must be a positive number.")
	}

	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	id, err := b.decreeSvc.ResolveID(ctx, monarch, args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, decreeErrorText(err))
	}

	decree, err := b.decreeSvc.RecordProgress(ctx, monarch, id, amount)
	if err != nil {
		return b.sendText(msg.Chat.ID, decreeErrorText(err))
	}

	b.log.Info("progress recorded", zap.String("id", decree.ID), zap.Int("amount", amount), zap.Int("current", decree.CurrentQuantity))
	text := fmt.Sprintf("📈 «%s»: %d", escape(normalizeTitle(decree.Title)), decree.CurrentQuantity)
	if decree.TargetQuantity > 0 {
		text += fmt.Sprintf("/%d", decree.TargetQuantity)
	}
	text += " " + strings.ToLower(string(decree.Unit))
	if decree.Status == model.StatusCompleted {
		text += "\n✅ The decree is fulfilled!"
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStatusCommand(ctx context.Context, msg *tgbotapi.Message, action confirmationAction) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Name the decree: /%s 1a2b3c4d", msg.Command()))
	}

	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	id, err := b.decreeSvc.ResolveID(ctx, monarch, arg)
	if err != nil {
		return b.sendText(msg.Chat.ID, decreeErrorText(err))
	}
	return b.applyStatus(ctx, msg.Chat.ID, monarch, id, action)
}

func (b *Bot) handleRevoke(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return b.sendText(msg.Chat.ID, "Name the decree: /revoke 1a2b3c4d")
	}

	monarch, err := b.ensureMonarch(ctx, msg.From)
	if err != nil {
		return err
	}
	id, err := b.decreeSvc.ResolveID(ctx, monarch, arg)
	if err != nil {
		return b.sendText(msg.Chat.ID, decreeErrorText(err))
	}

	decree, err := b.decreeSvc.Revoke(ctx, monarch, id)
	if err != nil {
		return b.sendText(msg.Chat.ID, decreeErrorText(err))
	}
	b.log.Info("decree revoked", zap.String("id", decree.ID), zap.Uint("monarch", monarch.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔥 The decree «%s» was struck from the records.", escape(normalizeTitle(decree.Title))))
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		monarch, err := b.ensureMonarch(ctx, msg.From)
		if err != nil {
			return err
		}
		if err := b.applyStatus(ctx, msg.Chat.ID, monarch, req.decreeID, req.action); err != nil {
			return err
		}
		return b.sendDecreeList(ctx, msg.Chat.ID, monarch)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Confirm or cancel fulfilling the decree."
		if req.action == actionAbandon {
			prompt = "Confirm or cancel abandoning the decree."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) applyStatus(ctx context.Context, chatID int64, monarch *model.Monarch, id string, action confirmationAction) error {
	var (
		decree *model.Decree
		err    error
	)
	if action == actionAbandon {
		decree, err = b.decreeSvc.Abandon(ctx, monarch, id)
	} else {
		decree, err = b.decreeSvc.Complete(ctx, monarch, id)
	}
	if err != nil {
		return b.sendTextWithRemove(chatID, decreeErrorText(err))
	}

	b.log.Info("decree status changed", zap.String("id", decree.ID), zap.String("status", string(decree.Status)), zap.Uint("monarch", monarch.ID))
	if decree.Status == model.StatusAbandoned {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("🏳 The decree «%s» is abandoned.", escape(normalizeTitle(decree.Title))))
	}
	return b.sendTextWithRemove(chatID, fmt.Sprintf("✅ The decree «%s» is fulfilled.", escape(normalizeTitle(decree.Title))))
}

func (b *Bot) sendDecreeList(ctx context.Context, chatID int64, monarch *model.Monarch) error {
	decrees, err := b.decreeSvc.List(ctx, monarch)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("The records could not be read: %s", escape(err.Error())))
	}

	now := b.now()
	var builder strings.Builder
	builder.WriteString("⚔️ <b>Pending decrees</b>\n")
	builder.WriteString("Press a button to fulfil or abandon a decree.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, t := range model.DecreeTypes {
		var section []model.Decree
		for _, d := range decrees {
			if d.Type == t && d.Status == model.StatusPending {
				section = append(section, d)
			}
		}
		if len(section) == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", typeLabel(t)))
		for _, d := range section {
			builder.WriteString(service.FormatDecree(d, now))
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s", shortTitle(d.Title, 20)), cbCompletePrefix+d.ID),
				tgbotapi.NewInlineKeyboardButtonData("🏳 Abandon", cbAbandonPrefix+d.ID),
			))
		}
		builder.WriteByte('\n')
	}

	if len(buttons) == 0 {
		return b.sendText(chatID, "No decree is pending. Dictate one with /newdecree.")
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.out.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", zap.Error(err))
	}

	data := cb.Data
	b.log.Info("callback", zap.Int64("from", cb.From.ID), zap.String("data", data))

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbCompletePrefix), actionComplete)
	case strings.HasPrefix(data, cbAbandonPrefix):
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbAbandonPrefix), actionAbandon)
	case strings.HasPrefix(data, cbConfirmPrefix):
		return b.confirmFromCallback(ctx, cb, strings.TrimPrefix(data, cbConfirmPrefix))
	case strings.HasPrefix(data, cbCancelPrefix):
		if req, ok := b.getConfirmation(cb.From.ID); ok && req.decreeID == strings.TrimPrefix(data, cbCancelPrefix) {
			b.clearConfirmation(cb.From.ID)
		}
		return b.sendMenuPlaceholder(cb.Message.Chat.ID)
	default:
		return nil
	}
}

// confirmFromCallback applies the action stored by askConfirmation for this decree.
func (b *Bot) confirmFromCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, decreeID string) error {
	req, ok := b.getConfirmation(cb.From.ID)
	if !ok || req.decreeID != decreeID {
		return b.sendText(cb.Message.Chat.ID, "That confirmation has expired. Press the decree's button again.")
	}
	b.clearConfirmation(cb.From.ID)

	monarch, err := b.ensureMonarch(ctx, cb.From)
	if err != nil {
		return err
	}
	if err := b.applyStatus(ctx, cb.Message.Chat.ID, monarch, req.decreeID, req.action); err != nil {
		return err
	}
	return b.sendDecreeList(ctx, cb.Message.Chat.ID, monarch)
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, decreeID string, action confirmationAction) error {
	monarch, err := b.ensureMonarch(ctx, from)
	if err != nil {
		return err
	}

	decree, err := b.decreeSvc.Get(ctx, monarch, decreeID)
	if err != nil {
		return b.sendText(chatID, decreeErrorText(err))
	}
	if decree.Closed() {
		return b.sendText(chatID, "That decree is already closed.")
	}

	verb := "Fulfil"
	if action == actionAbandon {
		verb = "Abandon"
	}
	text := fmt.Sprintf("%s the decree «%s» (<code>%s</code>)?", verb, escape(normalizeTitle(decree.Title)), service.ShortID(decree.ID))
	b.setConfirmation(from.ID, confirmationRequest{decreeID: decree.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirmPrefix+decree.ID),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancelPrefix+decree.ID),
		),
	))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelDecree):
		return true, b.startNewDecreeConversation(ctx, msg)
	case strings.ToLower(menuLabelDecrees):
		return true, b.handleListDecrees(ctx, msg)
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelTable):
		return true, b.handleWarTable(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureMonarch(ctx context.Context, from *tgbotapi.User) (*model.Monarch, error) {
	return b.monarchRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) now() time.Time {
	return time.Now().In(b.calendarSvc.Location())
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.out.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "👑 Throne room")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, conv *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = conv
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func decreeErrorText(err error) string {
	switch {
	case errors.Is(err, state.ErrDecreeNotFound):
		return "No such decree in the records."
	case errors.Is(err, state.ErrDecreeClosed):
		return "That decree is already closed."
	case errors.Is(err, state.ErrInvalidAmount):
		return "The amount must be a positive number."
	default:
		return fmt.Sprintf("The scribe stumbled: %s", escape(err.Error()))
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
