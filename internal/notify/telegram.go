package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/events"
	"beautycity/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Telegram allows about 30 messages per second per bot.
const sendRate = 20

// NewBotSender connects to the Bot API.
func NewBotSender(token string, debug bool) (domain.TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// Notifier tells salon managers about new, confirmed and canceled appointments.
// Event handlers only enqueue; delivery happens in Start.
type Notifier struct {
	sender   domain.TelegramSender
	catalog  domain.CatalogStore
	chatIDs  []int64
	location *time.Location
	queue    chan *events.Event
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

func NewNotifier(sender domain.TelegramSender, catalog domain.CatalogStore, chatIDs []int64, loc *time.Location, logger *zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{
		sender:   sender,
		catalog:  catalog,
		chatIDs:  chatIDs,
		location: loc,
		queue:    make(chan *events.Event, models.WorkerQueueSize),
		limiter:  rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:   logger,
	}
}

// Subscribe registers the notifier on all appointment events.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	for _, t := range []string{
		events.EventAppointmentCreated,
		events.EventAppointmentConfirmed,
		events.EventAppointmentCanceled,
	} {
		bus.Subscribe(t, n.enqueue)
	}
}

func (n *Notifier) enqueue(ev *events.Event) error {
	select {
	case n.queue <- ev:
		return nil
	default:
		return fmt.Errorf("notification queue full, %s dropped", ev.Type)
	}
}

// Start delivers queued notifications until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info().Int("managers", len(n.chatIDs)).Msg("telegram notifier started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			if err := n.deliver(ctx, ev); err != nil {
				n.logger.Error().Err(err).Str("event", ev.Type).Msg("notification failed")
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev *events.Event) error {
	var payload events.AppointmentEventPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	text := n.Format(ctx, ev.Type, payload)

	var failed int
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = models.ParseModeHTML
		if _, err := n.sender.Send(msg); err != nil {
			failed++
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Int64("appointment_id", payload.AppointmentID).Msg("telegram send failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages not sent", failed, len(n.chatIDs))
	}
	return nil
}

var titles = map[string]string{
	events.EventAppointmentCreated:   "🆕 Новая запись",
	events.EventAppointmentConfirmed: "✅ Запись подтверждена",
	events.EventAppointmentCanceled:  "❌ Запись отменена",
}

// Format renders an HTML message; catalog lookups that fail fall back to ids.
func (n *Notifier) Format(ctx context.Context, eventType string, p events.AppointmentEventPayload) string {
	title, ok := titles[eventType]
	if !ok {
		title = eventType
	}

	start := p.StartAt.In(n.location)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> №%d\n", title, p.AppointmentID)
	fmt.Fprintf(&b, "📅 %s %s–%s\n", start.Format("02.01.2006"), start.Format(models.ClockLayout), p.EndAt.In(n.location).Format(models.ClockLayout))
	fmt.Fprintf(&b, "🏠 %s\n", html.EscapeString(n.salonName(ctx, p.SalonID)))
	fmt.Fprintf(&b, "💇 %s, %s\n", html.EscapeString(n.specialistName(ctx, p.SpecialistID)), html.EscapeString(n.procedureTitle(ctx, p.ProcedureID)))
	fmt.Fprintf(&b, "👤 %s, %s\n", html.EscapeString(p.CustomerName), html.EscapeString(p.Phone))
	if p.Question != "" {
		fmt.Fprintf(&b, "💬 %s\n", html.EscapeString(p.Question))
	}
	fmt.Fprintf(&b, "💰 %s ₽", p.PriceFinal)
	return b.String()
}

func (n *Notifier) salonName(ctx context.Context, id int64) string {
	if n.catalog != nil {
		if s, err := n.catalog.GetSalon(ctx, id); err == nil && s != nil {
			return s.Name
		}
	}
	return fmt.Sprintf("салон #%d", id)
}

func (n *Notifier) specialistName(ctx context.Context, id int64) string {
	if n.catalog != nil {
		if s, err := n.catalog.GetSpecialist(ctx, id); err == nil && s != nil {
			return s.FullName
		}
	}
	return fmt.Sprintf("мастер #%d", id)
}

func (n *Notifier) procedureTitle(ctx context.Context, id int64) string {
	if n.catalog != nil {
		if p, err := n.catalog.GetProcedure(ctx, id); err == nil && p != nil {
			return p.Title
		}
	}
	return fmt.Sprintf("процедура #%d", id)
}
