// Package bot adapts Telegram updates to the service layer: commands,
// callback buttons, and the free-text replies of the rental dialog.
package bot

import (
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/voltrent/energybot/core/telegram/helpers"
	"github.com/voltrent/energybot/core/telegram/keyboard"
	"github.com/voltrent/energybot/core/telegram/ui"
	"github.com/voltrent/energybot/internal/domain"
	"github.com/voltrent/energybot/internal/service"
)

// Handlers owns every user-facing entry point of the bot.
type Handlers struct {
	svc   *service.Service
	plans []decimal.Decimal
}

// NewHandlers builds the handler set with the standard small/medium/large
// rental plans.
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{
		svc: svc,
		plans: []decimal.Decimal{
			decimal.NewFromInt(10),
			decimal.NewFromInt(25),
			decimal.NewFromInt(50),
		},
	}
}

func identity(c tele.Context) domain.Identity {
	return domain.Identity(c.Sender().ID)
}

func displayName(c tele.Context) string {
	u := c.Sender()
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// reply sends err's user-facing rendition when it has one; anything else is
// handed back to the router for logging.
func (h *Handlers) reply(c tele.Context, err error) error {
	if msg, ok := renderError(err); ok {
		return tghelpers.SendText(c, msg)
	}
	return err
}

// Start ensures the account exists and shows the welcome card.
func (h *Handlers) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if _, err := h.svc.Initialize(ctx, identity(c), displayName(c)); err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, welcomeText)
}

// Credit shows the balance card.
func (h *Handlers) Credit(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.svc.Balance(ctx, identity(c))
	if err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderBalance(res))
}

// TopUp credits the account with the command argument.
func (h *Handlers) TopUp(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := c.Args()
	if len(args) == 0 {
		return tghelpers.SendText(c, "❌ Please provide a valid amount. Example: /topup 50")
	}
	res, err := h.svc.TopUp(ctx, identity(c), args[0])
	if err != nil {
		if err == service.ErrRemoteTopUp {
			return tghelpers.SendText(c, topUpViaPlatformText)
		}
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderTopUp(res))
}

// Rentals shows the pricing card with plan buttons.
func (h *Handlers) Rentals(c tele.Context) error {
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🔋 10 kWh", Unique: cbRentPlan, Data: "10"},
			{Text: "🔋 25 kWh", Unique: cbRentPlan, Data: "25"},
			{Text: "🔋 50 kWh", Unique: cbRentPlan, Data: "50"},
		},
		[]keyboard.InlineBtn{
			{Text: "✏️ Custom amount", Unique: cbRentCustom, Data: "start"},
		},
	)
	return c.Send(renderRentalOptions(h.svc.UnitPrice(), h.plans), markup)
}

// Rent either issues a rental directly from the argument or, without one,
// starts the two-step dialog asking for a destination wallet.
func (h *Handlers) Rent(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := c.Args()
	if len(args) == 0 {
		return h.beginDialog(c)
	}
	res, err := h.svc.Rent(ctx, identity(c), args[0], "")
	if err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderRented(res))
}

func (h *Handlers) beginDialog(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.svc.RequestRental(ctx, identity(c)); err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, askDestinationText)
}

// Cancel aborts a rental dialog in progress.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if h.svc.CancelRental(ctx, identity(c)) {
		return tghelpers.SendText(c, cancelledText)
	}
	return tghelpers.SendText(c, nothingToCancelText)
}

// MyRentals lists active rentals.
func (h *Handlers) MyRentals(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	rentals, err := h.svc.ActiveRentals(ctx, identity(c))
	if err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderRentals(rentals))
}

// History lists the transaction log.
func (h *Handlers) History(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	txs, err := h.svc.History(ctx, identity(c))
	if err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderHistory(txs))
}

// Help shows the command help card.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c, helpText)
}

// UnknownText is the fallback for text that matches neither a command nor a
// dialog step.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, unknownCommandText)
	}
}

// UnknownDocument is the fallback for unexpected attachments.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, unknownCommandText)
	}
}

// UnknownCallback answers button taps whose action is no longer wired.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

var _ ui.FallbackProvider = (*Handlers)(nil)
