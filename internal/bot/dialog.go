package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/voltrent/energybot/core/telegram/helpers"
	"github.com/voltrent/energybot/internal/conversation"
	"github.com/voltrent/energybot/internal/domain"
)

// Dialog bridges the text router's FSM hook to the rental conversation.
// While a dialog is in progress every text update lands here instead of the
// command routes.
type Dialog struct {
	h *Handlers
}

// NewDialog wraps the handler set for the text router.
func NewDialog(h *Handlers) *Dialog { return &Dialog{h: h} }

// InProgress reports whether the user has a rental dialog open.
func (d *Dialog) InProgress(userID int64) bool {
	return d.h.svc.ConversationState(domain.Identity(userID)) != conversation.StateIdle
}

// ManagerHandler consumes the next dialog reply.
func (d *Dialog) ManagerHandler(c tele.Context) error {
	return d.h.DialogInput(c)
}

// DialogInput dispatches a free-text reply to the current dialog step.
// /cancel always aborts; any other command is refused until the dialog is
// finished or cancelled.
func (h *Handlers) DialogInput(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if isCommand(text) {
		if text == "/cancel" || strings.HasPrefix(text, "/cancel@") {
			return h.Cancel(c)
		}
		return tghelpers.SendText(c, dialogInProgressText)
	}

	ctx := tghelpers.BuildContext(c)
	id := identity(c)

	switch h.svc.ConversationState(id) {
	case conversation.StateAwaitingAddress:
		if err := h.svc.ProvideDestination(ctx, id, text); err != nil {
			return h.reply(c, err)
		}
		return tghelpers.SendMD(c, renderDestinationAccepted(text))

	case conversation.StateAwaitingAmount:
		res, err := h.svc.ProvideEnergyAmount(ctx, id, text)
		if err != nil {
			return h.reply(c, err)
		}
		return tghelpers.SendText(c, renderRented(res))
	}

	// The router only calls in here while a dialog is open; a stray idle
	// update falls back to the unknown-text reply.
	return tghelpers.SendText(c, unknownCommandText)
}
