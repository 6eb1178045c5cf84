package bot

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/voltrent/energybot/core/telegram"
	"github.com/voltrent/energybot/core/telegram/callbacks"
	"github.com/voltrent/energybot/core/telegram/commands"
	tghelpers "github.com/voltrent/energybot/core/telegram/helpers"
)

const (
	cbRentPlan   = "rent_plan"
	cbRentCustom = "rent_custom"
)

// BuildRegistry wires every command and callback of the bot.
func BuildRegistry(h *Handlers) *tg.Registry {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Initialize your account",
	})
	reg.RegisterCommand("/credit", commands.Command{
		Handler:     h.Credit,
		Description: "Check your credit balance",
		Aliases:     []string{"balance"},
	})
	reg.RegisterCommand("/topup", commands.Command{
		Handler:     h.TopUp,
		Description: "Add credit to account",
	})
	reg.RegisterCommand("/rentals", commands.Command{
		Handler:     h.Rentals,
		Description: "View energy rental options",
	})
	reg.RegisterCommand("/rent", commands.Command{
		Handler:     h.Rent,
		Description: "Rent energy units",
	})
	reg.RegisterCommand("/myrentals", commands.Command{
		Handler:     h.MyRentals,
		Description: "View your active rentals",
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     h.History,
		Description: "View transaction history",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.Help,
		Description: "Get help with commands",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.Cancel,
		Description: "Abort a rental in progress",
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbRentPlan, h.RentPlanCallback)
	_ = reg.RegisterCallback(cbRentCustom, h.RentCustomCallback)

	reg.SetTextFallback(h.UnknownText())
	reg.SetCallbackNotFound(h.UnknownCallback())

	return reg
}

// RentPlanCallback issues a rental for the preset amount carried in the
// button payload.
func (h *Handlers) RentPlanCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.svc.Rent(ctx, identity(c), callbacks.CallbackPayload(c), "")
	if err != nil {
		return h.reply(c, err)
	}
	return tghelpers.SendText(c, renderRented(res))
}

// RentCustomCallback starts the step-by-step rental dialog from the
// pricing card.
func (h *Handlers) RentCustomCallback(c tele.Context) error {
	return h.beginDialog(c)
}
