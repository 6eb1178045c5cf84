package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/core/telegram/format"
	"github.com/voltrent/energybot/internal/domain"
	"github.com/voltrent/energybot/internal/service"
)

// All user-facing text lives in this file; the service layer below it only
// deals in typed values.

const welcomeText = `Welcome to Energy Rent Bot! ⚡

Available commands:
/start - Show this message
/credit - Check your credit balance
/topup <amount> - Add credit to account
/rentals - View energy rental options
/rent <amount> - Rent energy units
/myrentals - View your active rentals
/history - View transaction history
/help - Get help with commands`

const helpText = `📚 Command Help:

💳 CREDIT MANAGEMENT:
/credit - Check your credit balance
/topup <amount> - Add credit (e.g., /topup 50)

⚡ ENERGY RENTAL:
/rentals - View rental options & pricing
/rent <kWh> - Rent energy (e.g., /rent 10)
/rent - Rent to another wallet step by step
/myrentals - View your active rentals
/cancel - Abort a rental in progress

📊 HISTORY & INFO:
/history - View all transactions
/help - Show this help message

Example Usage:
/topup 100     (Add $100 credit)
/rent 25       (Rent 25 kWh)`

const (
	notInitializedText   = "Please use /start first to initialize your account."
	unknownCommandText   = "I didn't understand that command. Use /help to see available commands."
	askDestinationText   = "Send the destination wallet address the energy should be delegated to (TRON address, starts with T).\n\nUse /cancel to abort."
	askAmountText        = "How many kWh would you like to rent? Send a number, e.g. 10.\n\nUse /cancel to abort."
	dialogInProgressText = "Please finish the rental in progress first, or send /cancel to abort it."
	cancelledText        = "Rental cancelled."
	nothingToCancelText  = "Nothing to cancel."
	topUpViaPlatformText = "Top-ups are handled on the energy platform, not in this chat."
	tryAgainText         = "⚠️ The energy platform did not respond. Please try again in a moment."
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func renderBalance(res service.BalanceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💳 Your Credit Balance: $%s\n\n", money(res.Summary.Balance))
	fmt.Fprintf(&b, "Active Rentals: %d\n", res.Summary.RentalCount)
	fmt.Fprintf(&b, "Total Transactions: %d", res.Summary.HistoryCount)
	if res.WalletAddress != "" {
		fmt.Fprintf(&b, "\nWallet: %s", res.WalletAddress)
	}
	return b.String()
}

func renderTopUp(res service.TopUpResult) string {
	return fmt.Sprintf("✅ Credit added successfully!\n\nAdded: $%s\nNew Balance: $%s",
		money(res.Amount), money(res.NewBalance))
}

func renderRentalOptions(unitPrice decimal.Decimal, plans []decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("⚡ Energy Rental Options:\n\n")
	fmt.Fprintf(&b, "Energy Price: $%s per kWh\n\nAvailable Plans:\n", money(unitPrice))
	labels := []string{"Small", "Medium", "Large"}
	for i, plan := range plans {
		label := "Plan"
		if i < len(labels) {
			label = labels[i]
		}
		fmt.Fprintf(&b, "🔋 %s: %s kWh - $%s\n", label, plan, money(plan.Mul(unitPrice)))
	}
	b.WriteString("🔋 Custom: /rent <amount> kWh\n\nUsage: /rent 10 (for 10 kWh)")
	return b.String()
}

func renderRented(res service.RentResult) string {
	var b strings.Builder
	b.WriteString("⚡ Energy rental successful!\n\n")
	fmt.Fprintf(&b, "Rental ID: %s\n", res.Rental.ID)
	fmt.Fprintf(&b, "Amount: %s kWh\n", res.Rental.EnergyKWH)
	fmt.Fprintf(&b, "Cost: $%s\n", money(res.Rental.Cost))
	if res.Rental.Destination != "" {
		fmt.Fprintf(&b, "Delegated to: %s\n", res.Rental.Destination)
	}
	fmt.Fprintf(&b, "Remaining Credit: $%s", money(res.NewBalance))
	return b.String()
}

func renderRentals(rentals []domain.Rental) string {
	if len(rentals) == 0 {
		return "No active rentals."
	}
	var b strings.Builder
	b.WriteString("⚡ Your Active Rentals:\n\n")
	for i, r := range rentals {
		fmt.Fprintf(&b, "%d. %s kWh\n   ID: %s\n   Cost: $%s\n   Started: %s\n\n",
			i+1, r.EnergyKWH, r.ID, money(r.Cost), r.StartedAt.Format("02 Jan 2006"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(txs []domain.Transaction) string {
	if len(txs) == 0 {
		return "No transaction history yet."
	}
	var b strings.Builder
	b.WriteString("📊 Transaction History:\n\n")
	for i, tx := range txs {
		date := tx.Timestamp.Format("02 Jan 2006")
		switch tx.Kind {
		case domain.TxTopUp:
			fmt.Fprintf(&b, "✅ %d. Credit Top-up: +$%s (%s)\n", i+1, money(tx.Amount), date)
		case domain.TxRental:
			fmt.Fprintf(&b, "⚡ %d. Energy Rental: %s kWh, -$%s (%s)\n", i+1, tx.Amount, money(tx.Cost), date)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDestinationAccepted(addr string) string {
	escaped, err := format.EscapeMarkdown(addr, format.MarkdownV1, "")
	if err != nil {
		escaped = addr
	}
	return fmt.Sprintf("Destination accepted: %s\n\n%s", escaped, askAmountText)
}

// renderError maps domain errors to user-facing text. Unknown errors bubble
// up so the router logs them and the recover middleware stays out of it.
func renderError(err error) (string, bool) {
	if shortErr, ok := domain.IsInsufficientFunds(err); ok {
		return fmt.Sprintf("❌ Insufficient credit!\n\nNeeded: $%s\nYour Balance: $%s\nShortfall: $%s",
			money(shortErr.Needed), money(shortErr.Balance), money(shortErr.Shortfall)), true
	}
	switch {
	case domain.IsInvalidAmount(err):
		return "❌ Please provide a valid positive amount. Example: /topup 50 or /rent 10", true
	case domain.IsInvalidDestination(err):
		return "❌ That doesn't look like a valid TRON address (34 characters, starts with T). Please try again or send /cancel.", true
	case domain.IsAccountNotInitialized(err):
		return notInitializedText, true
	case domain.IsUpstreamUnavailable(err):
		return tryAgainText, true
	}
	return "", false
}
