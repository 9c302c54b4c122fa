package bot

import (
	"fmt"
	"strconv"

	"machrent/internal/config"
	"machrent/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func catalogKeyboard(entries []config.CatalogEntry, staff bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for _, e := range entries {
		id := strconv.FormatInt(e.ID, 10)
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf(btnRent, e.Name), cbRent+id),
		}
		if staff {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf(btnBookFor, e.Name), cbBook+id))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// navRow is appended to every step keyboard. Next is shown only when the
// step can advance.
func navRow(v workflow.View) []tgbotapi.InlineKeyboardButton {
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(btnBack, cbBack),
	}
	if v.CanAdvance {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(btnNext, cbNext))
	}
	return row
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancel))
}

func stepKeyboard(v workflow.View) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(navRow(v), cancelRow())
}

func locationKeyboard(v workflow.View) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, loc := range v.Locations {
		label := loc.Label()
		if loc.ID == v.Draft.LocationID {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbLocation+strconv.FormatInt(loc.ID, 10)),
		))
	}

	// units go two per row
	var unitRow []tgbotapi.InlineKeyboardButton
	for _, unit := range v.Units {
		label := unit
		if unit == v.Draft.UnitID {
			label = "✅ " + label
		}
		unitRow = append(unitRow, tgbotapi.NewInlineKeyboardButtonData(label, cbUnit+unit))
		if len(unitRow) == 2 {
			rows = append(rows, unitRow)
			unitRow = nil
		}
	}
	if len(unitRow) > 0 {
		rows = append(rows, unitRow)
	}

	rows = append(rows, navRow(v), cancelRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func summaryKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnSubmit, cbSubmit)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnBack, cbBack),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancel),
		),
	)
}
