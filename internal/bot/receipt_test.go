package bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"machrent/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceipt(t *testing.T) {
	f := newFixture(t)
	f.cfg.Exports.Path = t.TempDir()

	receipt := models.Receipt{
		RentalID:    "R-9",
		Flow:        "staff",
		ChatID:      managerID,
		MachineName: "Excavator X200",
		UnitID:      "U-1",
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Days:        9,
		DailyRate:   1000,
		TotalPrice:  9000,
	}
	require.NoError(t, f.bot.SendReceipt(context.Background(), receipt))

	require.Len(t, f.tg.sentMessages, 1)
	doc, ok := f.tg.sentMessages[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, managerID, doc.ChatID)
	assert.Contains(t, doc.Caption, "R-9")
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.NotEmpty(t, file.Bytes)

	_, err := os.Stat(filepath.Join(f.cfg.Exports.Path, file.Name))
	assert.NoError(t, err)
}

func TestSendReceiptWithoutChat(t *testing.T) {
	f := newFixture(t)
	err := f.bot.SendReceipt(context.Background(), models.Receipt{RentalID: "R-9"})
	assert.Error(t, err)
	assert.Empty(t, f.tg.sentMessages)
}
