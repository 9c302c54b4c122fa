package bot

import (
	"context"
	"fmt"

	"machrent/internal/export"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendReceipt delivers the rental receipt workbook to the chat the rental was
// made from. An archive copy is kept under the exports path when one is set.
func (b *Bot) SendReceipt(ctx context.Context, receipt models.Receipt) error {
	if receipt.ChatID == 0 {
		return errors.Newf("receipt %s has no chat", receipt.RentalID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := export.RenderReceipt(receipt)
	if err != nil {
		return errors.Wrap(err, "render receipt")
	}

	doc := tgbotapi.NewDocument(receipt.ChatID, tgbotapi.FileBytes{
		Name:  export.ReceiptFileName(receipt),
		Bytes: data,
	})
	doc.Caption = fmt.Sprintf("🧾 Квитанция по заявке %s", receipt.RentalID)
	if _, err := b.tg.Send(doc); err != nil {
		return errors.Wrapf(err, "send receipt %s", receipt.RentalID)
	}
	if b.metrics != nil {
		b.metrics.ReceiptsSent.Inc()
	}

	if dir := b.config.Exports.Path; dir != "" {
		path, err := export.SaveReceipt(dir, receipt)
		if err != nil {
			b.logger.Warn().Err(err).Str("rental_id", receipt.RentalID).Msg("Failed to archive receipt")
		} else {
			b.logger.Info().Str("path", path).Str("rental_id", receipt.RentalID).Msg("Receipt archived")
		}
	}
	return nil
}
