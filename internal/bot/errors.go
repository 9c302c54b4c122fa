package bot

import (
	"fmt"

	"machrent/internal/dates"
	"machrent/internal/domain"
	"machrent/internal/workflow"

	"github.com/cockroachdb/errors"
)

// userMessage turns a workflow error into chat text. Stale results are
// dropped silently.
func userMessage(err error) string {
	if err == nil || errors.Is(err, domain.ErrStaleResult) {
		return ""
	}

	if ov, ok := workflow.IsOverlap(err); ok {
		text := fmt.Sprintf("⚠️ Период %s – %s пересекается с существующей арендой с %s по %s. Выберите другие даты.",
			dates.Format(ov.RequestedStart), dates.Format(ov.RequestedEnd),
			dates.Format(ov.ConflictStart), dates.Format(ov.ConflictEnd))
		if ov.Message != "" {
			text += "\n" + ov.Message
		}
		return text
	}

	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		return "⚠️ Некорректный email. Проверьте адрес и попробуйте ещё раз."
	case errors.Is(err, domain.ErrNotFound):
		return "⚠️ Клиент с таким email не найден."
	case errors.Is(err, domain.ErrForbidden):
		return "⛔ Недостаточно прав для этой операции."
	case errors.Is(err, domain.ErrDateInPast):
		return "⚠️ Нельзя бронировать на прошедшую дату."
	case errors.Is(err, domain.ErrEndBeforeStart):
		return "⚠️ Дата окончания раньше даты начала."
	case errors.Is(err, domain.ErrPeriodTooShort):
		return "⚠️ Срок аренды меньше минимального."
	case errors.Is(err, domain.ErrDateTooFar):
		return "⚠️ Вы не можете бронировать так далеко в будущем. Пожалуйста, выберите более раннюю дату."
	case errors.Is(err, domain.ErrInvalidPeriod):
		return "⚠️ Сервер отклонил выбранный период. Выберите другие даты."
	case errors.Is(err, domain.ErrConflict):
		return "⚠️ Эта техника уже забронирована на выбранный период. Вернитесь назад и выберите другие даты."
	case errors.Is(err, domain.ErrInvalidPrice):
		return "⚠️ Сервер не принял расчёт стоимости. Начните оформление заново."
	case errors.Is(err, domain.ErrNoMachine):
		return "⚠️ Такой техники нет в каталоге."
	case errors.Is(err, domain.ErrUnknownLocation):
		return "⚠️ Эта площадка недоступна для выбранной техники."
	case errors.Is(err, domain.ErrUnknownUnit):
		return "⚠️ Эта единица техники недоступна на выбранной площадке."
	case errors.Is(err, domain.ErrIncompleteDraft):
		return "⚠️ Заполнены не все данные аренды."
	case errors.Is(err, domain.ErrBusy):
		return "⏳ Запрос уже обрабатывается, подождите."
	case errors.Is(err, domain.ErrCannotAdvance):
		return "⚠️ Сначала завершите текущий шаг."
	case errors.Is(err, domain.ErrWrongStep), errors.Is(err, domain.ErrCustomerFrozen), errors.Is(err, domain.ErrLastStep):
		return "⚠️ Это действие сейчас недоступно."
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrSessionNotFound):
		return msgNoSession
	case errors.Is(err, domain.ErrTransportFailure):
		return "❌ Сервер аренды недоступен. Попробуйте ещё раз чуть позже."
	}

	return msgTryLater
}
