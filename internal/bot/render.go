package bot

import (
	"fmt"
	"strings"

	"machrent/internal/dates"
	"machrent/internal/workflow"
)

func stepHeader(v workflow.View) string {
	return fmt.Sprintf("Шаг %d из %d · %s", v.StepIndex+1, v.StepCount, v.Machine.Name)
}

func customerText(v workflow.View) string {
	var sb strings.Builder
	sb.WriteString(stepHeader(v))
	sb.WriteString("\n\n")
	if c := v.Draft.Customer; c != nil {
		sb.WriteString("👤 Клиент: ")
		if c.Name != "" {
			sb.WriteString(c.Name + " ")
		}
		sb.WriteString("<" + c.Email + ">")
		return sb.String()
	}
	sb.WriteString(msgAskEmail)
	return sb.String()
}

func locationText(v workflow.View) string {
	var sb strings.Builder
	sb.WriteString(stepHeader(v))
	sb.WriteString("\n\n")
	switch {
	case len(v.Locations) == 0:
		sb.WriteString(msgNoLocations)
	case v.Draft.LocationID == 0:
		sb.WriteString(msgPickLocation)
	case len(v.Units) == 0:
		sb.WriteString(msgNoUnits)
	case v.Draft.UnitID == "":
		sb.WriteString(msgPickUnit)
	default:
		sb.WriteString(fmt.Sprintf("Выбрана единица %s. Нажмите «Далее».", v.Draft.UnitID))
	}
	return sb.String()
}

func periodText(v workflow.View, minDays int) string {
	var sb strings.Builder
	sb.WriteString(stepHeader(v))
	sb.WriteString("\n\n")
	if v.Draft.HasPeriod() {
		sb.WriteString(fmt.Sprintf("📅 Период: %s – %s (%d дн.)\nНажмите «Далее» или отправьте другой период.",
			dates.Format(v.Draft.StartDate), dates.Format(v.Draft.EndDate), v.Draft.ComputedDays))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("📅 Отправьте даты начала и окончания аренды (минимум %d дн.):\nГГГГ-ММ-ДД ГГГГ-ММ-ДД", minDays))
	return sb.String()
}

func summaryText(s workflow.Summary) string {
	var sb strings.Builder
	sb.WriteString("📋 Проверьте данные аренды:\n\n")
	sb.WriteString(fmt.Sprintf("Техника: %s\n", s.Machine.Name))
	if s.Customer != nil {
		sb.WriteString(fmt.Sprintf("Клиент: %s\n", s.Customer.Email))
	}
	sb.WriteString(fmt.Sprintf("Площадка: %s\n", s.Location.Label()))
	sb.WriteString(fmt.Sprintf("Единица: %s\n", s.UnitID))
	sb.WriteString(fmt.Sprintf("Период: %s – %s\n", dates.Format(s.StartDate), dates.Format(s.EndDate)))
	sb.WriteString(fmt.Sprintf("Дней: %d × %d = %d\n", s.Days, s.DailyRate, s.TotalPrice))
	if s.Flow == workflow.FlowStaff {
		sb.WriteString("Оформление: в офисе\n")
	}
	return sb.String()
}
