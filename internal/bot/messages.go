package bot

const (
	msgWelcome         = "Добро пожаловать в прокат спецтехники! Выберите технику для аренды:"
	msgCatalogEmpty    = "Каталог пуст. Укажите модель вручную: /rent <id модели>"
	msgRentUsage       = "Укажите модель техники: /rent <id модели>"
	msgBookUsage       = "Укажите модель техники: /book <id модели>"
	msgStaffOnly       = "⛔ Оформление аренды на клиента доступно только сотрудникам."
	msgUnknownCommand  = "Неизвестная команда. Доступно: /start, /rent, /book, /status, /cancel"
	msgUseButtons      = "Пожалуйста, воспользуйтесь кнопками или начните заново: /start"
	msgNoSession       = "Нет активного оформления. Начните заново: /start"
	msgSessionExpired  = "⌛ Сессия оформления истекла. Начните заново: /start"
	msgCancelled       = "❌ Оформление отменено."
	msgAborted         = "Оформление прервано, черновик удалён."
	msgRateLimited     = "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного."
	msgTryLater        = "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже."
	msgBadPeriodFormat = "⚠️ Не удалось разобрать период. Формат: ГГГГ-ММ-ДД ГГГГ-ММ-ДД, например 2025-07-01 2025-07-10"
	msgAskEmail        = "👤 Введите email клиента:"
	msgPickLocation    = "📍 Выберите площадку:"
	msgPickUnit        = "🔧 Выберите единицу техники:"
	msgNoUnits         = "На этой площадке нет свободной техники. Выберите другую площадку."
	msgNoLocations     = "Эта модель сейчас не доступна ни на одной площадке."
	msgReceiptFollows  = "Квитанция придёт отдельным сообщением."

	btnNext    = "Далее ➡️"
	btnBack    = "⬅️ Назад"
	btnCancel  = "❌ Отмена"
	btnSubmit  = "✅ Подтвердить аренду"
	btnRent    = "🚜 %s"
	btnBookFor = "👷 %s на клиента"
)

const (
	cbRent     = "rent:"
	cbBook     = "book:"
	cbLocation = "loc:"
	cbUnit     = "unit:"
	cbNext     = "nav:next"
	cbBack     = "nav:back"
	cbSubmit   = "submit"
	cbCancel   = "cancel"
)
