package pipeline

import "fmt"

// User-facing texts. Replies never carry internal error detail.
const (
	MessageTooLong      = "❌ Пожалуйста, сформулируйте запрос короче."
	MessageWorking      = "🔎 Анализирую ваш запрос... Пожалуйста, подождите."
	MessageDataReady    = "📈 Данные получены. Готовлю аналитику и график..."
	MessageRenderFailed = "⚠️ Не удалось построить график по полученным данным."
)

const MessageNoData = "⚠️ По вашему запросу не найдено данных или произошла ошибка в БД.\n" +
	"Убедитесь, что вы запрашиваете акции технологических компаний за 2024 год, используя тикер (MSFT) или название (Microsoft)."

const Greeting = "👋 Привет! Я бот для анализа цен акций технологических компаний за 2024 год.\n" +
	"Спросите меня что-нибудь на естественном языке, например:\n" +
	"\"Покажи график цен Apple за март\"\n" +
	"\"Сделай анализ за первое полугодие Microsoft\""

func missingColumnMessage(column string) string {
	return fmt.Sprintf("⚠️ Ошибка: В полученных данных нет колонки '%s' для анализа.", column)
}
