package formatting

// PluralizeLessons возвращает правильное склонение слова "занятие"
func PluralizeLessons(count int) string {
	if count%10 == 1 && count%100 != 11 {
		return "занятие"
	}
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "занятия"
	}
	return "занятий"
}

// PluralizeDays возвращает склонение слова "день" после "каждые N"
func PluralizeDays(count int) string {
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "дня"
	}
	return "дней"
}

// PluralizeWeeks возвращает склонение слова "неделя" после "каждые N"
func PluralizeWeeks(count int) string {
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "недели"
	}
	return "недель"
}

// PluralizeMonths возвращает склонение слова "месяц" после "каждые N"
func PluralizeMonths(count int) string {
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "месяца"
	}
	return "месяцев"
}
