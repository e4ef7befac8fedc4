// Package validate содержит чистые проверки пользовательского ввода: email и адреса кошельков.
// Функции не возвращают ошибок: невалидный ввод дает false или пустую подсказку.
package validate

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Популярные почтовые домены для поиска опечаток. Порядок важен: побеждает первое совпадение.
var commonDomains = []string{
	"gmail.com",
	"yahoo.com",
	"outlook.com",
	"hotmail.com",
	"aol.com",
	"icloud.com",
	"protonmail.com",
	"zoho.com",
	"yandex.com",
	"mail.com",
}

// IsValidEmail проверяет формат адреса: одна @, домен и TLD из букв
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Suggestion - результат проверки на опечатку в домене
type Suggestion struct {
	HasTypo    bool
	Original   string
	Suggestion string
}

// SuggestEmailCorrection ищет близкий популярный домен. Подсказка носит рекомендательный характер.
func SuggestEmailCorrection(s string) Suggestion {
	none := Suggestion{Original: s}
	if !IsValidEmail(s) {
		return none
	}

	at := strings.LastIndexByte(s, '@')
	user, domain := s[:at], strings.ToLower(s[at+1:])

	for _, d := range commonDomains {
		if domain == d {
			return none
		}
	}

	for _, d := range commonDomains {
		if editDistance(domain, d) <= 2 || prefixOverlap(domain, d) {
			return Suggestion{HasTypo: true, Original: s, Suggestion: user + "@" + d}
		}
	}
	return none
}

// prefixOverlap сравнивает первые три символа домена с началом популярного домена
func prefixOverlap(domain, common string) bool {
	if len(domain) < 3 || len(common) < 3 {
		return false
	}
	return strings.EqualFold(domain[:3], common[:3])
}

// editDistance - расстояние Левенштейна по байтам (домены ASCII)
func editDistance(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
