package model

import "strings"

// BatchEntry - одна строка пакетной выплаты. Amount - введенная пользователем десятичная строка.
type BatchEntry struct {
	Email  string `json:"email"`
	Amount string `json:"amount"`
}

// BatchEntries - список с уникальностью по email
type BatchEntries []BatchEntry

// Index ищет запись по email без учета регистра, -1 если нет
func (b BatchEntries) Index(email string) int {
	for i, e := range b {
		if strings.EqualFold(e.Email, email) {
			return i
		}
	}
	return -1
}
