package model

import (
	"encoding/json"
	"time"
)

// Scratch хранит временные значения текущего флоу в сериализованном виде,
// чтобы сессия одинаково переживала любое хранилище.
type Scratch map[string]json.RawMessage

// Session - состояние пользователя
type Session struct {
	UserID         int64     `json:"user_id"`
	Authenticated  bool      `json:"authenticated"`
	Token          string    `json:"token,omitempty"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	Email          string    `json:"email,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Step           Step      `json:"step"`
	Scratch        Scratch   `json:"scratch,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSession возвращает сессию по умолчанию
func NewSession(userID int64) *Session {
	return &Session{
		UserID:  userID,
		Scratch: Scratch{},
	}
}

// InFlow сообщает, что следующее текстовое сообщение принадлежит движку флоу
func (s *Session) InFlow() bool {
	return !s.Step.IsZero()
}

// SetField сериализует значение в scratch
func (s *Session) SetField(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.Scratch == nil {
		s.Scratch = Scratch{}
	}
	s.Scratch[key] = data
	return nil
}

// Field читает значение из scratch в dst. false - если ключа нет.
func (s *Session) Field(key string, dst any) (bool, error) {
	raw, ok := s.Scratch[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, err
	}
	return true, nil
}

// HasField проверяет наличие ключа
func (s *Session) HasField(key string) bool {
	_, ok := s.Scratch[key]
	return ok
}

// ClearFields удаляет указанные ключи, без аргументов - весь scratch
func (s *Session) ClearFields(keys ...string) {
	if len(keys) == 0 {
		s.Scratch = Scratch{}
		return
	}
	for _, k := range keys {
		delete(s.Scratch, k)
	}
}

// Reset завершает флоу: шаг сбрасывается, scratch очищается одной операцией
func (s *Session) Reset() {
	s.Step = Step{}
	s.Scratch = Scratch{}
}

// Logout возвращает сессию в неавторизованное состояние
func (s *Session) Logout() {
	userID := s.UserID
	*s = *NewSession(userID)
}

// Login заполняет данные авторизации
func (s *Session) Login(auth *AuthResult) {
	s.Authenticated = true
	s.Token = auth.AccessToken
	s.RefreshToken = auth.RefreshToken
	s.Email = auth.User.Email
	s.OrganizationID = auth.User.OrganizationID
}
