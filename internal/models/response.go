package models

import "encoding/json"

// Envelope представляет ответ API: полезная нагрузка в data, текст ошибки в error.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// HasData сообщает, что сервер вернул данные. null считается отсутствием данных.
func (e Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// IssueFilter фильтр запроса задач для доски.
type IssueFilter struct {
	Search string `json:"search,omitempty"`
	UserID string `json:"userId,omitempty"`
}
