package models

import "time"

// Preference сохранённая настройка представления (опции доски, сортировка и т.п.).
type Preference struct {
	ID        uint      `gorm:"column:id;primaryKey" db:"id"`
	Key       string    `gorm:"column:key;uniqueIndex;not null" db:"key"`
	Value     string    `gorm:"column:value;not null" db:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (Preference) TableName() string {
	return "preferences"
}

// IssueSnapshot последнее известное состояние коллекции задач для быстрого старта.
type IssueSnapshot struct {
	ID      uint      `gorm:"column:id;primaryKey" db:"id"`
	View    string    `gorm:"column:view;uniqueIndex;not null" db:"view"`
	Payload []byte    `gorm:"column:payload;not null" db:"payload"`
	Count   int       `gorm:"column:count;not null" db:"count"`
	SavedAt time.Time `gorm:"column:saved_at;autoUpdateTime" db:"saved_at"`
}

func (IssueSnapshot) TableName() string {
	return "issue_snapshots"
}
