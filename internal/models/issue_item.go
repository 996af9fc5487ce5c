package models

import "time"

// IssueItemType тип вложения задачи.
type IssueItemType string

const (
	IssueItemAttachment IssueItemType = "attachment"
	IssueItemWebLink    IssueItemType = "web_link"
	IssueItemLinkWork   IssueItemType = "link_work"
)

func (t IssueItemType) IsValid() bool {
	switch t {
	case IssueItemAttachment, IssueItemWebLink, IssueItemLinkWork:
		return true
	}
	return false
}

// IssueItem вложение или веб-ссылка, привязанная к задаче.
type IssueItem struct {
	ID        string        `json:"id,omitempty"`
	IssueID   string        `json:"issueId,omitempty"`
	Type      IssueItemType `json:"type"`
	Url       string        `json:"url,omitempty"`
	Text      string        `json:"text,omitempty"`
	PublicID  string        `json:"publicId,omitempty"`
	AssetID   string        `json:"assetId,omitempty"`
	CreatedAt time.Time     `json:"createdAt,omitzero"`
	UpdatedAt time.Time     `json:"updatedAt,omitzero"`
}

// WebLinkInput данные формы добавления веб-ссылки.
type WebLinkInput struct {
	Url  string `validate:"required"`
	Text string `validate:"required"`
}

// Item превращает форму в вложение для отправки на сервер.
func (in WebLinkInput) Item(issueID string) IssueItem {
	return IssueItem{
		IssueID: issueID,
		Type:    IssueItemWebLink,
		Url:     in.Url,
		Text:    in.Text,
	}
}
