package models

import "time"

// Media records share one rule: Path stays nil until the chunked upload to
// the backend finishes, and a nil path is the trigger to re-attempt upload.

// ChatMedia is a chat profile photo.
type ChatMedia struct {
	ID         string
	ChatID     string
	InternalID int64
	Path       *string
	Date       *time.Time
}

func (m *ChatMedia) TypeName() string      { return "telegram/chat-medias" }
func (m *ChatMedia) Identity() string      { return m.ID }
func (m *ChatMedia) SetIdentity(id string) { m.ID = id }

func (m *ChatMedia) Serialize() map[string]any {
	body := map[string]any{
		"chat":       m.ChatID,
		"internalId": m.InternalID,
		"path":       m.Path,
	}
	putTime(body, "date", m.Date)
	return body
}

func (m *ChatMedia) Deserialize(data map[string]any) error {
	m.ID = asString(data, "id")
	m.ChatID = asString(data, "chat")
	m.InternalID = asInt64(data, "internalId")
	m.Path = asStringPtr(data, "path")
	m.Date = asTimePtr(data, "date")
	return nil
}

func (m *ChatMedia) UniqueConstraint() map[string]string {
	return map[string]string{"internalId": formatInt64(m.InternalID)}
}

// MemberMedia is a member profile photo.
type MemberMedia struct {
	ID         string
	MemberID   string
	InternalID int64
	Path       *string
	Date       *time.Time
}

func (m *MemberMedia) TypeName() string      { return "telegram/member-medias" }
func (m *MemberMedia) Identity() string      { return m.ID }
func (m *MemberMedia) SetIdentity(id string) { m.ID = id }

func (m *MemberMedia) Serialize() map[string]any {
	body := map[string]any{
		"member":     m.MemberID,
		"internalId": m.InternalID,
		"path":       m.Path,
	}
	putTime(body, "date", m.Date)
	return body
}

func (m *MemberMedia) Deserialize(data map[string]any) error {
	m.ID = asString(data, "id")
	m.MemberID = asString(data, "member")
	m.InternalID = asInt64(data, "internalId")
	m.Path = asStringPtr(data, "path")
	m.Date = asTimePtr(data, "date")
	return nil
}

func (m *MemberMedia) UniqueConstraint() map[string]string {
	return map[string]string{"internalId": formatInt64(m.InternalID)}
}

// MessageMedia is a document or photo attached to a message.
type MessageMedia struct {
	ID         string
	MessageID  string
	InternalID int64
	Path       *string
	Date       *time.Time
}

func (m *MessageMedia) TypeName() string      { return "telegram/message-medias" }
func (m *MessageMedia) Identity() string      { return m.ID }
func (m *MessageMedia) SetIdentity(id string) { m.ID = id }

func (m *MessageMedia) Serialize() map[string]any {
	body := map[string]any{
		"message":    m.MessageID,
		"internalId": m.InternalID,
		"path":       m.Path,
	}
	putTime(body, "date", m.Date)
	return body
}

func (m *MessageMedia) Deserialize(data map[string]any) error {
	m.ID = asString(data, "id")
	m.MessageID = asString(data, "message")
	m.InternalID = asInt64(data, "internalId")
	m.Path = asStringPtr(data, "path")
	m.Date = asTimePtr(data, "date")
	return nil
}

func (m *MessageMedia) UniqueConstraint() map[string]string {
	return map[string]string{"internalId": formatInt64(m.InternalID)}
}
