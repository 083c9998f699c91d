package models

import "time"

// Message is one chat message, unique per (internalId, chat).
//
// ReplyToID may reference a message that has not been scraped yet; the
// scraper inserts a stub row for it first and the save protocol reconciles
// the stub when the real message arrives.
type Message struct {
	ID                string
	InternalID        int64
	ChatID            string
	Text              *string
	MemberID          *string
	ReplyToID         *string
	ForwardedFromID   *int64
	ForwardedFromName *string
	GroupedID         *int64
	IsPinned          bool
	Date              *time.Time
}

func (m *Message) TypeName() string      { return "telegram/messages" }
func (m *Message) Identity() string      { return m.ID }
func (m *Message) SetIdentity(id string) { m.ID = id }

func (m *Message) Serialize() map[string]any {
	body := map[string]any{
		"internalId":        m.InternalID,
		"chat":              m.ChatID,
		"text":              m.Text,
		"member":            m.MemberID,
		"replyTo":           m.ReplyToID,
		"forwardedFromName": m.ForwardedFromName,
		"isPinned":          m.IsPinned,
	}
	if m.ForwardedFromID != nil {
		body["forwardedFromId"] = *m.ForwardedFromID
	} else {
		body["forwardedFromId"] = nil
	}
	if m.GroupedID != nil {
		body["groupedId"] = *m.GroupedID
	} else {
		body["groupedId"] = nil
	}
	putTime(body, "date", m.Date)
	return body
}

func (m *Message) Deserialize(data map[string]any) error {
	m.ID = asString(data, "id")
	m.InternalID = asInt64(data, "internalId")
	m.ChatID = asString(data, "chat")
	m.Text = asStringPtr(data, "text")
	m.MemberID = asStringPtr(data, "member")
	m.ReplyToID = asStringPtr(data, "replyTo")
	m.ForwardedFromID = asInt64Ptr(data, "forwardedFromId")
	m.ForwardedFromName = asStringPtr(data, "forwardedFromName")
	m.GroupedID = asInt64Ptr(data, "groupedId")
	m.IsPinned = asBool(data, "isPinned")
	m.Date = asTimePtr(data, "date")
	return nil
}

func (m *Message) UniqueConstraint() map[string]string {
	return map[string]string{"internalId": formatInt64(m.InternalID), "chat": m.ChatID}
}
