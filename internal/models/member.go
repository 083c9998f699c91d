package models

import "time"

// Member is a telegram user profile, globally unique by its telegram id.
type Member struct {
	ID         string
	InternalID int64
	Username   *string
	FirstName  *string
	LastName   *string
	Phone      *string
	About      *string
}

func (m *Member) TypeName() string      { return "telegram/members" }
func (m *Member) Identity() string      { return m.ID }
func (m *Member) SetIdentity(id string) { m.ID = id }

func (m *Member) Serialize() map[string]any {
	return map[string]any{
		"internalId": m.InternalID,
		"username":   m.Username,
		"firstName":  m.FirstName,
		"lastName":   m.LastName,
		"phone":      m.Phone,
		"about":      m.About,
	}
}

func (m *Member) Deserialize(data map[string]any) error {
	m.ID = asString(data, "id")
	m.InternalID = asInt64(data, "internalId")
	m.Username = asStringPtr(data, "username")
	m.FirstName = asStringPtr(data, "firstName")
	m.LastName = asStringPtr(data, "lastName")
	m.Phone = asStringPtr(data, "phone")
	m.About = asStringPtr(data, "about")
	return nil
}

func (m *Member) UniqueConstraint() map[string]string {
	return map[string]string{"internalId": formatInt64(m.InternalID)}
}

// ChatMember binds a member to a chat. Date is the join date when telegram
// reports one; IsLeft marks members seen leaving during monitoring.
type ChatMember struct {
	ID       string
	ChatID   string
	MemberID string
	Date     *time.Time
	IsLeft   bool
}

func (cm *ChatMember) TypeName() string      { return "telegram/chat-members" }
func (cm *ChatMember) Identity() string      { return cm.ID }
func (cm *ChatMember) SetIdentity(id string) { cm.ID = id }

func (cm *ChatMember) Serialize() map[string]any {
	body := map[string]any{
		"chat":   cm.ChatID,
		"member": cm.MemberID,
		"isLeft": cm.IsLeft,
	}
	putTime(body, "date", cm.Date)
	return body
}

func (cm *ChatMember) Deserialize(data map[string]any) error {
	cm.ID = asString(data, "id")
	cm.ChatID = asString(data, "chat")
	cm.MemberID = asString(data, "member")
	cm.Date = asTimePtr(data, "date")
	cm.IsLeft = asBool(data, "isLeft")
	return nil
}

func (cm *ChatMember) UniqueConstraint() map[string]string {
	return map[string]string{"chat": cm.ChatID, "member": cm.MemberID}
}

// ChatMemberRole records the admin/creator/member classification with the
// locale-specific display title telegram reports for it.
type ChatMemberRole struct {
	ID           string
	ChatMemberID string
	Title        string
	Code         string
}

func (r *ChatMemberRole) TypeName() string      { return "telegram/chat-member-roles" }
func (r *ChatMemberRole) Identity() string      { return r.ID }
func (r *ChatMemberRole) SetIdentity(id string) { r.ID = id }

func (r *ChatMemberRole) Serialize() map[string]any {
	return map[string]any{
		"chatMember": r.ChatMemberID,
		"title":      r.Title,
		"code":       r.Code,
	}
}

func (r *ChatMemberRole) Deserialize(data map[string]any) error {
	r.ID = asString(data, "id")
	r.ChatMemberID = asString(data, "chatMember")
	r.Title = asString(data, "title")
	r.Code = asString(data, "code")
	return nil
}

func (r *ChatMemberRole) UniqueConstraint() map[string]string {
	return map[string]string{"chatMember": r.ChatMemberID, "title": r.Title, "code": r.Code}
}
