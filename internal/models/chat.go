package models

// ChatStatus represents the acquisition state of a chat.
type ChatStatus string

// Chat states. FAILED is a property of the chat itself (dead link, private),
// never of any particular phone.
const (
	ChatStatusCreated    ChatStatus = "CREATED"
	ChatStatusAvailable  ChatStatus = "AVAILABLE"
	ChatStatusMonitoring ChatStatus = "MONITORING"
	ChatStatusFailed     ChatStatus = "FAILED"
)

// Chat is a telegram chat or channel under crawl.
//
// Invariant: Status == AVAILABLE implies InternalID is set, except for
// invite-only chats not yet joined, where StatusText carries the exception.
type Chat struct {
	ID            string
	Link          string
	InternalID    *int64
	Title         *string
	Status        ChatStatus
	StatusText    *string
	TotalMembers  *int
	TotalMessages *int
	ParserID      string
}

func (c *Chat) TypeName() string      { return "telegram/chats" }
func (c *Chat) Identity() string      { return c.ID }
func (c *Chat) SetIdentity(id string) { c.ID = id }

func (c *Chat) Serialize() map[string]any {
	body := map[string]any{
		"link":          c.Link,
		"title":         c.Title,
		"status":        string(c.Status),
		"statusText":    c.StatusText,
		"totalMembers":  c.TotalMembers,
		"totalMessages": c.TotalMessages,
		"parser":        c.ParserID,
	}
	if c.InternalID != nil {
		body["internalId"] = *c.InternalID
	} else {
		body["internalId"] = nil
	}
	return body
}

func (c *Chat) Deserialize(data map[string]any) error {
	c.ID = asString(data, "id")
	c.Link = asString(data, "link")
	c.InternalID = asInt64Ptr(data, "internalId")
	c.Title = asStringPtr(data, "title")
	c.Status = ChatStatus(asString(data, "status"))
	if c.Status == "" {
		c.Status = ChatStatusCreated
	}
	c.StatusText = asStringPtr(data, "statusText")
	c.TotalMembers = asIntPtr(data, "totalMembers")
	c.TotalMessages = asIntPtr(data, "totalMessages")
	c.ParserID = asString(data, "parser")
	return nil
}

func (c *Chat) UniqueConstraint() map[string]string {
	return map[string]string{"link": c.Link}
}

// ChatPhone is the join record wiring one phone to one chat as a scraping
// credential. IsUsing flips false on soft revocation; the row is never
// deleted by the crawler.
type ChatPhone struct {
	ID      string
	ChatID  string
	PhoneID string
	IsUsing bool
}

func (cp *ChatPhone) TypeName() string      { return "telegram/chat-phones" }
func (cp *ChatPhone) Identity() string      { return cp.ID }
func (cp *ChatPhone) SetIdentity(id string) { cp.ID = id }

func (cp *ChatPhone) Serialize() map[string]any {
	return map[string]any{
		"chat":    cp.ChatID,
		"phone":   cp.PhoneID,
		"isUsing": cp.IsUsing,
	}
}

func (cp *ChatPhone) Deserialize(data map[string]any) error {
	cp.ID = asString(data, "id")
	cp.ChatID = asString(data, "chat")
	cp.PhoneID = asString(data, "phone")
	cp.IsUsing = asBool(data, "isUsing")
	return nil
}

func (cp *ChatPhone) UniqueConstraint() map[string]string {
	return map[string]string{"chat": cp.ChatID, "phone": cp.PhoneID}
}
