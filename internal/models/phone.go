package models

// PhoneStatus represents the authorization state of a phone.
type PhoneStatus string

// Phone state machine states. BAN is the only hard terminal; FLOOD and FULL
// are soft and may be revisited by later authorization attempts.
const (
	PhoneStatusCreated PhoneStatus = "CREATED"
	PhoneStatusReady   PhoneStatus = "READY"
	PhoneStatusFlood   PhoneStatus = "FLOOD"
	PhoneStatusFull    PhoneStatus = "FULL"
	PhoneStatusBan     PhoneStatus = "BAN"
)

// Phone is one phone-number identity in the crawling pool.
//
// Invariant: Status == READY implies Session is non-nil and the session was
// authorized at transition time.
type Phone struct {
	ID         string
	Number     string
	InternalID *int64
	Session    *string
	Status     PhoneStatus
	StatusText *string
	Code       *string
	Takeout    bool
	ParserID   string

	// CodeHash is ephemeral login state. It never leaves the process.
	CodeHash string
}

func (p *Phone) TypeName() string     { return "telegram/phones" }
func (p *Phone) Identity() string     { return p.ID }
func (p *Phone) SetIdentity(id string) { p.ID = id }

func (p *Phone) Serialize() map[string]any {
	body := map[string]any{
		"number":     p.Number,
		"session":    p.Session,
		"status":     string(p.Status),
		"statusText": p.StatusText,
		"code":       p.Code,
		"takeout":    p.Takeout,
		"parser":     p.ParserID,
	}
	if p.InternalID != nil {
		body["internalId"] = *p.InternalID
	} else {
		body["internalId"] = nil
	}
	return body
}

func (p *Phone) Deserialize(data map[string]any) error {
	p.ID = asString(data, "id")
	p.Number = asString(data, "number")
	p.InternalID = asInt64Ptr(data, "internalId")
	p.Session = asStringPtr(data, "session")
	p.Status = PhoneStatus(asString(data, "status"))
	if p.Status == "" {
		p.Status = PhoneStatusCreated
	}
	p.StatusText = asStringPtr(data, "statusText")
	p.Code = asStringPtr(data, "code")
	p.Takeout = asBool(data, "takeout")
	p.ParserID = asString(data, "parser")
	return nil
}

func (p *Phone) UniqueConstraint() map[string]string {
	return map[string]string{"number": p.Number}
}

// IsReady reports whether the phone can serve as a crawling credential.
func (p *Phone) IsReady() bool {
	return p.Status == PhoneStatusReady && p.Session != nil
}
