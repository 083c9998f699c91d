package telegram

import "time"

// PeerKind distinguishes the telegram id namespaces.
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// ChatInfo is a resolved chat or channel.
//
// InternalID carries the signed peer-id encoding. It is zero for invite-only
// chats that have not been joined yet.
type ChatInfo struct {
	InternalID    int64
	RawID         int64
	AccessHash    int64
	Kind          PeerKind
	Title         string
	Username      string
	InviteHash    string
	Joined        bool
	MembersCount  int
	MessagesCount int
	Photo         *PhotoRef
}

// PhotoRef identifies a downloadable profile photo.
type PhotoRef struct {
	PhotoID int64
	// peer owning the photo, needed to build the download location
	PeerID     int64
	AccessHash int64
	Kind       PeerKind
}

// MemberInfo is one chat participant.
type MemberInfo struct {
	UserID     int64
	AccessHash int64
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Role       string // creator, admin or member
	RoleTitle  string // locale-specific rank shown in the chat
	JoinDate   *time.Time
	Left       bool
	Photo      *PhotoRef
}

// MessageInfo is one chat message.
type MessageInfo struct {
	ID          int
	Text        string
	Date        time.Time
	SenderID    *int64
	ReplyToID   *int
	Pinned      bool
	GroupedID   *int64
	FwdFromID   *int64
	FwdFromName *string
	Replies     int
	Media       *MediaRef
}

// MediaRef identifies a downloadable message attachment.
type MediaRef struct {
	DocumentID    int64
	AccessHash    int64
	FileReference []byte
	Size          int64
	IsPhoto       bool
	ThumbSize     string
}

// EventKind classifies live updates seen while monitoring.
type EventKind string

const (
	EventNewMessage  EventKind = "new_message"
	EventUserJoined  EventKind = "user_joined"
	EventUserLeft    EventKind = "user_left"
)

// Event is one live update delivered to a monitoring worker.
type Event struct {
	Kind    EventKind
	PeerID  int64 // raw id of the channel or basic group the event belongs to
	Message *MessageInfo
	UserID  int64
}
