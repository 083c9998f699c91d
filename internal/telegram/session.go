package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

// inputPeer builds the RPC peer for a resolved chat.
func (c *ChatInfo) inputPeer() tg.InputPeerClass {
	switch c.Kind {
	case PeerChannel:
		return &tg.InputPeerChannel{ChannelID: c.RawID, AccessHash: c.AccessHash}
	case PeerChat:
		return &tg.InputPeerChat{ChatID: c.RawID}
	default:
		return &tg.InputPeerUser{UserID: c.RawID, AccessHash: c.AccessHash}
	}
}

func (c *ChatInfo) inputChannel() *tg.InputChannel {
	return &tg.InputChannel{ChannelID: c.RawID, AccessHash: c.AccessHash}
}

// Resolve resolves a chat link or public username to a live entity. For an
// invite link of a chat this phone has not joined, the returned info has
// Joined == false, no InternalID and whatever the invite payload reports.
func (s *Session) Resolve(ctx context.Context, link string) (*ChatInfo, error) {
	parsed := ParseChatLink(link)

	if parsed.Kind == LinkInvite {
		return s.resolveInvite(ctx, parsed.Value)
	}
	return s.resolveUsername(ctx, parsed.Value)
}

func (s *Session) resolveUsername(ctx context.Context, username string) (*ChatInfo, error) {
	resolved, err := s.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	for _, chat := range resolved.Chats {
		if info := chatInfoFromClass(chat); info != nil {
			info.Username = username
			info.Joined = true
			if err := s.fillCounts(ctx, info); err != nil {
				s.log.Debug().Err(err).Str("username", username).Msg("telegram: count queries failed")
			}
			return info, nil
		}
	}
	return nil, fmt.Errorf("resolve username %s: no chat in response", username)
}

func (s *Session) resolveInvite(ctx context.Context, hash string) (*ChatInfo, error) {
	invite, err := s.api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check invite: %w", err)
	}

	switch v := invite.(type) {
	case *tg.ChatInviteAlready:
		info := chatInfoFromClass(v.Chat)
		if info == nil {
			return nil, fmt.Errorf("check invite: unexpected chat type %T", v.Chat)
		}
		info.InviteHash = hash
		info.Joined = true
		if err := s.fillCounts(ctx, info); err != nil {
			s.log.Debug().Err(err).Msg("telegram: count queries failed")
		}
		return info, nil
	case *tg.ChatInvite:
		// a bare invite: the chat exists but this phone is not a member,
		// so there is no id to record yet
		return &ChatInfo{
			Title:        v.Title,
			InviteHash:   hash,
			Joined:       false,
			MembersCount: v.ParticipantsCount,
		}, nil
	case *tg.ChatInvitePeek:
		info := chatInfoFromClass(v.Chat)
		if info == nil {
			return nil, fmt.Errorf("check invite: unexpected chat type %T", v.Chat)
		}
		info.InviteHash = hash
		return info, nil
	}
	return nil, fmt.Errorf("check invite: unexpected response %T", invite)
}

// Join makes this phone a member of the chat.
func (s *Session) Join(ctx context.Context, link string) (*ChatInfo, error) {
	parsed := ParseChatLink(link)

	if parsed.Kind == LinkInvite {
		updates, err := s.api.MessagesImportChatInvite(ctx, parsed.Value)
		if err != nil {
			return nil, fmt.Errorf("import invite: %w", err)
		}
		info := chatInfoFromUpdates(updates)
		if info == nil {
			return nil, fmt.Errorf("import invite: no chat in updates")
		}
		info.InviteHash = parsed.Value
		info.Joined = true
		if err := s.fillCounts(ctx, info); err != nil {
			s.log.Debug().Err(err).Msg("telegram: count queries failed")
		}
		return info, nil
	}

	info, err := s.resolveUsername(ctx, parsed.Value)
	if err != nil {
		return nil, err
	}
	if info.Kind != PeerChannel {
		return nil, fmt.Errorf("join: %s is not a channel", parsed.Value)
	}
	if _, err := s.api.ChannelsJoinChannel(ctx, info.inputChannel()); err != nil {
		if !IsAlreadyParticipant(err) {
			return nil, fmt.Errorf("join channel: %w", err)
		}
	}
	info.Joined = true
	return info, nil
}

// fillCounts populates member and message totals.
func (s *Session) fillCounts(ctx context.Context, info *ChatInfo) error {
	if info.Kind == PeerChannel {
		full, err := s.api.ChannelsGetFullChannel(ctx, info.inputChannel())
		if err != nil {
			return fmt.Errorf("get full channel: %w", err)
		}
		if cf, ok := full.FullChat.(*tg.ChannelFull); ok {
			info.MembersCount = cf.ParticipantsCount
		}
	}

	history, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  info.inputPeer(),
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("get history count: %w", err)
	}
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		info.MessagesCount = h.Count
	case *tg.MessagesMessagesSlice:
		info.MessagesCount = h.Count
	case *tg.MessagesMessages:
		info.MessagesCount = len(h.Messages)
	}
	return nil
}

// History fetches up to limit messages older than offsetID but newer than
// minID, in descending id order. offsetID 0 starts from the newest message.
func (s *Session) History(ctx context.Context, chat *ChatInfo, offsetID, minID, limit int) ([]MessageInfo, error) {
	if limit > 100 {
		limit = 100 // telegram api ceiling
	}

	history, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     chat.inputPeer(),
		OffsetID: offsetID,
		MinID:    minID,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return extractMessages(history), nil
}

// Replies fetches up to limit replies in the thread rooted at msgID.
func (s *Session) Replies(ctx context.Context, chat *ChatInfo, msgID, offsetID, limit int) ([]MessageInfo, error) {
	if limit > 100 {
		limit = 100
	}

	replies, err := s.api.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
		Peer:     chat.inputPeer(),
		MsgID:    msgID,
		OffsetID: offsetID,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get replies: %w", err)
	}
	return extractMessages(replies), nil
}

// Participants fetches one page of channel members matching the search
// prefix q. The returned total is telegram's count for this filter.
func (s *Session) Participants(ctx context.Context, chat *ChatInfo, q string, offset, limit int) ([]MemberInfo, int, error) {
	if chat.Kind != PeerChannel {
		return s.chatParticipants(ctx, chat)
	}

	result, err := s.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: chat.inputChannel(),
		Filter:  &tg.ChannelParticipantsSearch{Q: q},
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get participants: %w", err)
	}

	page, ok := result.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, 0, nil // ChannelsChannelParticipantsNotModified
	}

	users := indexUsers(page.Users)
	var out []MemberInfo
	for _, p := range page.Participants {
		if m := parseParticipant(p, users); m != nil {
			out = append(out, *m)
		}
	}
	return out, page.Count, nil
}

// chatParticipants handles basic (non-channel) groups, which expose the
// whole member list in one full-chat query.
func (s *Session) chatParticipants(ctx context.Context, chat *ChatInfo) ([]MemberInfo, int, error) {
	full, err := s.api.MessagesGetFullChat(ctx, chat.RawID)
	if err != nil {
		return nil, 0, fmt.Errorf("get full chat: %w", err)
	}

	cf, ok := full.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, 0, nil
	}
	participants, ok := cf.Participants.(*tg.ChatParticipants)
	if !ok {
		return nil, 0, nil
	}

	users := indexUsers(full.Users)
	var out []MemberInfo
	for _, p := range participants.Participants {
		m := MemberInfo{UserID: p.GetUserID(), Role: "member"}
		switch p.(type) {
		case *tg.ChatParticipantCreator:
			m.Role = "creator"
		case *tg.ChatParticipantAdmin:
			m.Role = "admin"
		}
		fillUser(&m, users)
		out = append(out, m)
	}
	return out, len(out), nil
}

// DialogsCount returns the total number of dialogs of this account. Phones
// at telegram's dialog ceiling cannot join more chats.
func (s *Session) DialogsCount(ctx context.Context) (int, error) {
	dialogs, err := s.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      1,
	})
	if err != nil {
		return 0, fmt.Errorf("get dialogs: %w", err)
	}

	switch d := dialogs.(type) {
	case *tg.MessagesDialogsSlice:
		return d.Count, nil
	case *tg.MessagesDialogs:
		return len(d.Dialogs), nil
	}
	return 0, nil
}

// downloadChunkSize is the upload.getFile part size; must be a power of two.
const downloadChunkSize = 64 * 1024

// DownloadProfilePhoto downloads a chat or user profile photo.
func (s *Session) DownloadProfilePhoto(ctx context.Context, ref *PhotoRef) ([]byte, error) {
	var peer tg.InputPeerClass
	switch ref.Kind {
	case PeerChannel:
		peer = &tg.InputPeerChannel{ChannelID: ref.PeerID, AccessHash: ref.AccessHash}
	case PeerChat:
		peer = &tg.InputPeerChat{ChatID: ref.PeerID}
	default:
		peer = &tg.InputPeerUser{UserID: ref.PeerID, AccessHash: ref.AccessHash}
	}

	return s.downloadLocation(ctx, &tg.InputPeerPhotoFileLocation{
		Peer:    peer,
		PhotoID: ref.PhotoID,
		Big:     true,
	})
}

// DownloadMedia downloads a message attachment.
func (s *Session) DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error) {
	var location tg.InputFileLocationClass
	if ref.IsPhoto {
		location = &tg.InputPhotoFileLocation{
			ID:            ref.DocumentID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
			ThumbSize:     ref.ThumbSize,
		}
	} else {
		location = &tg.InputDocumentFileLocation{
			ID:            ref.DocumentID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
		}
	}
	return s.downloadLocation(ctx, location)
}

func (s *Session) downloadLocation(ctx context.Context, location tg.InputFileLocationClass) ([]byte, error) {
	var out []byte
	for offset := int64(0); ; offset += downloadChunkSize {
		part, err := s.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: location,
			Offset:   offset,
			Limit:    downloadChunkSize,
		})
		if err != nil {
			return nil, fmt.Errorf("get file part at %d: %w", offset, err)
		}
		file, ok := part.(*tg.UploadFile)
		if !ok {
			return nil, fmt.Errorf("unexpected file part type %T", part)
		}
		out = append(out, file.Bytes...)
		if len(file.Bytes) < downloadChunkSize {
			return out, nil
		}
	}
}

// ---- conversions ----

func chatInfoFromClass(chat tg.ChatClass) *ChatInfo {
	switch v := chat.(type) {
	case *tg.Channel:
		info := &ChatInfo{
			RawID:      v.ID,
			AccessHash: v.AccessHash,
			Kind:       PeerChannel,
			Title:      v.Title,
			Username:   v.Username,
			InternalID: SignedID(PeerChannel, v.ID),
		}
		if photo, ok := v.Photo.(*tg.ChatPhoto); ok {
			info.Photo = &PhotoRef{
				PhotoID:    photo.PhotoID,
				PeerID:     v.ID,
				AccessHash: v.AccessHash,
				Kind:       PeerChannel,
			}
		}
		return info
	case *tg.Chat:
		info := &ChatInfo{
			RawID:        v.ID,
			Kind:         PeerChat,
			Title:        v.Title,
			InternalID:   SignedID(PeerChat, v.ID),
			MembersCount: v.ParticipantsCount,
		}
		if photo, ok := v.Photo.(*tg.ChatPhoto); ok {
			info.Photo = &PhotoRef{PhotoID: photo.PhotoID, PeerID: v.ID, Kind: PeerChat}
		}
		return info
	}
	return nil
}

func chatInfoFromUpdates(u tg.UpdatesClass) *ChatInfo {
	var chats []tg.ChatClass
	switch v := u.(type) {
	case *tg.Updates:
		chats = v.Chats
	case *tg.UpdatesCombined:
		chats = v.Chats
	}
	for _, chat := range chats {
		if info := chatInfoFromClass(chat); info != nil {
			return info
		}
	}
	return nil
}

func extractMessages(history tg.MessagesMessagesClass) []MessageInfo {
	var raw []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	}

	var out []MessageInfo
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, parseMessage(msg))
	}
	return out
}

func parseMessage(msg *tg.Message) MessageInfo {
	info := MessageInfo{
		ID:     msg.ID,
		Text:   msg.Message,
		Date:   time.Unix(int64(msg.Date), 0),
		Pinned: msg.Pinned,
	}

	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		info.SenderID = &from.UserID
	}
	if header, ok := msg.ReplyTo.(*tg.MessageReplyHeader); ok {
		if id, ok := header.GetReplyToMsgID(); ok {
			info.ReplyToID = &id
		}
	}
	if grouped, ok := msg.GetGroupedID(); ok {
		info.GroupedID = &grouped
	}
	if replies, ok := msg.GetReplies(); ok {
		info.Replies = replies.Replies
	}
	if fwd, ok := msg.GetFwdFrom(); ok {
		if peer, ok := fwd.GetFromID(); ok {
			id := SignedPeerID(peer)
			info.FwdFromID = &id
		}
		if name, ok := fwd.GetFromName(); ok {
			info.FwdFromName = &name
		}
	}
	info.Media = parseMedia(msg.Media)
	return info
}

func parseMedia(media tg.MessageMediaClass) *MediaRef {
	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		ref := &MediaRef{
			DocumentID:    photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			IsPhoto:       true,
		}
		// largest available size type
		for _, size := range photo.Sizes {
			if s, ok := size.(*tg.PhotoSize); ok {
				ref.ThumbSize = s.Type
				ref.Size = int64(s.Size)
			}
		}
		return ref
	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &MediaRef{
			DocumentID:    doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
			Size:          doc.Size,
		}
	}
	return nil
}

func indexUsers(users []tg.UserClass) map[int64]*tg.User {
	out := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			out[user.ID] = user
		}
	}
	return out
}

func parseParticipant(p tg.ChannelParticipantClass, users map[int64]*tg.User) *MemberInfo {
	m := &MemberInfo{Role: "member"}

	switch v := p.(type) {
	case *tg.ChannelParticipant:
		m.UserID = v.UserID
		date := time.Unix(int64(v.Date), 0)
		m.JoinDate = &date
	case *tg.ChannelParticipantSelf:
		m.UserID = v.UserID
		date := time.Unix(int64(v.Date), 0)
		m.JoinDate = &date
	case *tg.ChannelParticipantCreator:
		m.UserID = v.UserID
		m.Role = "creator"
		m.RoleTitle = v.Rank
	case *tg.ChannelParticipantAdmin:
		m.UserID = v.UserID
		m.Role = "admin"
		m.RoleTitle = v.Rank
		date := time.Unix(int64(v.Date), 0)
		m.JoinDate = &date
	case *tg.ChannelParticipantLeft:
		if peer, ok := v.Peer.(*tg.PeerUser); ok {
			m.UserID = peer.UserID
		}
		m.Left = true
	default:
		return nil
	}

	if m.UserID == 0 {
		return nil
	}
	fillUser(m, users)
	return m
}

func fillUser(m *MemberInfo, users map[int64]*tg.User) {
	user, ok := users[m.UserID]
	if !ok {
		return
	}
	m.AccessHash = user.AccessHash
	m.Username = user.Username
	m.FirstName = user.FirstName
	m.LastName = user.LastName
	m.Phone = user.Phone
	if photo, ok := user.Photo.(*tg.UserProfilePhoto); ok {
		m.Photo = &PhotoRef{
			PhotoID:    photo.PhotoID,
			PeerID:     user.ID,
			AccessHash: user.AccessHash,
			Kind:       PeerUser,
		}
	}
}

// ResolveUser resolves a bare username to a user profile when possible.
// Returns (nil, nil) when the username belongs to a chat instead.
func (s *Session) ResolveUser(ctx context.Context, username string) (*MemberInfo, error) {
	resolved, err := s.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", username, err)
	}

	users := indexUsers(resolved.Users)
	if peer, ok := resolved.Peer.(*tg.PeerUser); ok {
		m := &MemberInfo{UserID: peer.UserID}
		fillUser(m, users)
		return m, nil
	}
	return nil, nil
}
