package telegram

import "github.com/gotd/td/tg"

// Telegram's raw ids live in three separate namespaces. The signed peer-id
// encoding folds them into one integer space: users keep their id, basic
// chats are negated, channels get a -1e12 offset. The backend stores only
// the signed form.

const channelOffset = int64(1000000000000)

// SignedID encodes a raw id of the given kind into the signed peer id.
func SignedID(kind PeerKind, raw int64) int64 {
	switch kind {
	case PeerChat:
		return -raw
	case PeerChannel:
		return -(channelOffset + raw)
	default:
		return raw
	}
}

// SignedPeerID encodes a tg.PeerClass into the signed peer id.
func SignedPeerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return SignedID(PeerChat, p.ChatID)
	case *tg.PeerChannel:
		return SignedID(PeerChannel, p.ChannelID)
	}
	return 0
}

// RawID decodes a signed peer id back into (kind, raw id).
func RawID(signed int64) (PeerKind, int64) {
	switch {
	case signed < -channelOffset:
		return PeerChannel, -signed - channelOffset
	case signed < 0:
		return PeerChat, -signed
	default:
		return PeerUser, signed
	}
}
