package telegram

import (
	"errors"
	"time"

	"github.com/gotd/td/tgerr"
)

// ErrUnauthorized signals that a phone's session is not (or no longer)
// authorized. It is a local signal meaning "try another phone", not a
// protocol-level ban.
var ErrUnauthorized = errors.New("telegram session unauthorized")

// FloodWait extracts the server-specified backoff from a FLOOD_WAIT error.
func FloodWait(err error) (time.Duration, bool) {
	return tgerr.AsFloodWait(err)
}

// TakeoutInitDelay extracts the delay from a TAKEOUT_INIT_DELAY error.
func TakeoutInitDelay(err error) (time.Duration, bool) {
	var rpc *tgerr.Error
	if errors.As(err, &rpc) && rpc.Type == "TAKEOUT_INIT_DELAY" {
		return time.Duration(rpc.Argument) * time.Second, true
	}
	return 0, false
}

// IsTakeoutInvalid reports a dead takeout session.
func IsTakeoutInvalid(err error) bool {
	return tgerr.Is(err, "TAKEOUT_INVALID", "TAKEOUT_REQUIRED")
}

// IsPhoneBanned reports errors that permanently disqualify a phone.
func IsPhoneBanned(err error) bool {
	return tgerr.Is(err,
		"PHONE_NUMBER_BANNED",
		"USER_DEACTIVATED",
		"USER_DEACTIVATED_BAN",
		"AUTH_KEY_UNREGISTERED",
	)
}

// IsCodeRejected reports the invalid/expired/empty code errors that keep the
// phone in the awaiting-code loop.
func IsCodeRejected(err error) bool {
	return tgerr.Is(err,
		"PHONE_CODE_INVALID",
		"PHONE_CODE_EXPIRED",
		"PHONE_CODE_EMPTY",
	)
}

// IsChannelsFull reports the per-account join ceiling.
func IsChannelsFull(err error) bool {
	return tgerr.Is(err, "CHANNELS_TOO_MUCH", "USER_CHANNELS_TOO_MUCH")
}

// IsChatUnavailable reports definitive chat-scoped failures: the chat itself
// is bad, no phone will ever resolve it.
func IsChatUnavailable(err error) bool {
	return tgerr.Is(err,
		"USERNAME_NOT_OCCUPIED",
		"USERNAME_INVALID",
		"INVITE_HASH_EXPIRED",
		"INVITE_HASH_INVALID",
		"INVITE_REQUEST_SENT",
		"CHANNEL_PRIVATE",
		"CHAT_INVALID",
		"PEER_ID_INVALID",
	)
}

// IsAlreadyParticipant reports a join attempt on a chat the phone is in.
func IsAlreadyParticipant(err error) bool {
	return tgerr.Is(err, "USER_ALREADY_PARTICIPANT")
}
