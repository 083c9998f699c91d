package telegram

import (
	"regexp"
	"strings"
)

// LinkKind classifies an extracted telegram reference.
type LinkKind string

const (
	// LinkUsername is a bare public username, cheap to resolve eagerly.
	LinkUsername LinkKind = "username"
	// LinkInvite is an invite-hash join link. Resolving one costs the same
	// flood-controlled pipeline as any chat resolution, so scraped invite
	// hashes are recorded but never resolved eagerly.
	LinkInvite LinkKind = "invite"
)

// Link is one telegram reference found in message text.
type Link struct {
	Kind  LinkKind
	Value string // username without @, or the invite hash
}

// linkPattern recognizes t.me/..., @username and tg://resolve|join forms.
var linkPattern = regexp.MustCompile(
	`(?i)(?:` +
		`(?:https?://)?t\.me/(?:joinchat/|\+)?([a-zA-Z0-9_\-]+)(?:/\d+)?` +
		`|@([a-zA-Z][a-zA-Z0-9_]{3,31})` +
		`|tg://resolve\?domain=([a-zA-Z0-9_]+)` +
		`|tg://join\?invite=([a-zA-Z0-9_\-]+)` +
		`)`)

var invitePrefix = regexp.MustCompile(`(?i)(?:https?://)?t\.me/(joinchat/|\+)`)

// ExtractLinks scans text for telegram references and classifies each as a
// username or an invite hash. Duplicates are collapsed.
func ExtractLinks(text string) []Link {
	if text == "" {
		return nil
	}

	seen := make(map[Link]bool)
	var out []Link

	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		full := text[m[0]:m[1]]

		var link Link
		switch {
		case m[2] >= 0: // t.me path
			value := text[m[2]:m[3]]
			if invitePrefix.MatchString(full) {
				link = Link{Kind: LinkInvite, Value: value}
			} else {
				link = Link{Kind: LinkUsername, Value: strings.ToLower(value)}
			}
		case m[4] >= 0: // @username
			link = Link{Kind: LinkUsername, Value: strings.ToLower(text[m[4]:m[5]])}
		case m[6] >= 0: // tg://resolve
			link = Link{Kind: LinkUsername, Value: strings.ToLower(text[m[6]:m[7]])}
		case m[8] >= 0: // tg://join
			link = Link{Kind: LinkInvite, Value: text[m[8]:m[9]]}
		default:
			continue
		}

		if !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
	}

	return out
}

// ParseChatLink classifies a chat's configured link the same way: either a
// public username or an invite hash.
func ParseChatLink(link string) Link {
	trimmed := strings.TrimSpace(link)

	if links := ExtractLinks(trimmed); len(links) > 0 {
		return links[0]
	}

	// a bare username with no @ or t.me prefix
	return Link{Kind: LinkUsername, Value: strings.ToLower(strings.TrimPrefix(trimmed, "@"))}
}
