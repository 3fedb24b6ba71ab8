package irc

import (
	"fmt"
	"strings"
)

// MessageKind identifies the inbound line types the bot reacts to.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindPing                // server liveness probe
	KindWelcome             // 001, authentication acknowledged
	KindNotice              // server notice (auth failures arrive here)
	KindJoin                // channel join acknowledgment
	KindPrivMsg             // chat text frame
)

func (k MessageKind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindWelcome:
		return "welcome"
	case KindNotice:
		return "notice"
	case KindJoin:
		return "join"
	case KindPrivMsg:
		return "privmsg"
	default:
		return "unknown"
	}
}

// Message is a parsed inbound IRC line.
type Message struct {
	Kind    MessageKind
	Tags    map[string]string
	Sender  string // nick portion of the prefix
	Channel string // without the leading '#'
	Body    string // trailing parameter
	Raw     string
}

// ParseLine parses a single raw IRC line. An optional leading @tag segment is
// decoded without failing the rest of the parse. Lines with no command yield
// an error; unrecognized commands parse successfully as KindUnknown so the
// read loop can ignore them without logging noise.
func ParseLine(raw string) (Message, error) {
	msg := Message{Raw: raw}
	rest := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(rest) == "" {
		return msg, fmt.Errorf("empty line")
	}

	// Optional tags segment: @key=value;key2=value2 <rest>
	if strings.HasPrefix(rest, "@") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return msg, fmt.Errorf("tags without command: %q", raw)
		}
		msg.Tags = parseTags(rest[1:sp])
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	// Optional prefix: :nick!user@host <rest>
	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return msg, fmt.Errorf("prefix without command: %q", raw)
		}
		prefix := rest[1:sp]
		if bang := strings.IndexByte(prefix, '!'); bang >= 0 {
			msg.Sender = prefix[:bang]
		} else {
			msg.Sender = prefix
		}
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	// Command, middle params, trailing.
	var trailing string
	if idx := strings.Index(rest, " :"); idx >= 0 {
		trailing = rest[idx+2:]
		rest = rest[:idx]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return msg, fmt.Errorf("missing command: %q", raw)
	}
	command := fields[0]
	params := fields[1:]
	msg.Body = trailing

	switch strings.ToUpper(command) {
	case "PING":
		msg.Kind = KindPing
		if msg.Body == "" && len(params) > 0 {
			msg.Body = params[0]
		}
	case "001":
		msg.Kind = KindWelcome
	case "NOTICE":
		msg.Kind = KindNotice
	case "JOIN":
		msg.Kind = KindJoin
		if len(params) > 0 {
			msg.Channel = strings.TrimPrefix(params[0], "#")
		} else {
			msg.Channel = strings.TrimPrefix(trailing, "#")
		}
	case "PRIVMSG":
		msg.Kind = KindPrivMsg
		if len(params) == 0 {
			return msg, fmt.Errorf("privmsg without channel: %q", raw)
		}
		msg.Channel = strings.TrimPrefix(params[0], "#")
		if msg.Sender == "" {
			return msg, fmt.Errorf("privmsg without sender prefix: %q", raw)
		}
	default:
		msg.Kind = KindUnknown
	}
	return msg, nil
}

// parseTags decodes the IRCv3 tag segment. Values use IRCv3 escaping
// (\: \s \\ \r \n); unknown escapes keep the following character.
func parseTags(seg string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(seg, ";") {
		if pair == "" {
			continue
		}
		key, val, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(val)
	}
	return tags
}

func unescapeTag(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
