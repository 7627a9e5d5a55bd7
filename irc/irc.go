// Package irc classifies and parses raw Twitch IRC lines and builds the outbound frames a chat
// client needs (PASS, NICK, JOIN, PONG). Everything here is a pure function of its input and is
// safe to call from any number of goroutines.
package irc

import (
	"regexp"
	"strings"
)

// Kind is the classification of a single inbound line.
type Kind int

const (
	KindOther Kind = iota
	KindPing
	KindPrivateMessage
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPrivateMessage:
		return "privmsg"
	default:
		return "other"
	}
}

const (
	pingPrefix = "PING"
	lineEnding = "\r\n"
)

var (
	// privmsgPattern must anchor at the start of the line: a PRIVMSG token anywhere else does not count.
	privmsgPattern = regexp.MustCompile(`^:.*PRIVMSG.*:`)
	// user runs to the first '!', text is whatever follows the last ':'.
	privmsgFields = regexp.MustCompile(`^:([^!]*)!.*:(.*)`)
)

// PrivateMessage is the sender and body extracted from a PRIVMSG line.
type PrivateMessage struct {
	User string
	Text string
}

// Classify reports whether line is a keepalive, a chat message, or anything else.
func Classify(line string) Kind {
	switch {
	case IsPing(line):
		return KindPing
	case IsPrivateMessage(line):
		return KindPrivateMessage
	default:
		return KindOther
	}
}

// IsPing reports whether line is a server keepalive. Only the prefix matters.
func IsPing(line string) bool { return strings.HasPrefix(line, pingPrefix) }

// IsPrivateMessage reports whether line is a chat message (`^:.*PRIVMSG.*:`).
func IsPrivateMessage(line string) bool { return privmsgPattern.MatchString(line) }

// ParsePrivateMessage extracts the sender and body of a PRIVMSG line. For any line that is not a
// chat message, or whose prefix carries no '!', it returns the zero PrivateMessage and false.
func ParsePrivateMessage(line string) (PrivateMessage, bool) {
	if !IsPrivateMessage(line) {
		return PrivateMessage{}, false
	}
	m := privmsgFields.FindStringSubmatch(line)
	if m == nil {
		return PrivateMessage{}, false
	}
	return PrivateMessage{User: m[1], Text: m[2]}, true
}

// TrimLine strips the line terminator left by a bufio reader.
func TrimLine(raw string) string {
	return strings.TrimRight(raw, lineEnding)
}

// PassFrame authenticates the connection. Twitch expects token in the form "oauth:<token>".
func PassFrame(token string) string { return "PASS " + token + lineEnding }

// NickFrame announces the account name.
func NickFrame(nick string) string { return "NICK " + nick + lineEnding }

// JoinFrame joins channel, which must already carry its leading '#'.
func JoinFrame(channel string) string { return "JOIN " + channel + lineEnding }

// PongFrame answers a PING.
func PongFrame() string { return "PONG" + lineEnding }

// NormalizeChannel lowercases name and makes sure it starts with '#'.
func NormalizeChannel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.HasPrefix(name, "#") {
		return name
	}
	return "#" + name
}
