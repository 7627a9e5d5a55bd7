package irc

import (
	"testing"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"ping with server", "PING :tmi.twitch.tv", KindPing},
		{"bare ping", "PING", KindPing},
		{"ping with junk suffix", "PINGxyz :PRIVMSG :", KindPing},
		{"privmsg", ":user!user@user.tmi.twitch.tv PRIVMSG #channel :hello world", KindPrivateMessage},
		{"privmsg without bang still classifies", ":tmi.twitch.tv PRIVMSG #channel :hi", KindPrivateMessage},
		{"unanchored privmsg", "NOTICE something PRIVMSG fake", KindOther},
		{"unanchored privmsg with colon", "NOTICE :something PRIVMSG fake :x", KindOther},
		{"privmsg without trailing colon", ":user!user@host PRIVMSG #channel", KindOther},
		{"numeric reply", ":tmi.twitch.tv 001 bot :Welcome, GLHF!", KindOther},
		{"join notice", ":bot!bot@bot.tmi.twitch.tv JOIN #channel", KindOther},
		{"lowercase ping", "ping :tmi.twitch.tv", KindOther},
		{"empty", "", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.line); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParsePrivateMessage(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   PrivateMessage
		wantOK bool
	}{
		{
			name:   "canonical",
			line:   ":user!user@user.tmi.twitch.tv PRIVMSG #channel :hello world",
			want:   PrivateMessage{User: "user", Text: "hello world"},
			wantOK: true,
		},
		{
			name:   "empty body",
			line:   ":someone!someone@someone.tmi.twitch.tv PRIVMSG #channel :",
			want:   PrivateMessage{User: "someone", Text: ""},
			wantOK: true,
		},
		{
			name:   "bang in body",
			line:   ":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #channel :wow!",
			want:   PrivateMessage{User: "viewer", Text: "wow!"},
			wantOK: true,
		},
		{
			name:   "text follows the last colon",
			line:   ":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #channel :time is 10:30",
			want:   PrivateMessage{User: "viewer", Text: "30"},
			wantOK: true,
		},
		{
			name: "ping",
			line: "PING :tmi.twitch.tv",
		},
		{
			name: "unanchored privmsg",
			line: "NOTICE something PRIVMSG fake",
		},
		{
			name: "privmsg prefix without bang",
			line: ":tmi.twitch.tv PRIVMSG #channel :hi",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrivateMessage(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrivateMessage(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParsePrivateMessage(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParsePrivateMessageDeterministic(t *testing.T) {
	line := ":user!user@user.tmi.twitch.tv PRIVMSG #channel :hello world"
	first, _ := ParsePrivateMessage(line)
	for i := 0; i < 100; i++ {
		again, ok := ParsePrivateMessage(line)
		if !ok || again != first {
			t.Fatalf("iteration %d: got %+v (ok=%v), want %+v", i, again, ok, first)
		}
	}
}

// Plain PRIVMSG lines should agree with go-twitch-irc's parser on sender and body.
func TestParsePrivateMessageMatchesGoTwitchIRC(t *testing.T) {
	lines := []string{
		":user!user@user.tmi.twitch.tv PRIVMSG #channel :hello world",
		":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :Kappa Keepo Kappa",
		":a_b_c!a_b_c@a_b_c.tmi.twitch.tv PRIVMSG #pajlada :!command arg",
	}
	for _, line := range lines {
		ours, ok := ParsePrivateMessage(line)
		if !ok {
			t.Fatalf("ParsePrivateMessage(%q) not ok", line)
		}
		ref, isPriv := twitch.ParseMessage(line).(*twitch.PrivateMessage)
		if !isPriv {
			t.Fatalf("go-twitch-irc did not parse %q as PRIVMSG", line)
		}
		if ours.User != ref.User.Name {
			t.Errorf("user = %q, go-twitch-irc = %q", ours.User, ref.User.Name)
		}
		if ours.Text != ref.Message {
			t.Errorf("text = %q, go-twitch-irc = %q", ours.Text, ref.Message)
		}
	}
}

func TestTrimLine(t *testing.T) {
	for in, want := range map[string]string{
		"PING :tmi.twitch.tv\r\n": "PING :tmi.twitch.tv",
		"PING\n":                  "PING",
		"no terminator":           "no terminator",
		"\r\n":                    "",
	} {
		if got := TrimLine(in); got != want {
			t.Errorf("TrimLine(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFrames(t *testing.T) {
	if got := PassFrame("oauth:abc"); got != "PASS oauth:abc\r\n" {
		t.Errorf("PassFrame = %q", got)
	}
	if got := NickFrame("bot"); got != "NICK bot\r\n" {
		t.Errorf("NickFrame = %q", got)
	}
	if got := JoinFrame("#chan"); got != "JOIN #chan\r\n" {
		t.Errorf("JoinFrame = %q", got)
	}
	if got := PongFrame(); got != "PONG\r\n" {
		t.Errorf("PongFrame = %q", got)
	}
}

func TestNormalizeChannel(t *testing.T) {
	for in, want := range map[string]string{
		"Channel":  "#channel",
		"#Channel": "#channel",
		" xqc ":    "#xqc",
		"":         "",
	} {
		if got := NormalizeChannel(in); got != want {
			t.Errorf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
}
