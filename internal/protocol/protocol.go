// Package protocol encodes and decodes room server websocket frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed frame")

// Frame is the envelope of every JSON message exchanged with the server.
type Frame struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Message interface {
	Command() string
}

type Advance struct {
	// Entry is nil when the booth became empty.
	Entry *AdvanceEntry
}

type AdvanceEntry struct {
	HistoryID  string       `json:"historyID"`
	UserID     string       `json:"userID"`
	PlaylistID string       `json:"playlistID"`
	PlayedAt   int64        `json:"playedAt"`
	Media      PlaylistItem `json:"media"`
}

type PlaylistItem struct {
	Artist string   `json:"artist"`
	Title  string   `json:"title"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Media  MediaRef `json:"media"`
}

type MediaRef struct {
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceID"`
	Duration   int    `json:"duration"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userID"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type ChatDeleteAll struct{}

type ChatDeleteByID struct {
	ID string `json:"_id"`
}

type ChatDeleteByUser struct {
	UserID string `json:"userID"`
}

type UserLeave struct {
	UserID string `json:"userID"`
}

type NameChange struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
}

type Vote struct {
	UserID string `json:"_id"`
	Value  int    `json:"value"`
}

type Favorite struct {
	UserID    string `json:"userID"`
	HistoryID string `json:"historyID"`
}

type PlaylistCycle struct {
	PlaylistID string `json:"playlistID"`
}

// WaitlistChange covers join, leave, add and remove; Kind holds the command.
type WaitlistChange struct {
	Kind     string   `json:"-"`
	UserID   string   `json:"userID"`
	Waitlist []string `json:"waitlist"`
}

type WaitlistUpdate struct {
	Waitlist []string `json:"waitlist"`
}

type WaitlistLock struct {
	Locked bool `json:"locked"`
}

type WaitlistClear struct{}

func (*Advance) Command() string          { return "advance" }
func (*ChatMessage) Command() string      { return "chatMessage" }
func (*ChatDeleteAll) Command() string    { return "chatDelete" }
func (*ChatDeleteByID) Command() string   { return "chatDeleteByID" }
func (*ChatDeleteByUser) Command() string { return "chatDeleteByUser" }
func (*UserLeave) Command() string        { return "leave" }
func (*NameChange) Command() string       { return "nameChange" }
func (*Vote) Command() string             { return "vote" }
func (*Favorite) Command() string         { return "favorite" }
func (*PlaylistCycle) Command() string    { return "playlistCycle" }
func (w *WaitlistChange) Command() string { return w.Kind }
func (*WaitlistUpdate) Command() string   { return "waitlistUpdate" }
func (*WaitlistLock) Command() string     { return "waitlistLock" }
func (*WaitlistClear) Command() string    { return "waitlistClear" }

// Decode parses a frame. Unknown commands decode to nil without error.
func Decode(raw string) (Message, error) {
	var f Frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	switch f.Command {
	case "advance":
		adv := &Advance{}
		if !isNull(f.Data) {
			adv.Entry = &AdvanceEntry{}
			if err := decodeData(f, adv.Entry); err != nil {
				return nil, err
			}
		}
		return adv, nil
	case "chatDelete":
		return &ChatDeleteAll{}, nil
	case "waitlistClear":
		return &WaitlistClear{}, nil
	case "chatMessage":
		msg = &ChatMessage{}
	case "chatDeleteByID":
		msg = &ChatDeleteByID{}
	case "chatDeleteByUser":
		msg = &ChatDeleteByUser{}
	case "leave":
		msg = &UserLeave{}
	case "nameChange":
		msg = &NameChange{}
	case "vote":
		msg = &Vote{}
	case "favorite":
		msg = &Favorite{}
	case "playlistCycle":
		msg = &PlaylistCycle{}
	case "waitlistJoin", "waitlistLeave", "waitlistAdd", "waitlistRemove":
		msg = &WaitlistChange{Kind: f.Command}
	case "waitlistUpdate":
		msg = &WaitlistUpdate{}
	case "waitlistLock":
		msg = &WaitlistLock{}
	default:
		return nil, nil
	}

	if err := decodeData(f, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeData(f Frame, v any) error {
	if isNull(f.Data) {
		return fmt.Errorf("%w: %s without data", ErrMalformed, f.Command)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, f.Command, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func encode(command string, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(Frame{Command: command, Data: raw})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeVote builds a vote command; value is 1 for upvote, -1 for downvote.
func EncodeVote(value int) (string, error) {
	if value != 1 && value != -1 {
		return "", fmt.Errorf("vote must be 1 or -1, got %d", value)
	}
	return encode("vote", value)
}

func EncodeChat(message string) (string, error) {
	if message == "" {
		return "", errors.New("chat message is empty")
	}
	return encode("sendChat", message)
}
