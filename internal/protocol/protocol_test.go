package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAdvance(t *testing.T) {
	raw := `{"command":"advance","data":{"historyID":"h1","userID":"u1","playlistID":"p1","playedAt":1700000000000,
		"media":{"artist":"Rick Astley","title":"Never Gonna Give You Up","start":12,"end":200,
		"media":{"sourceType":"youtube","sourceID":"dQw4w9WgXcQ","duration":212}}}}`

	msg, err := Decode(raw)
	require.NoError(t, err)
	adv, ok := msg.(*Advance)
	require.True(t, ok)
	require.NotNil(t, adv.Entry)
	assert.Equal(t, "advance", adv.Command())
	assert.Equal(t, "youtube", adv.Entry.Media.Media.SourceType)
	assert.Equal(t, "dQw4w9WgXcQ", adv.Entry.Media.Media.SourceID)
	assert.Equal(t, 12, adv.Entry.Media.Start)
	assert.Equal(t, "Rick Astley", adv.Entry.Media.Artist)
}

func TestDecodeAdvanceNull(t *testing.T) {
	msg, err := Decode(`{"command":"advance","data":null}`)
	require.NoError(t, err)
	adv := msg.(*Advance)
	assert.Nil(t, adv.Entry)
}

func TestDecodeCommands(t *testing.T) {
	tests := []struct {
		raw  string
		want Message
	}{
		{`{"command":"chatMessage","data":{"id":"c1","userID":"u1","message":"hi","timestamp":5}}`,
			&ChatMessage{ID: "c1", UserID: "u1", Message: "hi", Timestamp: 5}},
		{`{"command":"chatDelete"}`, &ChatDeleteAll{}},
		{`{"command":"chatDeleteByID","data":{"_id":"c1"}}`, &ChatDeleteByID{ID: "c1"}},
		{`{"command":"chatDeleteByUser","data":{"userID":"u1"}}`, &ChatDeleteByUser{UserID: "u1"}},
		{`{"command":"leave","data":{"userID":"u1"}}`, &UserLeave{UserID: "u1"}},
		{`{"command":"nameChange","data":{"userID":"u1","username":"neo"}}`, &NameChange{UserID: "u1", Username: "neo"}},
		{`{"command":"vote","data":{"_id":"u1","value":-1}}`, &Vote{UserID: "u1", Value: -1}},
		{`{"command":"favorite","data":{"userID":"u1","historyID":"h1"}}`, &Favorite{UserID: "u1", HistoryID: "h1"}},
		{`{"command":"playlistCycle","data":{"playlistID":"p1"}}`, &PlaylistCycle{PlaylistID: "p1"}},
		{`{"command":"waitlistJoin","data":{"userID":"u1","waitlist":["u1","u2"]}}`,
			&WaitlistChange{Kind: "waitlistJoin", UserID: "u1", Waitlist: []string{"u1", "u2"}}},
		{`{"command":"waitlistUpdate","data":{"waitlist":["u2"]}}`, &WaitlistUpdate{Waitlist: []string{"u2"}}},
		{`{"command":"waitlistLock","data":{"locked":true}}`, &WaitlistLock{Locked: true}},
		{`{"command":"waitlistClear"}`, &WaitlistClear{}},
	}
	for _, tt := range tests {
		t.Run(tt.want.Command(), func(t *testing.T) {
			msg, err := Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	msg, err := Decode(`{"command":"boothSkip","data":{}}`)
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(`not json`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(`{"command":"vote","data":"oops"}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(`{"command":"vote"}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode(t *testing.T) {
	vote, err := EncodeVote(1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"vote","data":1}`, vote)

	_, err = EncodeVote(3)
	assert.Error(t, err)

	chat, err := EncodeChat(`say "hi"`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"sendChat","data":"say \"hi\""}`, chat)

	_, err = EncodeChat("")
	assert.Error(t, err)
}
