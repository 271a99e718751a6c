package inbound

import (
	"context"
	"testing"

	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	got    []*message.Message
	result dispatch.EnqueueResult
}

func (q *fakeQueue) Enqueue(_ plugin.Sender, msg *message.Message) dispatch.EnqueueResult {
	q.got = append(q.got, msg)
	return q.result
}

type fakeAccess struct {
	owners    map[string]bool
	whitelist map[string]bool // nil allows everyone
}

func (a fakeAccess) IsOwner(platform, userID string) bool {
	return a.owners[platform+":"+userID]
}

func (a fakeAccess) IsUserAuthorized(platform, userID string) bool {
	if a.whitelist == nil {
		return true
	}
	return a.whitelist[platform+":"+userID]
}

type fixedMode settings.Mode

func (m fixedMode) Mode(context.Context) settings.Mode { return settings.Mode(m) }

func msg(sender, body string, group bool) *message.Message {
	m := message.New(nil, nil)
	m.Platform = "telegram"
	m.SenderID = sender
	m.Body = body
	m.IsGroup = group
	return m
}

func TestRouter_IgnoresNonNotifyBatches(t *testing.T) {
	q := &fakeQueue{}
	r := NewRouter([]string{"!"}, nil, q, nil)

	n := r.Process(context.Background(), nil, Batch{Type: BatchAppend, Messages: []*message.Message{msg("u1", "!ping", false)}})
	assert.Zero(t, n)
	assert.Empty(t, q.got)
}

func TestRouter_ParsesAndQueues(t *testing.T) {
	q := &fakeQueue{}
	r := NewRouter([]string{"!", "."}, nil, q, nil)

	n := r.Process(context.Background(), nil, Batch{Type: BatchNotify, Messages: []*message.Message{
		msg("u1", "!Ping  a  b", false),
		msg("u1", "hello there", false),
		msg("u1", "", false),
		nil,
		msg("u2", ".help", true),
	}})

	assert.Equal(t, 2, n)
	require.Len(t, q.got, 2)
	assert.Equal(t, "ping", q.got[0].Command)
	assert.Equal(t, []string{"a", "b"}, q.got[0].Args)
	assert.Equal(t, "a b", q.got[0].Text)
	assert.Equal(t, ".", q.got[1].Prefix)
}

func TestRouter_OwnerMayOmitPrefix(t *testing.T) {
	q := &fakeQueue{}
	access := fakeAccess{owners: map[string]bool{"telegram:boss": true}}
	r := NewRouter([]string{"!"}, access, q, nil)

	r.Process(context.Background(), nil, Batch{Type: BatchNotify, Messages: []*message.Message{
		msg("boss", "reload now", false),
		msg("pleb", "reload now", false),
	}})

	require.Len(t, q.got, 1)
	assert.True(t, q.got[0].IsOwner)
	assert.Equal(t, "reload", q.got[0].Command)
	assert.Equal(t, "", q.got[0].Prefix)
}

func TestRouter_Whitelist(t *testing.T) {
	q := &fakeQueue{}
	access := fakeAccess{
		owners:    map[string]bool{"telegram:boss": true},
		whitelist: map[string]bool{"telegram:friend": true},
	}
	r := NewRouter([]string{"!"}, access, q, nil)

	r.Process(context.Background(), nil, Batch{Type: BatchNotify, Messages: []*message.Message{
		msg("friend", "!ping", false),
		msg("stranger", "!ping", false),
		msg("boss", "!ping", false),
	}})

	require.Len(t, q.got, 2)
	assert.Equal(t, "friend", q.got[0].SenderID)
	assert.Equal(t, "boss", q.got[1].SenderID)
}

func TestRouter_ModeGate(t *testing.T) {
	access := fakeAccess{owners: map[string]bool{"telegram:boss": true}}
	tests := []struct {
		mode settings.Mode
		want []string
	}{
		{settings.ModePublic, []string{"boss", "u-private", "u-group"}},
		{settings.ModeSelf, []string{"boss"}},
		{settings.ModeGroup, []string{"boss", "u-group"}},
		{settings.ModePrivate, []string{"boss", "u-private"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			q := &fakeQueue{}
			r := NewRouter([]string{"!"}, access, q, fixedMode(tt.mode))
			r.Process(context.Background(), nil, Batch{Type: BatchNotify, Messages: []*message.Message{
				msg("boss", "!ping", true),
				msg("u-private", "!ping", false),
				msg("u-group", "!ping", true),
			}})

			var senders []string
			for _, m := range q.got {
				senders = append(senders, m.SenderID)
			}
			assert.Equal(t, tt.want, senders)
		})
	}
}

func TestRouter_CountsOnlyQueued(t *testing.T) {
	q := &fakeQueue{result: dispatch.Duplicate}
	r := NewRouter([]string{"!"}, nil, q, nil)

	n := r.Process(context.Background(), nil, Batch{Type: BatchNotify, Messages: []*message.Message{msg("u1", "!ping", false)}})
	assert.Zero(t, n)
	assert.Len(t, q.got, 1)
}
