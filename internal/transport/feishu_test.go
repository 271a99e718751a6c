package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/keepmind9/botkit/internal/inbound"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeishuMessenger struct {
	created []string
	replied []string
	err     error
	code    int
}

func (f *fakeFeishuMessenger) Create(_ context.Context, req *larkim.CreateMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, *req.Body.Content)
	return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: f.code, Msg: "denied"}}, nil
}

func (f *fakeFeishuMessenger) Reply(_ context.Context, req *larkim.ReplyMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.replied = append(f.replied, *req.Body.Content)
	return &larkim.ReplyMessageResp{CodeError: larkcore.CodeError{Code: f.code, Msg: "denied"}}, nil
}

func strp(s string) *string { return &s }

func feishuEvent(chatType, content string) *larkim.P2MessageReceiveV1 {
	return &larkim.P2MessageReceiveV1{Event: &larkim.P2MessageReceiveV1Data{
		Sender: &larkim.EventSender{SenderId: &larkim.UserId{OpenId: strp("ou_1")}},
		Message: &larkim.EventMessage{
			MessageId:   strp("om_1"),
			ChatId:      strp("oc_1"),
			ChatType:    strp(chatType),
			MessageType: strp(larkim.MsgTypeText),
			Content:     strp(content),
			CreateTime:  strp("1767323045000"),
			Mentions:    []*larkim.MentionEvent{{Key: strp("@_user_1")}},
		},
	}}
}

func TestExtractTextContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"text payload", `{"text":"hello"}`, "hello"},
		{"escaped quotes", `{"text":"say \"hi\"\nnow"}`, "say \"hi\"\nnow"},
		{"not json", "plain", "plain"},
		{"no text field", `{"image_key":"x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTextContent(tt.content))
		})
	}
}

func TestTextContent(t *testing.T) {
	got, err := textContent("line \"one\"\nline two")
	require.NoError(t, err)
	assert.Equal(t, `{"text":"line \"one\"\nline two"}`, got)
}

func TestFeishuBot_HandleMessageReceive(t *testing.T) {
	messenger := &fakeFeishuMessenger{}
	bot := &FeishuBot{Messenger: messenger}

	var batches []inbound.Batch
	bot.SetHandler(func(b inbound.Batch) { batches = append(batches, b) })

	require.NoError(t, bot.handleMessageReceive(context.Background(), feishuEvent("group", `{"text":"@_user_1 !ping now"}`)))
	require.Len(t, batches, 1)
	m := batches[0].Messages[0]
	assert.Equal(t, "!ping now", m.Body)
	assert.Equal(t, "ou_1", m.SenderID)
	assert.Equal(t, "oc_1", m.ChatID)
	assert.True(t, m.IsGroup)
	assert.False(t, m.IsQuoted)
	assert.Equal(t, int64(1767323045000), m.Timestamp.UnixMilli())

	require.NoError(t, m.Reply(context.Background(), "pong"))
	assert.Equal(t, []string{`{"text":"pong"}`}, messenger.replied)
}

func TestFeishuBot_SkipsNonText(t *testing.T) {
	bot := &FeishuBot{Messenger: &fakeFeishuMessenger{}}
	calls := 0
	bot.SetHandler(func(inbound.Batch) { calls++ })

	ev := feishuEvent("p2p", `{"image_key":"img"}`)
	ev.Event.Message.MessageType = strp("image")
	require.NoError(t, bot.handleMessageReceive(context.Background(), ev))
	require.NoError(t, bot.handleMessageReceive(context.Background(), feishuEvent("p2p", `{"text":"@_user_1"}`)))
	require.NoError(t, bot.handleMessageReceive(context.Background(), nil))
	assert.Zero(t, calls)
}

func TestFeishuBot_Send(t *testing.T) {
	messenger := &fakeFeishuMessenger{}
	bot := &FeishuBot{Messenger: messenger}

	require.NoError(t, bot.Send("oc_1", "hi"))
	assert.Equal(t, []string{`{"text":"hi"}`}, messenger.created)

	assert.ErrorContains(t, bot.Send("", "hi"), "chat ID is required")

	messenger.code = 230001
	assert.ErrorContains(t, bot.Send("oc_1", "hi"), "code=230001")

	messenger.err = errors.New("network down")
	assert.ErrorContains(t, bot.Send("oc_1", "hi"), "network down")

	assert.Error(t, (&FeishuBot{}).Send("oc_1", "hi"))
}

func TestFeishuBot_StopWithoutStart(t *testing.T) {
	assert.NoError(t, (&FeishuBot{}).Stop())
}

type fakeFeishuChats struct {
	data *larkim.GetChatRespData
	code int
	err  error
}

func (f *fakeFeishuChats) Get(_ context.Context, _ *larkim.GetChatReq, _ ...larkcore.RequestOptionFunc) (*larkim.GetChatResp, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &larkim.GetChatResp{CodeError: larkcore.CodeError{Code: f.code, Msg: "no permission"}, Data: f.data}, nil
}

func TestFeishuBot_GroupMetadata(t *testing.T) {
	t.Run("owner and managers", func(t *testing.T) {
		bot := &FeishuBot{Chats: &fakeFeishuChats{data: &larkim.GetChatRespData{
			Name:              strp("ops"),
			OwnerId:           strp("u_owner"),
			UserManagerIdList: []string{"u_mgr", "u_owner", ""},
		}}}

		meta, err := bot.GroupMetadata(context.Background(), "oc_1")
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Equal(t, "oc_1", meta.ID)
		assert.Equal(t, "ops", meta.Subject)
		assert.Len(t, meta.Participants, 2)
		assert.True(t, meta.IsAdmin("u_owner"))
		assert.True(t, meta.IsAdmin("u_mgr"))
		assert.False(t, meta.IsAdmin("u_member"))
	})

	t.Run("missing data is unknown", func(t *testing.T) {
		bot := &FeishuBot{Chats: &fakeFeishuChats{}}
		meta, err := bot.GroupMetadata(context.Background(), "oc_1")
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := (&FeishuBot{}).GroupMetadata(context.Background(), "oc_1")
		assert.Error(t, err, "not started")

		bot := &FeishuBot{Chats: &fakeFeishuChats{err: errors.New("timeout")}}
		_, err = bot.GroupMetadata(context.Background(), "oc_1")
		assert.ErrorContains(t, err, "timeout")

		bot = &FeishuBot{Chats: &fakeFeishuChats{code: 232011}}
		_, err = bot.GroupMetadata(context.Background(), "oc_1")
		assert.ErrorContains(t, err, "code=232011")
	})
}
