package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestNormalizeChannel(t *testing.T) {
	cases := map[string]string{
		"MomentumTrackerCN2":                      "MomentumTrackerCN2",
		"  @MomentumTrackerCN2 ":                  "MomentumTrackerCN2",
		"https://t.me/MomentumTrackerCN2":         "MomentumTrackerCN2",
		"t.me/MomentumTrackerCN2/1234":            "MomentumTrackerCN2",
		"http://telegram.me/MomentumTrackerCN2?x": "MomentumTrackerCN2",
		"":                                        "",
	}
	for in, want := range cases {
		if got := normalizeChannel(in); got != want {
			t.Fatalf("normalizeChannel(%q) 期望 %q, 实际 %q", in, want, got)
		}
	}
}

func TestFindChannel(t *testing.T) {
	chats := []tg.ChatClass{
		&tg.Chat{ID: 7, Title: "group"},
		&tg.Channel{ID: 9, AccessHash: 99, Title: "Other"},
		&tg.Channel{ID: 42, AccessHash: 4242, Title: "Momentum"},
	}

	ch, ok := findChannel(chats, &tg.PeerChannel{ChannelID: 42})
	if !ok || ch.AccessHash != 4242 {
		t.Fatalf("应找到频道 42, 实际 %+v", ch)
	}
	if _, ok := findChannel(chats, &tg.PeerUser{UserID: 42}); ok {
		t.Fatal("用户 peer 不应解析为频道")
	}
	if _, ok := findChannel(chats, &tg.PeerChannel{ChannelID: 1}); ok {
		t.Fatal("不存在的频道不应被找到")
	}
}

func TestHistoryMessages(t *testing.T) {
	res := &tg.MessagesChannelMessages{
		Messages: []tg.MessageClass{
			&tg.Message{ID: 12, Message: "newest", Date: 1_700_000_600, PeerID: &tg.PeerChannel{ChannelID: 42}},
			&tg.MessageService{ID: 11},
			&tg.Message{ID: 10, Message: "older", Date: 1_700_000_000, PeerID: &tg.PeerChannel{ChannelID: 42}},
		},
	}

	msgs := historyMessages(res)
	if len(msgs) != 2 {
		t.Fatalf("应跳过服务消息, 实际 %d 条", len(msgs))
	}
	if msgs[0].ID != 12 || msgs[1].ID != 10 {
		t.Fatalf("顺序应保持最新在前: %+v", msgs)
	}
	if !msgs[0].Date.Equal(time.Unix(1_700_000_600, 0)) {
		t.Fatalf("日期转换错误: %s", msgs[0].Date)
	}
	if msgs[0].Channel != "" {
		t.Fatalf("历史消息不携带频道标题: %q", msgs[0].Channel)
	}

	if got := historyMessages(&tg.MessagesMessagesNotModified{}); got != nil {
		t.Fatalf("未修改响应应返回空, 实际 %+v", got)
	}
}

func TestConvertMessageAndChannelID(t *testing.T) {
	msg := &tg.Message{ID: 5, Message: "hi", Date: 1_700_000_000, PeerID: &tg.PeerChannel{ChannelID: 3}}
	got := convertMessage(msg, "Title")
	if got.ID != 5 || got.Text != "hi" || got.Channel != "Title" {
		t.Fatalf("消息转换错误: %+v", got)
	}
	if id, ok := channelID(msg); !ok || id != 3 {
		t.Fatalf("频道 ID 解析错误: %d %v", id, ok)
	}
	if _, ok := channelID(&tg.Message{PeerID: &tg.PeerUser{UserID: 1}}); ok {
		t.Fatal("私聊消息不应返回频道 ID")
	}
}

func TestNewTelegramRequiresCredentials(t *testing.T) {
	if _, err := NewTelegram(context.Background(), TelegramOptions{}, noopLogger()); err == nil {
		t.Fatal("缺少 api id/hash 应返回错误")
	}
	if _, err := NewTelegram(context.Background(), TelegramOptions{APIID: 1, APIHash: "h", SessionString: "not-a-session"}, noopLogger()); err == nil {
		t.Fatal("无效的 session string 应返回错误")
	}
}
