package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// ErrNotAuthorized is returned when a non-interactive session has no valid login.
var ErrNotAuthorized = errors.New("telegram session not authorized")

// TelegramOptions configure the MTProto user-session transport.
type TelegramOptions struct {
	APIID         int
	APIHash       string
	SessionString string
	SessionFile   string
	Phone         string
	Password      string
	// Interactive allows a phone/code login prompt when no session is stored.
	Interactive bool
	Prompt      io.Reader
	PromptOut   io.Writer
}

// Telegram reads channel messages through a user session.
type Telegram struct {
	opts       TelegramOptions
	logger     zerolog.Logger
	client     *telegram.Client
	dispatcher tg.UpdateDispatcher
	gaps       *updates.Manager

	mu       sync.Mutex
	resolved map[string]*tg.Channel
}

// NewTelegram prepares the client. The session string, when present, takes precedence over the session file.
func NewTelegram(ctx context.Context, opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	if opts.APIID == 0 || opts.APIHash == "" {
		return nil, errors.New("telegram api id and hash are required")
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stdin
	}
	if opts.PromptOut == nil {
		opts.PromptOut = os.Stderr
	}

	storage, err := sessionStorage(ctx, opts)
	if err != nil {
		return nil, err
	}

	dispatcher := tg.NewUpdateDispatcher()
	gaps := updates.New(updates.Config{Handler: dispatcher})

	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  gaps,
	})

	return &Telegram{
		opts:       opts,
		logger:     logger.With().Str("component", "telegram").Logger(),
		client:     client,
		dispatcher: dispatcher,
		gaps:       gaps,
		resolved:   make(map[string]*tg.Channel),
	}, nil
}

func sessionStorage(ctx context.Context, opts TelegramOptions) (session.Storage, error) {
	raw := strings.TrimSpace(opts.SessionString)
	if raw == "" {
		path := opts.SessionFile
		if path == "" {
			path = "radar.session.json"
		}
		return &session.FileStorage{Path: path}, nil
	}

	data, err := session.TelethonSession(raw)
	if err != nil {
		return nil, fmt.Errorf("decode session string: %w", err)
	}
	storage := new(session.StorageMemory)
	if err := (&session.Loader{Storage: storage}).Save(ctx, data); err != nil {
		return nil, fmt.Errorf("load session string: %w", err)
	}
	return storage, nil
}

// Run connects, makes sure the session is logged in and calls fn while the connection is up.
func (t *Telegram) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.client.Run(ctx, func(ctx context.Context) error {
		if err := t.authorize(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (t *Telegram) authorize(ctx context.Context) error {
	status, err := t.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		t.logger.Info().Int64("user_id", status.User.ID).Msg("telegram session authorized")
		return nil
	}
	if !t.opts.Interactive {
		return ErrNotAuthorized
	}

	reader := bufio.NewReader(t.opts.Prompt)
	phone := strings.TrimSpace(t.opts.Phone)
	if phone == "" {
		if phone, err = t.ask(reader, "Phone number: "); err != nil {
			return err
		}
	}
	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return t.ask(reader, "Login code: ")
	})
	flow := auth.NewFlow(auth.Constant(phone, t.opts.Password, codeAuth), auth.SendCodeOptions{})
	if err := t.client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("telegram login: %w", err)
	}
	t.logger.Info().Msg("telegram login complete")
	return nil
}

func (t *Telegram) ask(r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(t.opts.PromptOut, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// Subscribe resolves channels and delivers their new posts until ctx ends. Must be called inside Run.
func (t *Telegram) Subscribe(ctx context.Context, channels []string, handle MessageHandler) error {
	api := t.client.API()

	watched := make(map[int64]string, len(channels))
	for _, name := range channels {
		ch, err := t.resolve(ctx, api, name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		watched[ch.ID] = ch.Title
		t.logger.Info().Str("channel", name).Int64("channel_id", ch.ID).Msg("watching channel")
	}

	t.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok {
			return nil
		}
		id, ok := channelID(msg)
		if !ok {
			return nil
		}
		title, ok := watched[id]
		if !ok {
			return nil
		}
		if ch, found := e.Channels[id]; found && ch.Title != "" {
			title = ch.Title
		}
		if err := handle(ctx, convertMessage(msg, title)); err != nil {
			t.logger.Error().Err(err).Int("message_id", msg.ID).Str("channel", title).Msg("handle message failed")
		}
		return nil
	})

	self, err := t.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("fetch self: %w", err)
	}
	return t.gaps.Run(ctx, api, self.ID, updates.AuthOptions{
		OnStart: func(ctx context.Context) {
			t.logger.Info().Int("channels", len(watched)).Msg("listening for new messages")
		},
	})
}

// FetchHistory returns the latest limit messages of channel, newest first. Must be called inside Run.
func (t *Telegram) FetchHistory(ctx context.Context, channel string, limit int) ([]Message, error) {
	api := t.client.API()
	ch, err := t.resolve(ctx, api, channel)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", channel, err)
	}

	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", channel, err)
	}
	return historyMessages(res), nil
}

func (t *Telegram) resolve(ctx context.Context, api *tg.Client, name string) (*tg.Channel, error) {
	username := normalizeChannel(name)
	if username == "" {
		return nil, ErrChannelNotFound
	}

	t.mu.Lock()
	ch, ok := t.resolved[username]
	t.mu.Unlock()
	if ok {
		return ch, nil
	}

	peer, err := api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	ch, ok = findChannel(peer.Chats, peer.Peer)
	if !ok {
		return nil, ErrChannelNotFound
	}

	t.mu.Lock()
	t.resolved[username] = ch
	t.mu.Unlock()
	return ch, nil
}

// normalizeChannel accepts "name", "@name" and t.me links.
func normalizeChannel(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"https://", "http://"} {
		name = strings.TrimPrefix(name, prefix)
	}
	for _, prefix := range []string{"t.me/", "telegram.me/", "@"} {
		name = strings.TrimPrefix(name, prefix)
	}
	if i := strings.IndexAny(name, "/?"); i >= 0 {
		name = name[:i]
	}
	return name
}

func findChannel(chats []tg.ChatClass, peer tg.PeerClass) (*tg.Channel, bool) {
	want, ok := peer.(*tg.PeerChannel)
	if !ok {
		return nil, false
	}
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == want.ChannelID {
			return ch, true
		}
	}
	return nil, false
}

func channelID(msg *tg.Message) (int64, bool) {
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return 0, false
	}
	return peer.ChannelID, true
}

func historyMessages(res tg.MessagesMessagesClass) []Message {
	var raw []tg.MessageClass
	switch v := res.(type) {
	case *tg.MessagesChannelMessages:
		raw = v.Messages
	case *tg.MessagesMessagesSlice:
		raw = v.Messages
	case *tg.MessagesMessages:
		raw = v.Messages
	default:
		return nil
	}

	out := make([]Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, convertMessage(msg, ""))
	}
	return out
}

func convertMessage(msg *tg.Message, channel string) Message {
	return Message{
		ID:      int64(msg.ID),
		Channel: channel,
		Text:    msg.Message,
		Date:    time.Unix(int64(msg.Date), 0).UTC(),
	}
}

var _ Source = (*Telegram)(nil)
