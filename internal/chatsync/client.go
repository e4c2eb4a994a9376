package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// PushChannel is the long-lived, at-least-once, non-ordered event
// transport from the server. Reconnect and backoff belong to the
// implementation; the engine only requires that every subscription
// created here can be released again.
type PushChannel interface {
	Subscribe(ctx context.Context, fn func(Envelope)) (Subscription, error)
}

// Subscription is one live attachment to the push channel. Done is
// closed when delivery stops for any reason, unsubscribe and transport
// failure alike, so the owner can notice a dead channel and reconnect.
type Subscription interface {
	Unsubscribe() error
	Done() <-chan struct{}
}

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	// SelfUserID identifies the local session; the engine needs it to
	// skip unread accounting for the user's own messages and to resolve
	// reaction ownership.
	SelfUserID string
	Remote     Remote
	Channel    PushChannel
	// Alerter receives desktop alerts; defaults to NopAlerter.
	Alerter Alerter
	// Focused reports whether the user is looking at the app right now.
	// Alerts fire only while it returns false. Defaults to never focused.
	Focused func() bool
	Logger  Logger
	// AlertBodyLimit caps alert body length in runes before the ellipsis
	// marker is applied. Zero means the default of 120.
	AlertBodyLimit int
	// SnapshotPageSize bounds the recent-notification fetch on connect.
	SnapshotPageSize int
	// FetchTimeout bounds the fire-and-forget REST calls issued from
	// event handlers. Zero means 10s.
	FetchTimeout time.Duration
}

// Client is the synchronization orchestrator. It owns the push-channel
// subscription lifecycle, performs the snapshot fetches on connect, and
// routes every inbound event to the store that owns it. Handlers are
// idempotent merges over current state, so re-delivery of the same
// event is harmless. All REST I/O triggered by a handler is issued
// fire-and-forget; its result re-enters the stores only if the session
// generation is unchanged, so nothing lands after a logout reset.
type Client struct {
	remote         Remote
	channel        PushChannel
	alerter        Alerter
	focused        func() bool
	logger         Logger
	selfID         string
	alertBodyLimit int
	snapshotPage   int
	fetchTimeout   time.Duration

	Conversations *ConversationStore
	Messages      *MessageStore
	Notifications *NotificationStore
	Presence      *PresenceTracker
	Unread        *UnreadCounter

	handlers map[EventType]func(Envelope)

	mu  sync.Mutex
	sub Subscription
	gen uint64
}

func New(opts Options) (*Client, error) {
	if opts.SelfUserID == "" {
		return nil, fmt.Errorf("self user id is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("push channel is required")
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = NopAlerter{}
	}
	focused := opts.Focused
	if focused == nil {
		focused = func() bool { return false }
	}
	snapshotPage := opts.SnapshotPageSize
	if snapshotPage <= 0 {
		snapshotPage = 50
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}

	conversations := NewConversationStore()
	c := &Client{
		remote:         opts.Remote,
		channel:        opts.Channel,
		alerter:        alerter,
		focused:        focused,
		logger:         opts.Logger,
		selfID:         opts.SelfUserID,
		alertBodyLimit: opts.AlertBodyLimit,
		snapshotPage:   snapshotPage,
		fetchTimeout:   fetchTimeout,
		Conversations:  conversations,
		Messages:       NewMessageStore(opts.SelfUserID),
		Notifications:  NewNotificationStore(),
		Presence:       NewPresenceTracker(),
		Unread:         NewUnreadCounter(conversations, opts.SelfUserID),
	}
	c.handlers = map[EventType]func(Envelope){
		EventNewMessage:      c.onNewMessage,
		EventMessagesRead:    c.onMessagesRead,
		EventTypingStart:     c.onTyping(true),
		EventTypingStop:      c.onTyping(false),
		EventUserOnline:      c.onPresence(true),
		EventUserOffline:     c.onPresence(false),
		EventReactionAdded:   c.onReaction(true),
		EventReactionRemoved: c.onReaction(false),
		EventMessageEdited:   c.onMessageEdited,
		EventMessageDeleted:  c.onMessageDeleted,
		EventNewNotification: c.onNewNotification,
	}
	return c, nil
}

// Connect opens the push-channel subscription and kicks off the snapshot
// fetches. Idempotent: a second call while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		select {
		case <-c.sub.Done():
			// The transport died underneath us; drop the dead
			// subscription and dial again.
			c.sub = nil
		default:
			c.mu.Unlock()
			return nil
		}
	}
	gen := c.gen
	c.mu.Unlock()

	sub, err := c.channel.Subscribe(ctx, c.handleEvent)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.sub != nil || gen != c.gen {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	go c.loadSnapshots(gen)
	return nil
}

// Disconnect releases the push-channel subscription. Always safe to
// call, connected or not.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

// Reset tears down the subscription and clears every store. In-flight
// fetches started before the reset are allowed to finish but their
// results are discarded. Used on logout.
func (c *Client) Reset() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.Disconnect()
	c.Conversations.Reset()
	c.Messages.Reset()
	c.Notifications.Reset()
	c.Presence.Reset()
	c.Unread.Reset()
}

// Disconnected returns a channel that is closed once the current
// subscription has ended. When no subscription is held it returns an
// already-closed channel, so callers can always select on it.
func (c *Client) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.sub.Done()
}

// SetActiveConversation records which conversation the user is viewing;
// an empty id means none. The pointer feeds unread accounting and
// notification suppression.
func (c *Client) SetActiveConversation(id string) {
	c.Conversations.SetActive(id)
}

// MarkConversationAsRead zeroes the conversation's unread count,
// decrements the global count by the same amount, and flags its
// messages read.
func (c *Client) MarkConversationAsRead(id string) {
	c.Unread.MarkConversationRead(id)
	c.Messages.MarkAllRead(id)
}

// MarkNotificationRead applies the local transition and reports it to
// the server. Unknown or already-read ids stay a local no-op.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if !c.Notifications.MarkAsRead(id) {
		return nil
	}
	return c.remote.MarkNotificationRead(ctx, id)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	c.Notifications.MarkAllAsRead()
	return c.remote.MarkAllNotificationsRead(ctx)
}

func (c *Client) RemoveNotification(id string) {
	c.Notifications.Remove(id)
}

// LoadOlderMessages fetches the page preceding the oldest message held
// for the conversation and prepends it. Returns how many messages were
// new.
func (c *Client) LoadOlderMessages(ctx context.Context, conversationID string, limit int) (int, error) {
	before := ""
	if held := c.Messages.Messages(conversationID); len(held) > 0 {
		before = held[0].ID
	}
	feed, err := c.remote.ListMessagesBefore(ctx, conversationID, before, limit)
	if err != nil {
		return 0, err
	}
	return c.Messages.Prepend(conversationID, feed.Items), nil
}

func (c *Client) handleEvent(env Envelope) {
	handler, ok := c.handlers[env.Event]
	if !ok {
		c.logf("ignoring unknown push event %q", env.Event)
		return
	}
	handler(env)
}

func (c *Client) loadSnapshots(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	if count, err := c.remote.FetchUnreadMessageCount(ctx); err != nil {
		c.logf("unread count snapshot failed, keeping prior state: %v", err)
	} else if c.currentGen() == gen {
		c.Unread.SetGlobal(count)
	}

	if count, err := c.remote.FetchUnreadNotificationCount(ctx); err != nil {
		c.logf("notification unread snapshot failed, keeping prior state: %v", err)
	} else if c.currentGen() == gen {
		c.Notifications.SetUnread(count)
	}

	if feed, err := c.remote.ListNotifications(ctx, "", c.snapshotPage); err != nil {
		c.logf("notification snapshot failed, keeping prior state: %v", err)
	} else if c.currentGen() == gen {
		c.Notifications.MergeSnapshot(feed.Items)
	}
}

func (c *Client) onNewMessage(env Envelope) {
	var p NewMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logf("dropping malformed new-message payload: %v", err)
		return
	}
	msg := p.Message
	if p.ConversationID != "" {
		msg.ConversationID = p.ConversationID
	}
	if msg.ID == "" || msg.ConversationID == "" {
		c.logf("dropping new-message event without ids")
		return
	}
	if _, known := c.Conversations.Get(msg.ConversationID); !known {
		gen := c.currentGen()
		go c.adoptConversation(gen, msg)
		return
	}
	c.applyNewMessage(msg)
}

// adoptConversation resolves the first message from a sender with no
// conversation entry: ask the server for the canonical conversation,
// then replay the message through the normal path. On failure the event
// is dropped; the conversation surfaces on the next full snapshot.
func (c *Client) adoptConversation(gen uint64, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()
	conv, err := c.remote.GetOrCreateConversation(ctx, msg.SenderID)
	if err != nil {
		c.logf("get-or-create conversation for sender %s failed, dropping event: %v", msg.SenderID, err)
		return
	}
	if c.currentGen() != gen {
		return
	}
	if conv.ID == "" {
		conv.ID = msg.ConversationID
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = msg.CreatedAt
	}
	// A concurrent adoption may have landed first; never overwrite an
	// entry that already carries unread counts.
	c.Conversations.UpsertIfAbsent(conv)
	msg.ConversationID = conv.ID
	c.applyNewMessage(msg)
}

func (c *Client) applyNewMessage(msg Message) {
	if !c.Messages.Add(msg.ConversationID, msg) {
		// Duplicate delivery: the first copy already did all of this.
		return
	}
	updatedAt := msg.CreatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	preview := msg.Content
	if msg.IsDeleted {
		preview = ""
	}
	c.Conversations.Patch(msg.ConversationID, ConversationPatch{
		LastMessagePreview:  &preview,
		LastMessageSenderID: &msg.SenderID,
		UpdatedAt:           &updatedAt,
	})
	counted := c.Unread.OnNewMessage(msg.ConversationID, msg.SenderID)
	if counted && !c.focused() {
		c.alerter.Notify(buildAlert(msg.SenderName, msg.Content, msg.ConversationID, c.alertBodyLimit))
	}
}

func (c *Client) onMessagesRead(env Envelope) {
	var p MessagesReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logf("dropping malformed messages-read payload: %v", err)
		return
	}
	c.Messages.MarkAllRead(p.ConversationID)
}

func (c *Client) onTyping(start bool) func(Envelope) {
	return func(env Envelope) {
		var p TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logf("dropping malformed typing payload: %v", err)
			return
		}
		c.Presence.SetTyping(p.ConversationID, p.UserID, start)
	}
}

func (c *Client) onPresence(online bool) func(Envelope) {
	return func(env Envelope) {
		var p PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logf("dropping malformed presence payload: %v", err)
			return
		}
		c.Presence.SetOnline(p.UserID, online)
	}
}

func (c *Client) onReaction(added bool) func(Envelope) {
	return func(env Envelope) {
		var p ReactionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logf("dropping malformed reaction payload: %v", err)
			return
		}
		if added {
			c.Messages.AddReaction(p.ConversationID, p.MessageID, p.Emoji, p.UserID)
		} else {
			c.Messages.RemoveReaction(p.ConversationID, p.MessageID, p.Emoji, p.UserID)
		}
	}
}

func (c *Client) onMessageEdited(env Envelope) {
	var p NewMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logf("dropping malformed message-edited payload: %v", err)
		return
	}
	conversationID := p.ConversationID
	if conversationID == "" {
		conversationID = p.Message.ConversationID
	}
	c.Messages.Update(conversationID, p.Message)
}

func (c *Client) onMessageDeleted(env Envelope) {
	var p MessageDeletedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logf("dropping malformed message-deleted payload: %v", err)
		return
	}
	c.Messages.Delete(p.ConversationID, p.MessageID)
}

func (c *Client) onNewNotification(env Envelope) {
	var p NotificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logf("dropping malformed new-notification payload: %v", err)
		return
	}
	n := p.Notification
	if n.ID == "" {
		c.logf("dropping new-notification event without id")
		return
	}
	if c.suppresses(n) {
		// The user is already looking at the conversation this would
		// announce: acknowledge it server-side and keep it out of the
		// list and the unread count.
		go c.markRemoteRead(n.ID)
		return
	}
	c.Notifications.Insert(n)
}

// suppresses reports whether the notification targets the conversation
// currently being viewed.
func (c *Client) suppresses(n Notification) bool {
	if n.Type != "message" {
		return false
	}
	active := c.Conversations.Active()
	return active != "" && n.Data["conversationId"] == active
}

func (c *Client) markRemoteRead(notificationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()
	if err := c.remote.MarkNotificationRead(ctx, notificationID); err != nil {
		c.logf("mark suppressed notification %s read failed: %v", notificationID, err)
	}
}

func (c *Client) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
