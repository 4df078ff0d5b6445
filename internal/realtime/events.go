package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

var textSanitizer = bluemonday.StrictPolicy()

// sanitize strips any markup from free-text fields before they are framed
// onto the wire, so a post body or message preview can never carry a script
// tag into a client's rendered DOM.
func sanitize(s string) string {
	return textSanitizer.Sanitize(s)
}

// Target selects which connections an Event is delivered to, component F's
// target spec from spec.md §4.6.
type Target interface {
	isTarget()
}

type userTarget struct{ userID uuid.UUID }

func (userTarget) isTarget() {}

// UserTarget delivers to every connection of a single user.
func UserTarget(userID uuid.UUID) Target { return userTarget{userID: userID} }

type topicTarget struct{ topic string }

func (topicTarget) isTarget() {}

// TopicTarget delivers to every connection subscribed to topic.
func TopicTarget(topic string) Target { return topicTarget{topic: topic} }

type userSetTarget struct{ userIDs []uuid.UUID }

func (userSetTarget) isTarget() {}

// UserSetTarget delivers to the union of connections of several users.
func UserSetTarget(userIDs []uuid.UUID) Target { return userSetTarget{userIDs: userIDs} }

type broadcastTarget struct{}

func (broadcastTarget) isTarget() {}

// BroadcastTarget delivers to every registered connection.
var BroadcastTarget Target = broadcastTarget{}

// PostTopic returns the topic identifier subscribers of a post listen on.
func PostTopic(postID uuid.UUID) string { return "post:" + postID.String() }

// Event is everything F can route: a wire type, a data payload, and a
// target. The target is the closed sum type (Target's unexported marker
// method); Event itself is a plain struct built by the New*Event helpers.
type Event struct {
	typ    string
	data   any
	target Target
}

func (e Event) Type() string   { return e.typ }
func (e Event) Data() any      { return e.data }
func (e Event) Target() Target { return e.target }

// NewUserEvent builds an event targeted at a single user's connections.
func NewUserEvent(userID uuid.UUID, typ string, data any) Event {
	return Event{typ: typ, data: data, target: UserTarget(userID)}
}

// NewTopicEvent builds an event targeted at a topic's subscribers.
func NewTopicEvent(topic string, typ string, data any) Event {
	return Event{typ: typ, data: data, target: TopicTarget(topic)}
}

// NewUserSetEvent builds an event targeted at a set of users.
func NewUserSetEvent(userIDs []uuid.UUID, typ string, data any) Event {
	return Event{typ: typ, data: data, target: UserSetTarget(userIDs)}
}

// NewBroadcastEvent builds an event targeted at every connection.
func NewBroadcastEvent(typ string, data any) Event {
	return Event{typ: typ, data: data, target: BroadcastTarget}
}

// Wire payloads, spec.md §6.3.

type ConnectedPayload struct {
	UserID uuid.UUID `json:"userId"`
}

type PresenceUser struct {
	UserID    uuid.UUID `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp int64     `json:"timestamp"`
}

type PresenceSnapshotPayload struct {
	Users []PresenceUser `json:"users"`
}

type UserPresenceChangedPayload struct {
	UserID    uuid.UUID `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp int64     `json:"timestamp"`
}

type SubscribedPayload struct {
	PostID uuid.UUID `json:"postId"`
}

type UnsubscribedPayload struct {
	PostID uuid.UUID `json:"postId"`
}

type NewPostPayload struct {
	PostID            uuid.UUID `json:"postId"`
	AuthorID          uuid.UUID `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	AuthorUsername    string    `json:"authorUsername"`
	Content           string    `json:"content"`
	CreatedAt         int64     `json:"createdAt"`
}

// NewPostEvent builds the broadcast-targeted new_post event, sanitizing the
// post body before it is framed onto the wire.
func NewPostEvent(postID, authorID uuid.UUID, authorDisplayName, authorUsername, content string, createdAt time.Time) Event {
	return NewBroadcastEvent("new_post", NewPostPayload{
		PostID:            postID,
		AuthorID:          authorID,
		AuthorDisplayName: authorDisplayName,
		AuthorUsername:    authorUsername,
		Content:           sanitize(content),
		CreatedAt:         createdAt.UnixMilli(),
	})
}

type PostLikedPayload struct {
	PostID            uuid.UUID `json:"postId"`
	LikedByUserID     uuid.UUID `json:"likedByUserId"`
	LikedByDisplayName string   `json:"likedByDisplayName"`
	LikedByUsername   string    `json:"likedByUsername"`
	NewLikeCount      int       `json:"newLikeCount"`
	Timestamp         int64     `json:"timestamp"`
}

// NewPostLikedEvent builds the post-topic-targeted post_liked event.
func NewPostLikedEvent(postID, likedByUserID uuid.UUID, likedByDisplayName, likedByUsername string, newLikeCount int, ts time.Time) Event {
	return NewTopicEvent(PostTopic(postID), "post_liked", PostLikedPayload{
		PostID:             postID,
		LikedByUserID:      likedByUserID,
		LikedByDisplayName: likedByDisplayName,
		LikedByUsername:    likedByUsername,
		NewLikeCount:       newLikeCount,
		Timestamp:          ts.UnixMilli(),
	})
}

type NewMessagePayload struct {
	MessageID         uuid.UUID `json:"messageId"`
	ConversationID    uuid.UUID `json:"conversationId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	SenderUsername    string    `json:"senderUsername"`
	ContentPreview    string    `json:"contentPreview"`
	Timestamp         int64     `json:"timestamp"`
}

// NewMessageEvent builds the recipient-targeted new_message event,
// sanitizing the preview text before framing.
func NewMessageEvent(recipientID, messageID, conversationID uuid.UUID, senderDisplayName, senderUsername, contentPreview string, ts time.Time) Event {
	return NewUserEvent(recipientID, "new_message", NewMessagePayload{
		MessageID:         messageID,
		ConversationID:    conversationID,
		SenderDisplayName: senderDisplayName,
		SenderUsername:    senderUsername,
		ContentPreview:    sanitize(contentPreview),
		Timestamp:         ts.UnixMilli(),
	})
}

type MessagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ReadByUserID   uuid.UUID `json:"readByUserId"`
	Timestamp      int64     `json:"timestamp"`
}

func NewMessagesReadEvent(otherParticipantID, conversationID, readByUserID uuid.UUID, ts time.Time) Event {
	return NewUserEvent(otherParticipantID, "messages_read", MessagesReadPayload{
		ConversationID: conversationID,
		ReadByUserID:   readByUserID,
		Timestamp:      ts.UnixMilli(),
	})
}

type MessageRecalledPayload struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	RecalledByUserID uuid.UUID `json:"recalledByUserId"`
	Timestamp      int64     `json:"timestamp"`
}

func NewMessageRecalledEvent(otherParticipantID, messageID, conversationID, recalledByUserID uuid.UUID, ts time.Time) Event {
	return NewUserEvent(otherParticipantID, "message_recalled", MessageRecalledPayload{
		MessageID:        messageID,
		ConversationID:   conversationID,
		RecalledByUserID: recalledByUserID,
		Timestamp:        ts.UnixMilli(),
	})
}

type TypingIndicatorPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      int64     `json:"timestamp"`
}

func NewTypingIndicatorEvent(otherParticipantID, conversationID, userID uuid.UUID, isTyping bool, ts time.Time) Event {
	return NewUserEvent(otherParticipantID, "typing_indicator", TypingIndicatorPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
		Timestamp:      ts.UnixMilli(),
	})
}

type AuthRevokedPayload struct {
	Message string `json:"message"`
}

// NewAuthRevokedEvent builds the event the rotation engine (C) fans out to
// every connection of a user on reuse detection, password change, or
// admin-forced logout.
func NewAuthRevokedEvent(userID uuid.UUID, message string) Event {
	return NewUserEvent(userID, "auth_revoked", AuthRevokedPayload{Message: message})
}

type ErrorPayload struct {
	Message string `json:"message"`
}
