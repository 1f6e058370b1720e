package model

import "Huddle/internal/pkg/docstore"

// Collections
const (
	UsersCollection         = "users"
	RoomsCollection         = "rooms"
	ConversationsCollection = "conversations"
	messagesSegment         = "messages"
	typingSegment           = "typing"
)

// Document field names shared by readers and writers.
const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhotoURL      = "photoURL"
	FieldLastNudgeFrom = "lastNudgeFrom"
	FieldLastNudgeAt   = "lastNudgeAt"
	FieldLastNudgeID   = "lastNudgeId"

	FieldOrder        = "order"
	FieldAllowedUsers = "allowedUsers"
	FieldCreatedAt    = "createdAt"

	FieldMessageCount    = "messageCount"
	FieldReadCounts      = "readCounts"
	FieldLastSeen        = "lastSeen"
	FieldLastMessageAt   = "lastMessageAt"
	FieldLastMessageText = "lastMessageText"
	FieldLastSenderID    = "lastSenderId"
	FieldLastNudge       = "lastNudge"

	FieldUserID     = "userId"
	FieldUserName   = "userName"
	FieldUserAvatar = "userAvatar"
	FieldText       = "text"
	FieldType       = "type"
	FieldAttachment = "attachment"
	FieldTimestamp  = "timestamp"
	FieldReplyTo    = "replyTo"
	FieldReactions  = "reactions"
	FieldIsPinned   = "isPinned"
	FieldIsEdited   = "isEdited"

	FieldIsTyping  = "isTyping"
	FieldUpdatedAt = "updatedAt"
)

func UserPath(userID string) string {
	return docstore.Join(UsersCollection, userID)
}

func RoomPath(roomID string) string {
	return docstore.Join(RoomsCollection, roomID)
}

func ConversationPath(conversationID string) string {
	return docstore.Join(ConversationsCollection, conversationID)
}

func MessagesCollection(conversationID string) string {
	return docstore.Join(ConversationsCollection, conversationID, messagesSegment)
}

func MessagePath(conversationID, messageID string) string {
	return docstore.Join(MessagesCollection(conversationID), messageID)
}

func TypingCollection(conversationID string) string {
	return docstore.Join(ConversationsCollection, conversationID, typingSegment)
}

func TypingPath(conversationID, userID string) string {
	return docstore.Join(TypingCollection(conversationID), userID)
}

// ReadCountField addresses one viewer's entry of the readCounts map.
func ReadCountField(userID string) string {
	return FieldReadCounts + "." + userID
}

func LastSeenField(userID string) string {
	return FieldLastSeen + "." + userID
}
