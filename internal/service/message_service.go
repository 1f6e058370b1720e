package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/consts"
	"Huddle/internal/pkg/docstore"
	"context"
	log "log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SendRequest is one outgoing message. Attachment references an already
// uploaded blob.
type SendRequest struct {
	Text       string
	Attachment *model.Attachment
	ReplyToID  string
}

// MessageService holds the message writes. None of them are transactional:
// concurrent togglers may race and readers reconcile.
type MessageService interface {
	Send(ctx context.Context, sender model.User, conversationID string, req SendRequest) (model.Message, error)
	ToggleReaction(ctx context.Context, userID, conversationID, messageID, emoji string) error
	// TogglePin pins the message, unpinning any other first, or unpins it.
	TogglePin(ctx context.Context, conversationID, messageID string) (pinned bool, err error)
	Edit(ctx context.Context, userID, conversationID, messageID, text string) error
	Delete(ctx context.Context, userID, conversationID, messageID string) error
}

type messageServiceImpl struct {
	store docstore.Store
	opts  Options
}

func NewMessageService(store docstore.Store, opts Options) MessageService {
	return &messageServiceImpl{
		store: store,
		opts:  opts.withDefaults(),
	}
}

// ValidateText checks the size and encoding limits of message text.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > consts.MaxMessageBytes {
		return ErrMessageTooLong
	}
	if utf8.RuneCountInString(text) > consts.MaxMessageRunes {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(text) {
		return ErrMessageInvalidUTF8
	}
	return nil
}

// kindOf picks the message kind from the attachment mime type.
func kindOf(att *model.Attachment) model.MessageKind {
	if att == nil {
		return model.KindText
	}
	switch {
	case strings.HasPrefix(att.MimeType, consts.MimePrefixImage):
		return model.KindImage
	case strings.HasPrefix(att.MimeType, consts.MimePrefixAudio):
		return model.KindAudio
	default:
		return model.KindText
	}
}

func (s *messageServiceImpl) Send(ctx context.Context, sender model.User, conversationID string, req SendRequest) (model.Message, error) {
	if req.Attachment == nil || req.Text != "" {
		if err := ValidateText(req.Text); err != nil {
			return model.Message{}, err
		}
	}
	if req.Attachment != nil && req.Attachment.URL == "" {
		return model.Message{}, ErrParamInvalid
	}

	now := s.opts.Now()
	msg := model.Message{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		AuthorID:        sender.ID,
		AuthorName:      sender.DisplayName(),
		AuthorAvatar:    sender.PhotoURL,
		Text:            req.Text,
		Attachment:      req.Attachment,
		Kind:            kindOf(req.Attachment),
		CreatedAt:       now,
		ClientTimestamp: now.UnixMilli(),
	}
	if req.ReplyToID != "" {
		quoted, err := s.message(ctx, conversationID, req.ReplyToID)
		if err != nil {
			return model.Message{}, err
		}
		msg.ReplyTo = &model.ReplyRef{
			ID:       quoted.ID,
			UserID:   quoted.AuthorID,
			UserName: quoted.AuthorName,
			Text:     quoted.Preview(),
		}
	}

	fields := msg.Fields()
	fields[model.FieldCreatedAt] = docstore.ServerTimestamp()
	if err := s.store.Set(ctx, model.MessagePath(conversationID, msg.ID), fields, false); err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("send").Inc()
		return model.Message{}, errors.Wrap(err, "append message")
	}

	// a separate write: other clients may see the message and the counter
	// in either order
	err := s.store.Set(ctx, model.ConversationPath(conversationID), conversationMeta(msg), true)
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("send").Inc()
		log.ErrorContext(ctx, "conversation metadata update failed", "conversation", conversationID, "message", msg.ID, "err", err)
		return msg, errors.Wrap(err, "update conversation metadata")
	}
	return msg, nil
}

// conversationMeta is the metadata merge for a newly appended message.
// Counted messages also advance the counter and the author's own cursor.
func conversationMeta(msg model.Message) docstore.Fields {
	fields := docstore.Fields{
		model.FieldLastMessageAt:   docstore.ServerTimestamp(),
		model.FieldLastMessageText: msg.Preview(),
		model.FieldLastSenderID:    msg.AuthorID,
	}
	if msg.Counted() {
		fields[model.FieldMessageCount] = docstore.Increment(1)
		fields[model.ReadCountField(msg.AuthorID)] = docstore.Increment(1)
		fields[model.LastSeenField(msg.AuthorID)] = docstore.ServerTimestamp()
	}
	return fields
}

func (s *messageServiceImpl) message(ctx context.Context, conversationID, messageID string) (model.Message, error) {
	doc, err := s.store.Get(ctx, model.MessagePath(conversationID, messageID))
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return model.Message{}, errors.Wrap(err, "read message")
	}
	return model.MessageFromDocument(conversationID, doc), nil
}

// ToggleReaction keeps one reaction per reactor: the same emoji removes it,
// another emoji replaces it.
func (s *messageServiceImpl) ToggleReaction(ctx context.Context, userID, conversationID, messageID, emoji string) error {
	if emoji == "" {
		return ErrParamInvalid
	}
	msg, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}

	reactions := make(map[string]any, len(msg.Reactions)+1)
	for uid, e := range msg.Reactions {
		reactions[uid] = e
	}
	if msg.Reactions[userID] == emoji {
		delete(reactions, userID)
	} else {
		reactions[userID] = emoji
	}

	err = s.store.Update(ctx, model.MessagePath(conversationID, messageID), docstore.Fields{
		model.FieldReactions: reactions,
	})
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("reaction").Inc()
		return s.notFoundOr(err, "toggle reaction")
	}
	return nil
}

func (s *messageServiceImpl) TogglePin(ctx context.Context, conversationID, messageID string) (bool, error) {
	msg, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return false, err
	}
	if msg.IsPinned {
		if err := s.setPinned(ctx, conversationID, messageID, false); err != nil {
			return false, err
		}
		return false, nil
	}

	pinned, err := s.store.Query(ctx, docstore.Query{
		Collection: model.MessagesCollection(conversationID),
	}.WhereEq(model.FieldIsPinned, true))
	if err != nil {
		return false, errors.Wrap(err, "query pinned messages")
	}
	for _, doc := range pinned {
		if doc.ID == messageID {
			continue
		}
		if err := s.setPinned(ctx, conversationID, doc.ID, false); err != nil && !errors.Is(err, ErrMessageNotFound) {
			return false, err
		}
	}
	if err := s.setPinned(ctx, conversationID, messageID, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *messageServiceImpl) setPinned(ctx context.Context, conversationID, messageID string, pinned bool) error {
	err := s.store.Update(ctx, model.MessagePath(conversationID, messageID), docstore.Fields{
		model.FieldIsPinned: pinned,
	})
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("pin").Inc()
		return s.notFoundOr(err, "toggle pin")
	}
	return nil
}

func (s *messageServiceImpl) Edit(ctx context.Context, userID, conversationID, messageID, text string) error {
	if err := ValidateText(text); err != nil {
		return err
	}
	msg, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID {
		return ErrNotAuthor
	}
	if msg.Kind == model.KindNudge {
		return ErrMessageNotEditable
	}
	if s.opts.Now().Sub(msg.CreatedAt) > s.opts.Chat.EditWindow {
		return ErrEditWindowClosed
	}

	err = s.store.Update(ctx, model.MessagePath(conversationID, messageID), docstore.Fields{
		model.FieldText:     text,
		model.FieldIsEdited: true,
	})
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("edit").Inc()
		return s.notFoundOr(err, "edit message")
	}
	return nil
}

// Delete is a hard delete. Counters are left alone.
func (s *messageServiceImpl) Delete(ctx context.Context, userID, conversationID, messageID string) error {
	msg, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID {
		return ErrNotAuthor
	}
	if err := s.store.Delete(ctx, model.MessagePath(conversationID, messageID)); err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("delete").Inc()
		return errors.Wrap(err, "delete message")
	}
	return nil
}

func (s *messageServiceImpl) notFoundOr(err error, op string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrMessageNotFound
	}
	return errors.Wrap(err, op)
}
