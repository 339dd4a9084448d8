package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"Go_Drop/internal/realtime"
	"Go_Drop/model"
)

// MessageService stores conversations shared by all devices of a user.
type MessageService struct {
	db     *gorm.DB
	events EventPublisher
}

func NewMessageService(db *gorm.DB, events EventPublisher) *MessageService {
	if events == nil {
		events = nopPublisher{}
	}
	return &MessageService{db: db, events: events}
}

func (s *MessageService) ListConversations(ctx context.Context, userID uint64) ([]model.Conversation, error) {
	conversations := make([]model.Conversation, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (s *MessageService) CreateConversation(ctx context.Context, userID uint64, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if len(title) > 120 {
		return nil, fmt.Errorf("%w: title too long", ErrInvalidInput)
	}
	conversation := &model.Conversation{UserID: userID, Title: title}
	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, err
	}
	s.events.Publish(userID, realtime.EventConversationNew, conversation)
	return conversation, nil
}

func (s *MessageService) getConversation(ctx context.Context, userID, conversationID uint64) (*model.Conversation, error) {
	var conversation model.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// DeleteConversation removes a conversation and its messages. Files sent
// in it stay in the drive.
func (s *MessageService) DeleteConversation(ctx context.Context, userID, conversationID uint64) error {
	conversation, err := s.getConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversation.ID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(conversation).Error
	})
	if err != nil {
		return err
	}
	s.events.Publish(userID, realtime.EventConversationDel, map[string]uint64{"id": conversation.ID})
	return nil
}

// ListMessages returns up to limit messages older than the message id
// before (0 means newest), newest first.
func (s *MessageService) ListMessages(ctx context.Context, userID, conversationID, before uint64, limit int) ([]model.Message, error) {
	if _, err := s.getConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).
		Preload("File").
		Where("conversation_id = ?", conversationID)
	if before > 0 {
		query = query.Where("id < ?", before)
	}
	messages := make([]model.Message, 0, limit)
	err := query.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

type SendMessageInput struct {
	Type     string
	Content  string
	FileID   uint64
	DeviceID string
}

// SendMessage appends a message to a conversation and broadcasts it to
// the owner's devices.
func (s *MessageService) SendMessage(ctx context.Context, userID, conversationID uint64, in SendMessageInput) (*model.Message, error) {
	conversation, err := s.getConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgType := in.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	msg := &model.Message{
		ConversationID: conversation.ID,
		UserID:         userID,
		DeviceID:       in.DeviceID,
		Type:           msgType,
		Content:        in.Content,
	}
	switch msgType {
	case model.MessageTypeText:
		if strings.TrimSpace(in.Content) == "" {
			return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
		}
	case model.MessageTypeFile:
		if in.FileID == 0 {
			return nil, fmt.Errorf("%w: fileId required", ErrInvalidInput)
		}
		var file model.FileRecord
		err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", in.FileID, userID).First(&file).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		if err != nil {
			return nil, err
		}
		msg.FileID = &file.ID
		msg.File = &file
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, msgType)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("File").Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(conversation).Updates(map[string]interface{}{
			"last_message_at": &now,
			"updated_at":      now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(userID, realtime.EventMessageNew, msg)
	return msg, nil
}

func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID uint64) error {
	var msg model.Message
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", messageID, userID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&msg).Error; err != nil {
		return err
	}
	s.events.Publish(userID, realtime.EventMessageDeleted, map[string]uint64{
		"id":             msg.ID,
		"conversationId": msg.ConversationID,
	})
	return nil
}
