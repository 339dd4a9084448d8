package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/dto"
	"Go_Drop/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) ListConversations(c *gin.Context) {
	conversations, err := h.messages.ListConversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *MessageHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	conversation, err := h.messages.CreateConversation(c.Request.Context(), currentUserID(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (h *MessageHandler) DeleteConversation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.messages.DeleteConversation(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var q dto.ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	messages, err := h.messages.ListMessages(c.Request.Context(), currentUserID(c), id, q.Before, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	msg, err := h.messages.SendMessage(c.Request.Context(), currentUserID(c), id, service.SendMessageInput{
		Type:     req.Type,
		Content:  req.Content,
		FileID:   req.FileID,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.messages.DeleteMessage(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
