package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

// multipart 表单中除文件外字段的余量
const formOverhead = 64 * 1024

type ChatHandler struct {
	chatService  *service.ChatService
	audioService *service.AudioService
}

func NewChatHandler(chatService *service.ChatService, audioService *service.AudioService) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		audioService: audioService,
	}
}

// History 房间历史消息
// GET /api/v1/chat/history?room=&limit=&before=
func (h *ChatHandler) History(c *gin.Context) {
	var query dto.ChatHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, err := h.chatService.History(&query)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoom) {
			response.ErrorWithCode(c, response.CodeParamError, service.ChatInvalidRoom, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"messages": items})
}

// SendMessage 通过 REST 发送文字消息，与 websocket 的 chat:message 等价
// POST /api/v1/chat/message
func (h *ChatHandler) SendMessage(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	item, err := h.chatService.SendText(c.Request.Context(), identity, req.RoomID, req.Content)
	if err != nil {
		h.handleSendError(c, err)
		return
	}

	response.Success(c, item)
}

// UploadAudio 上传语音消息
// POST /api/v1/chat/upload-audio (multipart: audio, room_id)
func (h *ChatHandler) UploadAudio(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	maxSize := h.audioService.MaxSize()
	if c.Request.ContentLength > maxSize+formOverhead {
		response.ErrorWithCode(c, response.CodeParamError, service.AudioFileTooLarge, "音频文件过大")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+formOverhead)

	if err := c.Request.ParseMultipartForm(maxSize + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithCode(c, response.CodeParamError, service.AudioFileTooLarge, "音频文件过大")
			return
		}
		response.ErrorWithCode(c, response.CodeParamError, service.AudioInvalidFile, "请上传音频文件")
		return
	}

	roomID, err := h.chatService.ValidateRoom(c.Request.PostFormValue("room_id"))
	if err != nil {
		response.ErrorWithCode(c, response.CodeParamError, service.ChatInvalidRoom, err.Error())
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		response.ErrorWithCode(c, response.CodeParamError, service.AudioInvalidFile, "请上传音频文件")
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		response.ErrorWithCode(c, response.CodeParamError, service.AudioFileTooLarge, "音频文件过大")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		response.ErrorWithCode(c, response.CodeParamError, service.AudioInvalidFile, "音频文件读取失败")
		return
	}

	stored, err := h.audioService.Save(c.Request.Context(), &service.AudioUpload{
		Data:         data,
		Filename:     header.Filename,
		DeclaredMIME: header.Header.Get("Content-Type"),
	})
	if err != nil {
		var audioErr *service.AudioError
		if errors.As(err, &audioErr) {
			response.ErrorWithCode(c, response.CodeParamError, audioErr.Code, audioErr.Message)
			return
		}
		log.Error().Err(err).Int64("user_id", identity.ID).Msg("save audio failed")
		response.ErrorWithCode(c, response.CodeServerError, service.ChatStorageFailed, "语音保存失败")
		return
	}

	item, err := h.chatService.SendAudio(c.Request.Context(), identity, roomID, stored)
	if err != nil {
		// 消息没有保存，文件不再有引用
		if rmErr := h.audioService.Remove(stored.URL); rmErr != nil {
			log.Warn().Err(rmErr).Str("url", stored.URL).Msg("remove unsaved audio failed")
		}
		h.handleSendError(c, err)
		return
	}

	response.Success(c, item)
}

// DeleteMessage 删除自己的消息
// DELETE /api/v1/chat/messages/:id
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的消息 ID")
		return
	}

	if err := h.chatService.Delete(c.Request.Context(), userID, id); err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrNotMessageOwner):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

func (h *ChatHandler) handleSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidContent):
		response.ErrorWithCode(c, response.CodeParamError, service.ChatInvalidContent, err.Error())
	case errors.Is(err, service.ErrInvalidRoom):
		response.ErrorWithCode(c, response.CodeParamError, service.ChatInvalidRoom, err.Error())
	case errors.Is(err, service.ErrChatStorageError):
		response.ErrorWithCode(c, response.CodeServerError, service.ChatStorageFailed, service.ErrChatStorageError.Error())
	default:
		response.ServerError(c, "")
	}
}
