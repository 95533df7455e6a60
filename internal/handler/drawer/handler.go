package drawer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chat-drawer/backend/internal/service/chat"
	drawerservice "github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
	recordingservice "github.com/zhouzirui/chat-drawer/backend/internal/service/recording"
	"github.com/zhouzirui/chat-drawer/backend/pkg/utils"
)

// Handler 聊天抽屉的HTTP处理器
type Handler struct {
	drawers *drawerservice.Service
}

// New 创建抽屉处理器
func New(drawers *drawerservice.Service) *Handler {
	return &Handler{drawers: drawers}
}

// RegisterRoutes 注册会话、消息与录音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Post("/messages", h.handleSend)
		r.Post("/recommendation", h.handleRecommendation)
		r.Post("/messages/{messageID}/actions/{index}", h.handleActivateAction)

		r.Get("/recording", h.handleRecordingSnapshot)
		r.Post("/recording/begin", h.handleRecordingBegin)
		r.Post("/recording/move", h.handleRecordingMove)
		r.Post("/recording/end", h.handleRecordingEnd)
	})
}

type pointerPayload struct {
	Y *float64 `json:"y"`
}

// handleListSessions 列出打开的抽屉
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.drawers.List(r.Context()))
}

// handleCreateSession 打开新的抽屉，personaId 可省略
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	panel, err := h.drawers.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session":   panel.Info(),
		"chat":      panel.ChatSnapshot(),
		"recording": panel.RecordingSnapshot(),
	})
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, panel.ChatSnapshot())
}

// handleCloseSession 关闭抽屉，取消待发送的回复并释放麦克风
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.drawers.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSend 发送用户消息；无效或正在输入时返回 accepted=false
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Content string           `json:"content"`
		Type    chat.MessageType `json:"type"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, accepted := panel.Session().Send(payload.Content, payload.Type)
	resp := map[string]any{"accepted": accepted}
	if accepted {
		resp["message"] = msg
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleRecommendation 立即追加推荐卡片
func (h *Handler) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}

	msg, accepted := panel.Session().RequestRecommendation()
	resp := map[string]any{"accepted": accepted}
	if accepted {
		resp["message"] = msg
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleActivateAction 触发卡片按钮
func (h *Handler) handleActivateAction(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid action index")
		return
	}

	if err := panel.Session().ActivateAction(chi.URLParam(r, "messageID"), index); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (h *Handler) handleRecordingSnapshot(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, panel.RecordingSnapshot())
}

// handleRecordingBegin 按下录音按钮，会阻塞直到麦克风授权完成
func (h *Handler) handleRecordingBegin(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	y, ok := decodePointer(w, r)
	if !ok {
		return
	}

	if err := panel.PressRecord(r.Context(), y); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, panel.RecordingSnapshot())
}

// handleRecordingMove 更新指针位置，判断是否进入取消区域
func (h *Handler) handleRecordingMove(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	y, ok := decodePointer(w, r)
	if !ok {
		return
	}

	panel.MovePointer(y)
	utils.RespondJSON(w, http.StatusOK, panel.RecordingSnapshot())
}

// handleRecordingEnd 松开录音按钮；完成的录音作为语音消息发送
func (h *Handler) handleRecordingEnd(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.lookup(w, r)
	if !ok {
		return
	}

	release, ended := panel.ReleaseRecord()
	resp := map[string]any{
		"ended":     ended,
		"recording": panel.RecordingSnapshot(),
	}
	if ended {
		resp["result"] = release.Result
		if release.Message != nil {
			resp["message"] = release.Message
		}
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*drawerservice.Panel, bool) {
	panel, err := h.drawers.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	return panel, true
}

func decodePointer(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var payload pointerPayload
	if err := utils.DecodeJSON(r, &payload, false); err != nil || payload.Y == nil {
		utils.RespondError(w, http.StatusBadRequest, "y is required")
		return 0, false
	}
	return *payload.Y, true
}

// respondServiceError 将领域错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	utils.RespondError(w, StatusFor(err), err.Error())
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, drawerservice.ErrSessionNotFound),
		errors.Is(err, chatservice.ErrMessageNotFound),
		errors.Is(err, chatservice.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, drawerservice.ErrPersonaNotFound):
		return http.StatusBadRequest
	case errors.Is(err, recordingservice.ErrMicrophoneBusy):
		return http.StatusConflict
	case errors.Is(err, recordingservice.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, recordingservice.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
