package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/recording"
	drawerservice "github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
)

// 出站消息类型
const (
	eventChat      = "chat"
	eventRecording = "recording"
	eventResult    = "result"
	eventError     = "error"
)

// 入站消息类型
const (
	inboundText        = "text"
	inboundRecommend   = "recommend"
	inboundRecordBegin = "record_begin"
	inboundRecordMove  = "record_move"
	inboundRecordEnd   = "record_end"
	inboundAction      = "action"
)

const readTimeout = 60 * time.Second

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type textPayload struct {
	Content string `json:"content"`
}

type pointerPayload struct {
	Y float64 `json:"y"`
}

type actionPayload struct {
	MessageID string `json:"messageId"`
	Index     int    `json:"index"`
}

// handleWebSocket 处理WebSocket连接：推送快照，接收手势与消息
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	panel, err := h.drawers.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	c := newClient(sessionID, conn)
	h.conns.add(c)
	defer h.conns.remove(c)

	log.Printf("[websocket] new connection for session: %s", sessionID)

	// 连接断开时取消仍在等待麦克风授权的录音请求
	ctx, cancel := context.WithCancel(context.Background())
	var presses sync.WaitGroup
	defer func() {
		cancel()
		presses.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	chatUpdates, stopChat := panel.Session().Subscribe()
	defer stopChat()
	recordingUpdates, stopRecording := panel.Recorder().Subscribe()
	defer stopRecording()

	h.send(c, eventChat, panel.ChatSnapshot())
	h.send(c, eventRecording, panel.RecordingSnapshot())

	go h.forward(ctx, c, chatUpdates, recordingUpdates)
	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msg.Type == inboundRecordBegin {
			h.beginRecording(ctx, c, panel, &msg, &presses)
			continue
		}
		h.handleMessage(c, panel, &msg)
	}
}

// beginRecording 在后台等待麦克风授权，读循环继续处理其他消息
func (h *Handler) beginRecording(ctx context.Context, c *client, panel *drawerservice.Panel, msg *inboundMessage, presses *sync.WaitGroup) {
	var payload pointerPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(c, "invalid pointer payload")
		return
	}

	presses.Add(1)
	go func() {
		defer presses.Done()
		err := panel.PressRecord(ctx, payload.Y)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.sendResult(c, inboundRecordBegin, map[string]any{"state": panel.RecordingSnapshot().State})
	}()
}

// forward 将会话与录音快照推送给客户端；会话关闭后断开连接
func (h *Handler) forward(ctx context.Context, c *client, chatUpdates <-chan chat.Snapshot, recordingUpdates <-chan recording.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-chatUpdates:
			if !ok {
				c.close(websocket.CloseNormalClosure, "session closed")
				return
			}
			h.send(c, eventChat, snap)
		case snap, ok := <-recordingUpdates:
			if !ok {
				recordingUpdates = nil
				continue
			}
			h.send(c, eventRecording, snap)
		}
	}
}

func (h *Handler) handleMessage(c *client, panel *drawerservice.Panel, msg *inboundMessage) {
	switch msg.Type {
	case inboundText:
		var payload textPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid text payload")
			return
		}
		_, accepted := panel.Session().Send(payload.Content, chat.TypeText)
		h.sendResult(c, msg.Type, map[string]any{"accepted": accepted})

	case inboundRecommend:
		_, accepted := panel.Session().RequestRecommendation()
		h.sendResult(c, msg.Type, map[string]any{"accepted": accepted})

	case inboundRecordMove:
		var payload pointerPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid pointer payload")
			return
		}
		panel.MovePointer(payload.Y)

	case inboundRecordEnd:
		release, ended := panel.ReleaseRecord()
		data := map[string]any{"ended": ended}
		if ended {
			data["result"] = release.Result
			if release.Message != nil {
				data["message"] = release.Message
			}
		}
		h.sendResult(c, msg.Type, data)

	case inboundAction:
		var payload actionPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid action payload")
			return
		}
		if err := panel.Session().ActivateAction(payload.MessageID, payload.Index); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.sendResult(c, msg.Type, map[string]any{"activated": true})

	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) send(c *client, typ string, data any) {
	msg := outgoingMessage{
		Type:      typ,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", typ, err)
	}
}

func (h *Handler) sendResult(c *client, action string, data map[string]any) {
	data["action"] = action
	h.send(c, eventResult, data)
}

func (h *Handler) sendError(c *client, message string) {
	h.send(c, eventError, map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
