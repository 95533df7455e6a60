package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEChunk 发送不带事件类型的数据块
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	return writeSSE(w, flusher, "", payload)
}

// SendSSEEvent 发送带事件类型的SSE消息；返回错误表示客户端已断开
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	return writeSSE(w, flusher, event, payload)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return fmt.Errorf("write sse event: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse data: %w", err)
	}
	flusher.Flush()
	return nil
}
