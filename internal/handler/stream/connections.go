package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// client 包装一个WebSocket连接，保证同一时刻只有一个写入者
type client struct {
	sessionID string
	conn      *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newClient(sessionID string, conn *websocket.Conn) *client {
	return &client{sessionID: sessionID, conn: conn}
}

func (c *client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// close 发送关闭帧后断开连接，可重复调用
func (c *client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

// ConnectionManager WebSocket连接管理器，每个会话只保留一个连接
type ConnectionManager struct {
	connections map[string]*client
	mu          sync.RWMutex
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*client),
	}
}

// add 添加连接
func (cm *ConnectionManager) add(c *client) {
	cm.mu.Lock()
	old, exists := cm.connections[c.sessionID]
	cm.connections[c.sessionID] = c
	cm.mu.Unlock()

	// 如果已存在连接，先关闭旧连接
	if exists && old != c {
		old.close(websocket.CloseNormalClosure, "replaced by a newer connection")
	}
}

// get 获取连接
func (cm *ConnectionManager) get(sessionID string) (*client, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	c, exists := cm.connections[sessionID]
	return c, exists
}

// remove 移除连接；只有仍是当前连接时才删除
func (cm *ConnectionManager) remove(c *client) {
	cm.mu.Lock()
	if current, exists := cm.connections[c.sessionID]; exists && current == c {
		delete(cm.connections, c.sessionID)
	}
	cm.mu.Unlock()

	c.close(websocket.CloseNormalClosure, "")
}

// Len 当前连接数
func (cm *ConnectionManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll 关闭所有连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	clients := cm.connections
	cm.connections = make(map[string]*client)
	cm.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}
