package websocket

import (
	"live-auction/pkg/logger"
	"sync"
)

// ConnectionManager tracks live sockets so shutdown can close them all.
// Fan-out itself happens in the feed hub.
type ConnectionManager struct {
	connections map[string]*WebSocketConnection
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn *WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.connections[conn.ID()] = conn
	cm.log.Debug("Connection registered", "conn_id", conn.ID(), "user_id", conn.UserID())
}

func (cm *ConnectionManager) UnregisterConnection(conn *WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	delete(cm.connections, conn.ID())
	cm.log.Debug("Connection unregistered", "conn_id", conn.ID(), "user_id", conn.UserID())
}

func (cm *ConnectionManager) Len() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// CloseAll tells every open connection the server is going away.
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.RLock()
	conns := make([]*WebSocketConnection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mutex.RUnlock()

	for _, c := range conns {
		c.Shutdown()
	}
	cm.log.Info("Closing websocket connections", "count", len(conns))
}
