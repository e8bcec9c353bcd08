// internal/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"

	"stockgate/internal/pkg/logger"
)

// Conn 包装 zk.Conn
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的会话并等待其建立完成
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	c, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect zookeeper: %w", err)
	}

	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.L().Info().Strs("servers", servers).Msg("✅ Connected to ZooKeeper")
				go drain(events)
				return &Conn{Conn: c}, nil
			}
		case <-deadline:
			c.Close()
			return nil, fmt.Errorf("timeout establishing zookeeper session with %v", servers)
		}
	}
}

// drain 持续消费会话事件，避免事件通道阻塞
func drain(events <-chan zk.Event) {
	for ev := range events {
		if ev.State == zk.StateExpired || ev.State == zk.StateDisconnected {
			logger.L().Warn().Str("state", ev.State.String()).Msg("⚠️ ZooKeeper session state changed")
		}
	}
}

// ensurePath 逐级创建持久节点
func (c *Conn) ensurePath(path string) error {
	cur := ""
	for _, part := range splitPath(path) {
		cur += "/" + part
		exists, _, err := c.Exists(cur)
		if err != nil {
			return fmt.Errorf("failed to check node %s: %w", cur, err)
		}
		if exists {
			continue
		}
		if _, err := c.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create node %s: %w", cur, err)
		}
	}
	return nil
}
