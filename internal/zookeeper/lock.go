// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-zookeeper/zk"
)

// DistributedLock 基于临时顺序节点实现的分布式锁，会话断开时锁自动释放
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /stockgate/locks/item-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，并确保锁路径存在
func NewDistributedLock(conn *Conn, root, resourceID string) (*DistributedLock, error) {
	lockPath := strings.TrimRight(root, "/") + "/" + resourceID
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，拿不到则阻塞直到前一个节点被删除或 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}

		prev, ok := predecessor(children, myNode)
		if !ok {
			l.abandon()
			return errors.New("lock node vanished, session may have expired")
		}
		if prev == "" {
			return nil
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

// predecessor 返回排在 mine 之前的节点，mine 排第一时返回空串。
// 受保护节点名带有 GUID 前缀，必须按顺序号而不是整个名字排序。
func predecessor(children []string, mine string) (string, bool) {
	sorted := append([]string(nil), children...)
	sort.Slice(sorted, func(i, j int) bool {
		return sequenceOf(sorted[i]) < sequenceOf(sorted[j])
	})
	for i, child := range sorted {
		if child == mine {
			if i == 0 {
				return "", true
			}
			return sorted[i-1], true
		}
	}
	return "", false
}

// sequenceOf 解析 ZooKeeper 附加在节点名末尾的 10 位顺序号
func sequenceOf(node string) int64 {
	if len(node) < 10 {
		return -1
	}
	n, err := strconv.ParseInt(node[len(node)-10:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
