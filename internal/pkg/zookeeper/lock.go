// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	zlog "github.com/rs/zerolog/log"
)

const lockRoot = "/storefront_locks" // 所有分布式锁的根节点

var ErrLockTimeout = errors.New("zookeeper: timeout waiting for lock")

// Connect 建立 ZooKeeper 会话
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("zookeeper: connect %v: %w", servers, err)
	}
	return conn, nil
}

// PassLocker 基于临时顺序节点的互斥锁，用于串行化跨实例的批处理（投递、清理）
type PassLocker struct {
	conn *zk.Conn
	wait time.Duration
}

func NewPassLocker(conn *zk.Conn, wait time.Duration) *PassLocker {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &PassLocker{conn: conn, wait: wait}
}

// Acquire 阻塞直到拿到名为 name 的锁，返回的 release 必须被调用
func (l *PassLocker) Acquire(ctx context.Context, name string) (func(), error) {
	lockPath := lockRoot + "/" + name
	if err := l.ensurePath(lockRoot); err != nil {
		return nil, err
	}
	if err := l.ensurePath(lockPath); err != nil {
		return nil, err
	}

	// 1. 创建临时顺序节点，会话断开时自动删除
	node, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("zookeeper: create sequential node: %w", err)
	}
	release := func() {
		if err := l.conn.Delete(node, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			zlog.Warn().Err(err).Str("node", node).Msg("failed to release zookeeper lock")
		}
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	myName := strings.TrimPrefix(node, lockPath+"/")

	for {
		// 2. 比较序号；protected 节点带 GUID 前缀，按 "lock-" 之后的序号排序
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			release()
			return nil, fmt.Errorf("zookeeper: list children: %w", err)
		}
		sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myName {
				idx = i
				break
			}
		}
		if idx < 0 {
			release()
			return nil, errors.New("zookeeper: own lock node disappeared")
		}
		if idx == 0 {
			return release, nil
		}

		// 3. 监听前一个节点
		exists, _, events, err := l.conn.ExistsW(lockPath + "/" + children[idx-1])
		if err != nil {
			release()
			return nil, fmt.Errorf("zookeeper: watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-events:
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-timer.C:
			release()
			return nil, ErrLockTimeout
		}
	}
}

func (l *PassLocker) ensurePath(path string) error {
	_, err := l.conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("zookeeper: create %s: %w", path, err)
	}
	return nil
}

func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}
