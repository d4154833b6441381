package registry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig etcd 配置
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// Etcd 基于 etcd key 的封禁名单
//
// key 格式：{prefix}/workers/blocked/{worker}
type Etcd struct {
	kv     clientv3.KV
	closer func() error
	prefix string
}

// NewEtcd 连接 etcd 并创建封禁名单
func NewEtcd(cfg EtcdConfig) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[registry.etcd] connected endpoints=%v", cfg.Endpoints)
	e := NewEtcdFromKV(client, cfg.Prefix)
	e.closer = client.Close
	return e, nil
}

// NewEtcdFromKV 从已有 KV 创建
func NewEtcdFromKV(kv clientv3.KV, prefix string) *Etcd {
	if prefix == "" {
		prefix = "/match"
	}
	return &Etcd{kv: kv, prefix: strings.TrimSuffix(prefix, "/")}
}

func (e *Etcd) key(worker string) string {
	return fmt.Sprintf("%s/workers/blocked/%s", e.prefix, worker)
}

func (e *Etcd) IsBlocked(ctx context.Context, worker string) (bool, error) {
	resp, err := e.kv.Get(ctx, e.key(worker), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("registry: check %s: %w", worker, err)
	}
	return resp.Count > 0, nil
}

func (e *Etcd) Block(ctx context.Context, worker string) error {
	_, err := e.kv.Put(ctx, e.key(worker), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (e *Etcd) Unblock(ctx context.Context, worker string) error {
	_, err := e.kv.Delete(ctx, e.key(worker))
	return err
}

// Close 关闭底层连接
func (e *Etcd) Close() error {
	if e.closer != nil {
		return e.closer()
	}
	return nil
}
