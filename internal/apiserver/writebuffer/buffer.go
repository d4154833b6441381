// Package writebuffer 批量持久化 Run 文档
//
// Buffer 在进程内缓存 Run 文档，所有读写都经过缓存：
//   - 读：总是返回最新的缓存状态（read-your-writes），即使尚未刷盘
//   - 写：Mutate 在 per-run 互斥锁内对副本执行修改函数，只做内存操作；
//     修改后的副本不满足 Run 结构约束时被丢弃，缓存保留上一份合法文档
//   - 刷盘：定时、累计修改数达到阈值或 Close 时写回 RunStore，失败指数退避重试
//
// 缓存中的 *model.Run 按写时复制处理，从不原地修改，
// 因此刷盘协程可以在不持有 per-run 锁的情况下读取快照。
// 任何 RunStore 调用都不会在持有 per-run 锁时发生。
package writebuffer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
	"match-admin/pkg/logging"
)

// MutateFunc 在 per-run 锁内执行的修改函数
//
// 参数是缓存文档的副本，返回 changed=false 时副本被丢弃；返回错误时不做任何修改。
// 函数内不允许执行任何可能阻塞的 I/O。
type MutateFunc func(run *model.Run) (changed bool, err error)

type entry struct {
	run       *model.Run
	dirty     bool
	mutations int
	version   uint64
}

// Buffer Run 文档写缓冲
type Buffer struct {
	store   storage.RunStore
	cfg     Config
	logger  *logging.Logger
	metrics *Metrics

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex
	epoch   uint64 // 每次驱逐递增，用于丢弃驱逐前读到的旧文档

	flushMu sync.Mutex
	flushCh chan struct{}
}

// New 创建写缓冲
func New(store storage.RunStore, cfg *Config, logger *logging.Logger, metrics *Metrics) *Buffer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	_ = c.Validate()
	if logger == nil {
		logger = logging.Default("writebuffer")
	}
	return &Buffer{
		store:   store,
		cfg:     c,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]*entry),
		locks:   make(map[string]*sync.Mutex),
		flushCh: make(chan struct{}, 1),
	}
}

// lockFor 返回 Run 的互斥锁，锁对象创建后不再删除
func (b *Buffer) lockFor(id string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

// load 确保 Run 已在缓存中，存储读取发生在任何锁之外
func (b *Buffer) load(ctx context.Context, id string) error {
	for {
		b.mu.Lock()
		_, ok := b.entries[id]
		epoch := b.epoch
		b.mu.Unlock()
		if ok {
			return nil
		}

		run, err := b.store.GetRun(ctx, id)
		if err != nil {
			return err
		}

		b.mu.Lock()
		if b.epoch != epoch {
			b.mu.Unlock()
			continue
		}
		if _, ok := b.entries[id]; !ok {
			b.entries[id] = &entry{run: run}
			b.setGauges()
		}
		b.mu.Unlock()
		return nil
	}
}

// Mutate 在 Run 的临界区内执行 fn，返回修改后的快照
func (b *Buffer) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Run, error) {
	for {
		if err := b.load(ctx, id); err != nil {
			return nil, err
		}
		run, retry, err := b.apply(id, fn)
		if retry {
			continue
		}
		return run, err
	}
}

// apply 持有 per-run 锁执行一次读-改-写，缓存项在此期间被驱逐时返回 retry
func (b *Buffer) apply(id string, fn MutateFunc) (*model.Run, bool, error) {
	lock := b.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	e, ok := b.entries[id]
	var current *model.Run
	if ok {
		current = e.run
	}
	b.mu.Unlock()
	if !ok {
		return nil, true, nil
	}

	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return working, false, nil
	}
	if err := storage.CheckRun(working); err != nil {
		b.countViolation("mutate")
		b.logger.WithRunID(id).WithError(err).Error("[writebuffer.mutate] rejecting invalid run document")
		return nil, false, err
	}

	b.mu.Lock()
	if b.entries[id] != e {
		b.mu.Unlock()
		return nil, true, nil
	}
	e.run = working
	e.version++
	e.dirty = true
	e.mutations++
	full := e.mutations >= b.cfg.MaxPendingMutations
	b.setGauges()
	b.mu.Unlock()

	if full {
		b.requestFlush()
	}
	return working.Clone(), false, nil
}

// Insert 同步写入新 Run 并放入缓存
func (b *Buffer) Insert(ctx context.Context, run *model.Run) error {
	if err := b.store.InsertRun(ctx, run); err != nil {
		return err
	}
	b.mu.Lock()
	if _, ok := b.entries[run.ID]; !ok {
		b.entries[run.ID] = &entry{run: run.Clone()}
		b.setGauges()
	}
	b.mu.Unlock()
	return nil
}

// Get 返回 Run 的最新快照
func (b *Buffer) Get(ctx context.Context, id string) (*model.Run, error) {
	for {
		if err := b.load(ctx, id); err != nil {
			return nil, err
		}
		b.mu.Lock()
		e, ok := b.entries[id]
		var run *model.Run
		if ok {
			run = e.run
		}
		b.mu.Unlock()
		if ok {
			return run.Clone(), nil
		}
	}
}

// List 查询存储并用缓存中的较新版本覆盖，保证列表同样满足 read-your-writes
func (b *Buffer) List(ctx context.Context, filter storage.RunFilter) ([]*model.Run, error) {
	storeFilter := filter
	storeFilter.Limit = 0
	runs, err := b.store.FindRuns(ctx, storeFilter)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(runs))
	b.mu.Lock()
	for i, r := range runs {
		seen[r.ID] = true
		if e, ok := b.entries[r.ID]; ok {
			runs[i] = e.run.Clone()
		}
	}
	// 刚插入、尚未被存储查询看到的 Run
	for id, e := range b.entries {
		if !seen[id] {
			runs = append(runs, e.run.Clone())
		}
	}
	b.mu.Unlock()

	out := runs[:0]
	for _, r := range runs {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (b *Buffer) requestFlush() {
	select {
	case b.flushCh <- struct{}{}:
	default:
	}
}

type snapshot struct {
	id      string
	entry   *entry
	run     *model.Run
	version uint64
}

// Flush 将所有脏文档写回存储，返回未能写入的 Run 错误集合
func (b *Buffer) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.FlushDuration.Observe(time.Since(start).Seconds())
		}
	}()

	b.mu.Lock()
	pending := make([]snapshot, 0)
	for id, e := range b.entries {
		if !e.dirty {
			continue
		}
		pending = append(pending, snapshot{id: id, entry: e, run: e.run, version: e.version})
		e.dirty = false
		e.mutations = 0
	}
	b.setGauges()
	b.mu.Unlock()

	var errs []error
	for _, snap := range pending {
		err := b.write(ctx, snap.run)
		switch {
		case err == nil:
			b.countAttempt("ok")
			b.evictIfDone(snap)
		case errors.Is(err, storage.ErrNotFound):
			// 已被外部归档进程移出主存储
			b.countAttempt("gone")
			b.evict(snap, "archived")
			b.logger.WithRunID(snap.id).Info("[writebuffer.evict] run no longer in store")
		case errors.Is(err, storage.ErrSchemaViolation):
			// 缓存中的文档都通过了 Mutate 校验，这里是存储端规则与内存校验不一致
			b.countAttempt("invalid")
			b.countViolation("flush")
			b.evict(snap, "schema_violation")
			b.logger.WithRunID(snap.id).WithError(err).Error("[writebuffer.flush] dropping run document rejected by store",
				"games", snap.run.Results.Games(), "tasks", len(snap.run.Tasks))
			errs = append(errs, fmt.Errorf("run %s: %w", snap.id, err))
		default:
			b.countAttempt("error")
			if b.metrics != nil {
				b.metrics.FlushFailures.Inc()
			}
			b.redirty(snap)
			b.logger.WithRunID(snap.id).WithError(err).Warn("[writebuffer.flush] giving up until next pass")
			errs = append(errs, fmt.Errorf("run %s: %w", snap.id, err))
		}
	}
	return errors.Join(errs...)
}

// write 带退避重试的单文档写入，NotFound 与 SchemaViolation 不重试
func (b *Buffer) write(ctx context.Context, run *model.Run) error {
	bo := b.newBackoff()
	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		start := time.Now()
		err = b.store.ReplaceRun(ctx, run)
		b.logger.FlushLog(run.ID, attempt+1, time.Since(start), err)
		if err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrSchemaViolation) {
			return err
		}
		if attempt == b.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(bo.Duration()):
		}
	}
	return err
}

// newBackoff 单次写入的退避序列：RetryBase 起按 2 倍增长，上限 RetryMax，带抖动
func (b *Buffer) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    b.cfg.RetryBase,
		Max:    b.cfg.RetryMax,
		Factor: 2,
		Jitter: true,
	}
}

func (b *Buffer) redirty(snap snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries[snap.id] == snap.entry {
		snap.entry.dirty = true
		b.setGauges()
	}
}

// evictIfDone 已结束且刷盘后未再修改的 Run 不再缓存
func (b *Buffer) evictIfDone(snap snapshot) {
	if !snap.run.IsFinished() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[snap.id]
	if e != snap.entry || e.dirty || e.version != snap.version {
		return
	}
	b.removeLocked(snap.id, "finished")
}

func (b *Buffer) evict(snap snapshot, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries[snap.id] == snap.entry {
		b.removeLocked(snap.id, reason)
	}
}

func (b *Buffer) removeLocked(id, reason string) {
	delete(b.entries, id)
	b.epoch++
	if b.metrics != nil {
		b.metrics.Evictions.WithLabelValues(reason).Inc()
	}
	b.setGauges()
}

func (b *Buffer) countViolation(stage string) {
	if b.metrics != nil {
		b.metrics.SchemaViolations.WithLabelValues(stage).Inc()
	}
}

func (b *Buffer) countAttempt(result string) {
	if b.metrics != nil {
		b.metrics.FlushAttempts.WithLabelValues(result).Inc()
	}
}

// setGauges 调用方持有 b.mu
func (b *Buffer) setGauges() {
	if b.metrics == nil {
		return
	}
	dirty := 0
	for _, e := range b.entries {
		if e.dirty {
			dirty++
		}
	}
	b.metrics.BufferedRuns.Set(float64(len(b.entries)))
	b.metrics.DirtyRuns.Set(float64(dirty))
}

// Run 后台刷盘循环，ctx 取消时返回（不做最终刷盘，由 Close 负责）
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	b.logger.Info("[writebuffer.start]", "flush_interval", b.cfg.FlushInterval, "max_pending", b.cfg.MaxPendingMutations)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.flushCh:
		}
		if err := b.Flush(ctx); err != nil && ctx.Err() == nil {
			b.logger.WithError(err).Warn("[writebuffer.flush] pass finished with failures")
		}
	}
}

// Close 同步刷盘所有缓存修改，仍有未写入的 Run 时返回错误
func (b *Buffer) Close(ctx context.Context) error {
	err := b.Flush(ctx)
	if n := b.Dirty(); n > 0 {
		b.logger.WithError(err).Error("[writebuffer.close] unflushed runs remain", "count", n)
		if err == nil {
			return fmt.Errorf("writebuffer: %d runs not flushed", n)
		}
		return fmt.Errorf("writebuffer: %d runs not flushed: %w", n, err)
	}
	b.logger.Info("[writebuffer.close] drained")
	return nil
}

// Dirty 尚未刷盘的 Run 数
func (b *Buffer) Dirty() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.entries {
		if e.dirty {
			n++
		}
	}
	return n
}

// Len 缓存中的 Run 数
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
