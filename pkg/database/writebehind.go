package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

var ErrQueueClosed = errors.New("write-behind queue is closed")

// Job is one durable write. Jobs run at most once; a failure is counted and logged,
// never retried in place.
type Job struct {
	Name     string
	Instance string
	Run      func(ctx context.Context) error
}

type QueueConfig struct {
	Size         int
	Workers      int
	WriteTimeout time.Duration
}

func QueueConfigFromEnv() QueueConfig {
	return QueueConfig{
		Size:         env.GetEnvPositiveIntOrDefault("PERSIST_QUEUE_SIZE", 1024),
		Workers:      env.GetEnvPositiveIntOrDefault("PERSIST_WORKERS", 2),
		WriteTimeout: env.GetEnvDurationOrDefault("PERSIST_WRITE_TIMEOUT", 5*time.Second),
	}
}

type QueueStats struct {
	Enqueued    uint64     `json:"enqueued"`
	Written     uint64     `json:"written"`
	Failed      uint64     `json:"failed"`
	Dropped     uint64     `json:"dropped"`
	Pending     int        `json:"pending"`
	Capacity    int        `json:"capacity"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastJob     string     `json:"last_failed_job,omitempty"`
}

// Divergent reports whether any write was lost, meaning durable state may lag the
// live mirror.
func (s QueueStats) Divergent() bool {
	return s.Failed > 0 || s.Dropped > 0
}

// WriteBehind decouples live traffic from durable storage: producers never block,
// a full queue drops the job and counts it. Jobs of one instance always land on
// the same worker, so they are written in the order they were enqueued.
type WriteBehind struct {
	shards   []chan Job
	capacity int
	timeout  time.Duration
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	enqueued atomic.Uint64
	written  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64

	errMu       sync.Mutex
	lastError   string
	lastErrorAt time.Time
	lastJob     string
}

func NewWriteBehind(cfg QueueConfig) *WriteBehind {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	perShard := cfg.Size / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	w := &WriteBehind{
		shards:   make([]chan Job, cfg.Workers),
		capacity: perShard * cfg.Workers,
		timeout:  cfg.WriteTimeout,
	}
	for i := range w.shards {
		w.shards[i] = make(chan Job, perShard)
		w.wg.Add(1)
		go w.worker(w.shards[i])
	}
	return w
}

func (w *WriteBehind) shard(instance string) chan Job {
	if len(w.shards) == 1 {
		return w.shards[0]
	}
	h := fnv.New32a()
	h.Write([]byte(instance))
	return w.shards[h.Sum32()%uint32(len(w.shards))]
}

// Enqueue hands a job to the workers. It returns false when the job was dropped.
func (w *WriteBehind) Enqueue(job Job) bool {
	if job.Run == nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.shard(job.Instance) <- job:
		w.enqueued.Add(1)
		return true
	default:
		w.dropped.Add(1)
		log.Print(nil).WithFields(logrus.Fields{
			"job":      job.Name,
			"instance": job.Instance,
		}).Warn("write-behind queue full, dropping write")
		return false
	}
}

func (w *WriteBehind) worker(jobs <-chan Job) {
	defer w.wg.Done()
	for job := range jobs {
		w.run(job)
	}
}

func (w *WriteBehind) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in write job: %v", rec)
			}
		}()
		return job.Run(ctx)
	}()
	if err == nil {
		w.written.Add(1)
		return
	}

	w.failed.Add(1)
	w.errMu.Lock()
	w.lastError = err.Error()
	w.lastErrorAt = time.Now()
	w.lastJob = job.Name
	w.errMu.Unlock()

	log.Print(nil).WithFields(logrus.Fields{
		"job":      job.Name,
		"instance": job.Instance,
	}).WithError(err).Error("write-behind job failed")
}

func (w *WriteBehind) Stats() QueueStats {
	stats := QueueStats{
		Enqueued: w.enqueued.Load(),
		Written:  w.written.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
		Capacity: w.capacity,
	}
	for _, ch := range w.shards {
		stats.Pending += len(ch)
	}
	w.errMu.Lock()
	if w.lastError != "" {
		at := w.lastErrorAt
		stats.LastError = w.lastError
		stats.LastErrorAt = &at
		stats.LastJob = w.lastJob
	}
	w.errMu.Unlock()
	return stats
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to expire.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrQueueClosed
	}
	w.closed = true
	for _, ch := range w.shards {
		close(ch)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
