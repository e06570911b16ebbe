// Package snowflake 生成修订主键
//
// ID 的高位是毫秒时间戳，因此同一进程内生成的 ID 严格递增，
// 可以作为 created_at 相同的修订之间的稳定次序。
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = -1 ^ (-1 << workerIDBits)     // 31
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits) // 31
	maxSequence     = -1 ^ (-1 << sequenceBits)     // 4095

	workerIDShift      = sequenceBits
	datacenterIDShift  = sequenceBits + workerIDBits
	timestampLeftShift = sequenceBits + workerIDBits + datacenterIDBits

	// maxBackwardDrift 时钟回拨不超过该值时等待追平，超过则报错
	maxBackwardDrift = 5 * time.Millisecond
)

// ErrClockMovedBackwards 时钟回拨超过容忍范围
var ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards, refusing to generate id")

// Generator Snowflake ID生成器，并发安全
type Generator struct {
	mux           sync.Mutex
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
	now           func() time.Time
}

// Option 生成器选项
type Option func(*Generator)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator 创建ID生成器
func NewGenerator(datacenterID, workerID int64, opts ...Option) (*Generator, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, errors.New("snowflake: datacenter ID out of range")
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.New("snowflake: worker ID out of range")
	}

	g := &Generator{
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

// NextID 生成下一个ID
func (g *Generator) NextID() (int64, error) {
	g.mux.Lock()
	defer g.mux.Unlock()

	now := g.millis()
	if now < g.lastTimestamp {
		if time.Duration(g.lastTimestamp-now)*time.Millisecond > maxBackwardDrift {
			return 0, ErrClockMovedBackwards
		}
		now = g.waitUntil(g.lastTimestamp)
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 本毫秒序列号用完
			now = g.waitUntil(g.lastTimestamp + 1)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now
	return ((now - epoch) << timestampLeftShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

// waitUntil 自旋直到时钟到达 target 毫秒
func (g *Generator) waitUntil(target int64) int64 {
	now := g.millis()
	for now < target {
		time.Sleep(100 * time.Microsecond)
		now = g.millis()
	}
	return now
}

// Parts ID 的组成部分
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse 解析ID
func Parse(id int64) Parts {
	return Parts{
		Time:         time.UnixMilli((id >> timestampLeftShift) + epoch).UTC(),
		DatacenterID: (id >> datacenterIDShift) & maxDatacenterID,
		WorkerID:     (id >> workerIDShift) & maxWorkerID,
		Sequence:     id & maxSequence,
	}
}
