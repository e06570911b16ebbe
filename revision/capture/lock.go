package capture

import "sync"

// subjectLocks 进程内按主体串行化保留清理与写入
//
// 条目按引用计数回收，长时间运行不会积累已不再使用的锁。
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

type subjectLock struct {
	mu   sync.Mutex
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*subjectLock)}
}

// lock 获取主体锁，返回解锁函数
func (l *subjectLocks) lock(subject string) func() {
	l.mu.Lock()
	entry, ok := l.locks[subject]
	if !ok {
		entry = &subjectLock{}
		l.locks[subject] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, subject)
		}
		l.mu.Unlock()
	}
}

// size 当前持有或等待中的主体数
func (l *subjectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
