package storage

import "sync"

// BoundedQueue 定长循环队列，满时丢弃最旧元素
type BoundedQueue[T any] struct {
	data     []T
	capacity int
	mutex    sync.RWMutex
}

// NewBoundedQueue 创建定长队列
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedQueue[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push 追加元素
func (q *BoundedQueue[T]) Push(item T) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.data = append(q.data, item)
	if len(q.data) > q.capacity {
		q.data = q.data[len(q.data)-q.capacity:]
	}
}

// ReplaceLast 用新元素替换最新一个，队列为空时等同Push
func (q *BoundedQueue[T]) ReplaceLast(item T) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.data) == 0 {
		q.data = append(q.data, item)
		return
	}
	q.data[len(q.data)-1] = item
}

// Latest 最新元素
func (q *BoundedQueue[T]) Latest() (T, bool) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	var zero T
	if len(q.data) == 0 {
		return zero, false
	}
	return q.data[len(q.data)-1], true
}

// Previous 次新元素
func (q *BoundedQueue[T]) Previous() (T, bool) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	var zero T
	if len(q.data) < 2 {
		return zero, false
	}
	return q.data[len(q.data)-2], true
}

// Snapshot 从旧到新的副本
func (q *BoundedQueue[T]) Snapshot() []T {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	result := make([]T, len(q.data))
	copy(result, q.data)
	return result
}

// Len 当前元素数量
func (q *BoundedQueue[T]) Len() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return len(q.data)
}

// Cap 容量
func (q *BoundedQueue[T]) Cap() int {
	return q.capacity
}
