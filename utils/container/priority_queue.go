package container

import "container/heap"

// items 实现heap.Interface，排序规则由less给出
type items[T any] struct {
	data []T
	less func(a, b T) bool
}

func (h items[T]) Len() int { return len(h.data) }

func (h items[T]) Less(i, j int) bool { return h.less(h.data[i], h.data[j]) }

func (h items[T]) Swap(i, j int) { h.data[i], h.data[j] = h.data[j], h.data[i] }

func (h *items[T]) Push(x any) {
	h.data = append(h.data, x.(T))
}

func (h *items[T]) Pop() any {
	old := h.data
	n := len(old)
	v := old[n-1]
	var zero T
	old[n-1] = zero // 避免内存泄漏
	h.data = old[:n-1]
	return v
}

// PriorityQueue 优先队列
// 功能：按less给出的顺序弹出元素，less(a, b)为true表示a先于b弹出
// 说明：非线程安全，由调用方加锁
type PriorityQueue[T any] struct {
	h items[T]
}

// NewPriorityQueue 创建优先队列
// 参数：less-排序函数
// 返回：新创建的优先队列指针
func NewPriorityQueue[T any](less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{h: items[T]{data: make([]T, 0), less: less}}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return q.h.Len()
}

// First 获取队首元素，不移除
// 说明：队列为空时panic
func (q *PriorityQueue[T]) First() T {
	return q.h.data[0]
}

// Push 加入元素（简单添加）
// 说明：添加后需要调用Heapify()来重新构建堆结构
func (q *PriorityQueue[T]) Push(value T) {
	q.h.data = append(q.h.data, value)
}

// Heapify 重新构建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.h)
}

// HeapPush 加入元素（堆操作）
func (q *PriorityQueue[T]) HeapPush(value T) {
	heap.Push(&q.h, value)
}

// HeapPop 弹出队首元素（堆操作）
func (q *PriorityQueue[T]) HeapPop() T {
	return heap.Pop(&q.h).(T)
}

// Drain 按顺序弹出全部元素
// 返回：排好序的元素列表，队列清空
func (q *PriorityQueue[T]) Drain() []T {
	out := make([]T, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, q.HeapPop())
	}
	return out
}
