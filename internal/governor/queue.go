package governor

import "container/heap"

// outcome carries a task's final result back to the caller.
type outcome struct {
	value any
	err   error
}

type task struct {
	priority   int
	seq        uint64
	attempt    int
	maxRetries int
	do         func() (any, error)
	done       chan outcome
	cancelled  func() error
}

// taskQueue orders by priority (lower first), then submission order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q *taskQueue) push(t *task) { heap.Push(q, t) }

func (q *taskQueue) pop() *task {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*task)
}

func (q *taskQueue) drain() []*task {
	pending := make([]*task, 0, q.Len())
	for q.Len() > 0 {
		pending = append(pending, q.pop())
	}
	return pending
}
