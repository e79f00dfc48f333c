// Package timer runs delayed and periodic jobs off a single min-heap.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

const DefaultResolution = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Name     string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x any) {
	task := x.(*TimerTask)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}

// TimerManager fires due tasks on its own goroutine. A periodic task never
// overlaps itself: the next run is scheduled only after the callback returns.
type TimerManager struct {
	queue      TimerQueue
	byId       map[int64]*TimerTask
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	m := &TimerManager{
		queue:      make(TimerQueue, 0),
		byId:       make(map[int64]*TimerTask),
		nextId:     1,
		resolution: resolution,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.process()
	return m
}

// AddTimer schedules callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(name string, delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Name:     name,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	m.byId[task.Id] = task
	return task.Id
}

// RemoveTimer cancels a task. A run already in progress completes.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.byId[timerId]
	if !ok {
		return
	}
	delete(m.byId, timerId)
	if task.index >= 0 {
		heap.Remove(&m.queue, task.index)
	}
}

func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.byId)
}

// Stop halts scheduling and waits for running callbacks.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer close(m.done)
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				m.run(task)
			}
		}
	}
}

// due pops every task whose time has come.
func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []*TimerTask
	for m.queue.Len() > 0 && !m.queue[0].Execute.After(now) {
		task := heap.Pop(&m.queue).(*TimerTask)
		if task.Interval <= 0 {
			delete(m.byId, task.Id)
		}
		out = append(out, task)
	}
	return out
}

func (m *TimerManager) run(task *TimerTask) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		task.Callback()
		if task.Interval > 0 {
			m.reschedule(task)
		}
	}()
}

func (m *TimerManager) reschedule(task *TimerTask) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// 已被移除或已停止
	if _, ok := m.byId[task.Id]; !ok {
		return
	}
	select {
	case <-m.stop:
		return
	default:
	}
	task.Execute = time.Now().Add(task.Interval)
	heap.Push(&m.queue, task)
}
