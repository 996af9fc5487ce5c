// Package scheduler реализует отложенный запуск задач по ключу (trailing-edge debounce).
//
// Каждый ключ - независимый канал: новая задача в пределах паузы отменяет
// предыдущую задачу того же ключа, задачи разных ключей друг на друга не влияют.
// Запуски внутри одного ключа выполняются строго последовательно.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay пауза по умолчанию.
const DefaultDelay = 300 * time.Millisecond

// Task задача планировщика.
type Task struct {
	Run func()
	// OnCancel вызывается, если задача отменена до запуска: заменена новой, снята или остановлена.
	OnCancel func()
}

// Debouncer планировщик задач по ключу.
type Debouncer struct {
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*entry
	locks   map[string]*keyLock
	stopped bool
	running sync.WaitGroup
}

type entry struct {
	task  Task
	timer *time.Timer
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewDebouncer создаёт планировщик с паузой delay. delay <= 0 означает DefaultDelay.
func NewDebouncer(delay time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay:   delay,
		logger:  logger,
		pending: make(map[string]*entry),
		locks:   make(map[string]*keyLock),
	}
}

// Delay возвращает паузу планировщика.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule откладывает запуск task для key. Возвращает true, если задача
// заменила ещё не запущенную задачу того же ключа.
func (d *Debouncer) Schedule(key string, task Task) (superseded bool) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.logger.Debug("Debouncer stopped, task dropped", "key", key)
		cancelled(task)
		return false
	}

	prev, ok := d.pending[key]
	if ok {
		prev.timer.Stop()
		delete(d.pending, key)
	}

	e := &entry{task: task}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.pending[key] = e
	d.mu.Unlock()

	if ok {
		d.logger.Debug("Pending task superseded", "key", key)
		cancelled(prev.task)
	}
	return ok
}

// Cancel снимает ожидающую задачу key. Уже запущенная задача не прерывается.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		cancelled(e.task)
	}
	return ok
}

// Flush немедленно запускает ожидающую задачу key в текущей горутине.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	return d.fire(key, e)
}

// FlushAll немедленно запускает все ожидающие задачи.
func (d *Debouncer) FlushAll() int {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key := range d.pending {
		keys = append(keys, key)
	}
	d.mu.Unlock()

	n := 0
	for _, key := range keys {
		if d.Flush(key) {
			n++
		}
	}
	return n
}

// Pending сообщает, ожидает ли запуска задача key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len возвращает количество ожидающих задач.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Wait дожидается завершения запущенных задач.
func (d *Debouncer) Wait() {
	d.running.Wait()
}

// Stop отменяет все ожидающие задачи. Новые задачи после Stop отбрасываются.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	pending := d.pending
	d.pending = make(map[string]*entry)
	d.mu.Unlock()

	for key, e := range pending {
		e.timer.Stop()
		d.logger.Debug("Pending task cancelled on stop", "key", key)
		cancelled(e.task)
	}
}

func (d *Debouncer) fire(key string, e *entry) bool {
	d.mu.Lock()
	if d.pending[key] != e {
		d.mu.Unlock()
		return false
	}
	delete(d.pending, key)

	lk, ok := d.locks[key]
	if !ok {
		lk = &keyLock{}
		d.locks[key] = lk
	}
	lk.refs++
	d.running.Add(1)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
		d.running.Done()
	}()

	lk.mu.Lock()
	defer lk.mu.Unlock()

	if e.task.Run != nil {
		e.task.Run()
	}
	return true
}

func cancelled(task Task) {
	if task.OnCancel != nil {
		task.OnCancel()
	}
}
