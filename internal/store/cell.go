package store

import "sync"

// Cell наблюдаемое одиночное значение, например открытая задача.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	ok    bool
	subs  []*cellSub[T]
}

type cellSub[T any] struct {
	fn func(T, bool)
}

// NewCell создаёт пустую ячейку.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{}
}

// Get возвращает значение и признак его наличия.
func (c *Cell[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.ok
}

// Set записывает значение и уведомляет подписчиков.
func (c *Cell[T]) Set(v T) {
	c.store(v, true)
}

// Clear очищает ячейку.
func (c *Cell[T]) Clear() {
	var zero T
	c.store(zero, false)
}

// Swap заменяет значение результатом fn, если ячейка не пуста и fn вернула true.
func (c *Cell[T]) Swap(fn func(T) (T, bool)) bool {
	c.mu.Lock()
	if !c.ok {
		c.mu.Unlock()
		return false
	}
	v, changed := fn(c.value)
	if !changed {
		c.mu.Unlock()
		return false
	}
	c.value = v
	subs := append([]*cellSub[T](nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v, true)
	}
	return true
}

// Subscribe регистрирует fn, вызываемую после каждой записи.
func (c *Cell[T]) Subscribe(fn func(v T, ok bool)) (cancel func()) {
	sub := &cellSub[T]{fn: fn}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == sub {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cell[T]) store(v T, ok bool) {
	c.mu.Lock()
	c.value = v
	c.ok = ok
	subs := append([]*cellSub[T](nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v, ok)
	}
}
