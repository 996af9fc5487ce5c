// Package store содержит наблюдаемые контейнеры сущностей в памяти.
//
// Store хранит коллекцию, Cell - одиночное значение. Оба уведомляют подписчиков
// синхронно после каждой записи и не проверяют содержимое.
package store

import (
	"slices"
	"sync"
)

// Store наблюдаемая коллекция сущностей.
type Store[T any] struct {
	mu     sync.Mutex
	items  []T
	subs   map[int]func([]T)
	order  []int
	nextID int
}

// New создаёт хранилище с начальным содержимым.
func New[T any](initial ...T) *Store[T] {
	return &Store[T]{
		items: slices.Clone(initial),
		subs:  make(map[int]func([]T)),
	}
}

// Read возвращает копию текущего снимка коллекции.
func (s *Store[T]) Read() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Len возвращает размер коллекции.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Write заменяет коллекцию целиком.
func (s *Store[T]) Write(next []T) {
	s.Update(func([]T) []T { return next })
}

// Update применяет fn к текущей коллекции и записывает результат.
// fn получает копию, результат fn тоже копируется.
func (s *Store[T]) Update(fn func(prev []T) []T) {
	s.mu.Lock()
	next := slices.Clone(fn(slices.Clone(s.items)))
	s.items = next
	subs := s.subscribers()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(slices.Clone(next))
	}
}

// Subscribe регистрирует fn, вызываемую после каждой записи. Возвращает функцию отписки.
func (s *Store[T]) Subscribe(fn func([]T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
		s.order = slices.DeleteFunc(s.order, func(v int) bool { return v == id })
	}
}

func (s *Store[T]) subscribers() []func([]T) {
	subs := make([]func([]T), 0, len(s.order))
	for _, id := range s.order {
		subs = append(subs, s.subs[id])
	}
	return subs
}
