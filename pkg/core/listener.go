package core

import "sync"

type EventFunc func(msg any)

// Listener base struct for all classes with support feedback
type Listener struct {
	mu     sync.Mutex
	events []EventFunc
}

func (l *Listener) Listen(f EventFunc) {
	l.mu.Lock()
	l.events = append(l.events, f)
	l.mu.Unlock()
}

func (l *Listener) Fire(msg any) {
	l.mu.Lock()
	events := l.events
	l.mu.Unlock()

	for _, f := range events {
		f(msg)
	}
}
