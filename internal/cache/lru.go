package cache

import (
	"time"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// entry is one cached scan in the recency list.
type entry struct {
	key        domain.CacheKey
	id         string
	path       string // relative to the cache directory
	size       int64
	lastAccess time.Time
	seq        int64
	prev       *entry
	next       *entry
}

// lruList orders entries by recency. It is not safe for concurrent use;
// Cache guards it with its mutex.
type lruList struct {
	head *entry // most recently used
	tail *entry // least recently used
}

func (l *lruList) moveToFront(e *entry) {
	if e == l.head {
		return
	}
	l.remove(e)
	l.addToFront(e)
}

func (l *lruList) addToFront(e *entry) {
	e.next = l.head
	e.prev = nil
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

func (l *lruList) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
