package connect

import (
	"slices"
	"sync"
)

// makes a copy of the list on update
// callbacks are compared by the id returned from `Add`, since funcs are not comparable
type CallbackList[T any] struct {
	mutex     sync.Mutex
	nextId    int
	ids       []int
	callbacks []T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.nextId += 1
	id := self.nextId

	nextIds := slices.Clone(self.ids)
	nextIds = append(nextIds, id)
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = append(nextCallbacks, callback)
	self.ids = nextIds
	self.callbacks = nextCallbacks
	return id
}

func (self *CallbackList[T]) Remove(id int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.ids, id)
	if i < 0 {
		// not present
		return
	}
	nextIds := slices.Clone(self.ids)
	nextIds = slices.Delete(nextIds, i, i+1)
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = slices.Delete(nextCallbacks, i, i+1)
	self.ids = nextIds
	self.callbacks = nextCallbacks
}
