package cache

import (
	"container/list"
	"sync"

	"github.com/cms-dev/cms-sub005/lib/logger"
)

type valHolder[TValue any] struct {
	Value *TValue
	Error error

	Size          uint64
	LoadingStatus *sync.WaitGroup
	ListPosition  *list.Element
}

// LRUSizeCache is a simple key value LRU cache with a size bound on values.
//
// Getter is called to load the value for a key that is not cached yet;
// it must return the value (or an error) together with the value size.
// If Remover is specified, it is called for cleanly loaded values before
// they are evicted.
type LRUSizeCache[TKey comparable, TValue any] struct {
	mutex        sync.Mutex
	valueHolders map[TKey]*valHolder[TValue]

	getter  func(TKey) (*TValue, error, uint64)
	remover func(TKey, *TValue)

	sizeBound uint64
	totalSize uint64

	recentRank *list.List
}

func NewLRUSizeCache[TKey comparable, TValue any](
	sizeBound uint64,
	getter func(TKey) (*TValue, error, uint64),
	remover func(TKey, *TValue),
) *LRUSizeCache[TKey, TValue] {
	return &LRUSizeCache[TKey, TValue]{
		valueHolders: make(map[TKey]*valHolder[TValue]),

		getter:  getter,
		remover: remover,

		sizeBound: sizeBound,

		recentRank: list.New(),
	}
}

// Get returns the item from the cache, loading it first if it is absent.
// Concurrent gets for the same key wait for a single load.
func (c *LRUSizeCache[TKey, TValue]) Get(key TKey) (*TValue, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	valueHolder, ok := c.valueHolders[key]
	if !ok {
		valueHolder = &valHolder[TValue]{
			LoadingStatus: &sync.WaitGroup{},
		}
		valueHolder.LoadingStatus.Add(1)
		c.valueHolders[key] = valueHolder
		go c.loadAbsentValue(key)
	}

	if valueHolder.LoadingStatus != nil {
		loadingStatus := valueHolder.LoadingStatus
		c.mutex.Unlock()
		loadingStatus.Wait()
		c.mutex.Lock()
		valueHolder = c.valueHolders[key]
		if valueHolder == nil {
			// Evicted between load and reacquire, very unlikely.
			c.mutex.Unlock()
			val, err := c.Get(key)
			c.mutex.Lock()
			return val, err
		}
	}

	c.itemUsed(key, valueHolder)
	return valueHolder.Value, valueHolder.Error
}

// Remove evicts the key from the cache. Missing keys are ignored, so the
// caller may use it as an invalidation hint.
func (c *LRUSizeCache[TKey, TValue]) Remove(key TKey) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	valueHolder, ok := c.valueHolders[key]
	if !ok || valueHolder.LoadingStatus != nil {
		return
	}
	c.removeSingleItem(key)
}

// Insert places a preloaded value inside the cache.
// The value must not be present, otherwise ErrItemAlreadyExists is returned.
func (c *LRUSizeCache[TKey, TValue]) Insert(key TKey, val *TValue, size uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.valueHolders[key]; ok {
		return &ErrItemAlreadyExists{key: key}
	}
	c.valueHolders[key] = &valHolder[TValue]{
		Value: val,
		Size:  size,
	}
	c.totalSize += size
	c.itemUsed(key, c.valueHolders[key])
	c.removeItemsIfNeeded()
	return nil
}

// Mutex must not be locked, value must be absent with active waitgroup.
func (c *LRUSizeCache[TKey, TValue]) loadAbsentValue(key TKey) {
	value, err, size := c.getter(key)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	valueHolder := c.valueHolders[key]

	if valueHolder.Value != nil || valueHolder.Error != nil {
		logger.Panic("Error in LRUSizeCache. loadAbsentValue is called for already loaded key, key: %v", key)
	}

	valueHolder.Value = value
	valueHolder.Error = err

	c.totalSize += size
	valueHolder.Size = size
	valueHolder.LoadingStatus.Done()
	valueHolder.LoadingStatus = nil // It will stay in other pointers

	c.itemUsed(key, valueHolder)
	c.removeItemsIfNeeded()
}

// Mutex must be locked
func (c *LRUSizeCache[TKey, TValue]) itemUsed(key TKey, valueHolder *valHolder[TValue]) {
	if valueHolder.ListPosition != nil {
		c.recentRank.MoveToBack(valueHolder.ListPosition)
	} else {
		valueHolder.ListPosition = c.recentRank.PushBack(key)
	}
}

// Mutex must be locked
func (c *LRUSizeCache[TKey, TValue]) removeItemsIfNeeded() {
	elem := c.recentRank.Front()
	for c.totalSize > c.sizeBound && elem != nil {
		key := elem.Value.(TKey)
		elem = elem.Next()
		c.removeSingleItem(key)
	}
}

// Mutex must be locked, key must be fully loaded
func (c *LRUSizeCache[TKey, TValue]) removeSingleItem(key TKey) {
	valueHolder := c.valueHolders[key]
	if c.remover != nil && valueHolder.Error == nil {
		c.remover(key, valueHolder.Value)
	}

	delete(c.valueHolders, key)
	c.totalSize -= valueHolder.Size
	c.recentRank.Remove(valueHolder.ListPosition)
}
