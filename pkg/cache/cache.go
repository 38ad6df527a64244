package cache

import (
	"container/list"
	"errors"
	"sync"
)

var ErrKeyExists = errors.New("key already exists in cache")

// Cache is a weighted least recently used cache. Inserting past the weight
// budget evicts the least recently used entries.
type Cache interface {
	// GetWeight returns the total weight of all cached entries
	GetWeight() int

	// GetBudget returns the maximum total weight
	GetBudget() int

	// Insert adds a new entry. ErrKeyExists is returned if key is cached.
	Insert(key string, value interface{}, weight int) error

	// Retrieve gets an entry and marks it as most recently used
	Retrieve(key string) (interface{}, bool)

	// Clear removes all entries
	Clear()
}

type entry struct {
	key    string
	value  interface{}
	weight int
}

type cache struct {
	mu sync.Mutex

	budget int
	weight int

	order  *list.List
	lookup map[string]*list.Element
}

// NewCache returns a new Cache with the provided weight budget.
func NewCache(budget int) Cache {
	return &cache{
		budget: budget,
		order:  list.New(),
		lookup: make(map[string]*list.Element),
	}
}

func (c *cache) GetWeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.weight
}

func (c *cache) GetBudget() int {
	return c.budget
}

func (c *cache) Insert(key string, value interface{}, weight int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup[key]; ok {
		return ErrKeyExists
	}

	c.lookup[key] = c.order.PushFront(&entry{
		key:    key,
		value:  value,
		weight: weight,
	})
	c.weight += weight

	for c.weight > c.budget {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		evicted := c.order.Remove(oldest).(*entry)
		delete(c.lookup, evicted.key)
		c.weight -= evicted.weight
	}

	return nil
}

func (c *cache) Retrieve(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.lookup[key]
	if !ok {
		return nil, false
	}

	c.order.MoveToFront(element)
	return element.Value.(*entry).value, true
}

func (c *cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.lookup = make(map[string]*list.Element)
	c.weight = 0
}
