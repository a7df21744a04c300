package cache

import (
	"sync"

	"github.com/phantomjam/engine/internal/model"
)

// CarCache caches car rows when they are created to avoid subsequent db reads.
// Latency in these calls is critical to quickly process incoming frames.
type CarCache struct {
	m    sync.Mutex
	Cars map[int]model.Car
}

func NewCarCache() *CarCache {
	return &CarCache{
		m:    sync.Mutex{},
		Cars: make(map[int]model.Car),
	}
}

func (c *CarCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Cars = make(map[int]model.Car)
}

func (c *CarCache) Lock() {
	c.m.Lock()
}

func (c *CarCache) Unlock() {
	c.m.Unlock()
}

// GetCar looks up a car by its slot, the creation index within the run.
func (c *CarCache) GetCar(slot int) (model.Car, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if car, ok := c.Cars[slot]; ok {
		return car, true
	}
	return model.Car{}, false
}

func (c *CarCache) AddCar(car model.Car) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Cars[car.Slot] = car
}

// Len returns the number of cached cars
func (c *CarCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.Cars)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
