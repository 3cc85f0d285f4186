package service

import (
	"math"
	"sync"
)

// Pair is an ordered currency pair; a rate converts an amount of From into To.
type Pair struct {
	From string
	To   string
}

func (p Pair) String() string {
	return p.From + p.To
}

// RateTable holds direct rates from the feed and the derived rates memoised
// while resolving pairs. It is replaced as a whole on every refresh.
type RateTable struct {
	mutex sync.RWMutex
	rates map[Pair]float64
}

func NewRateTable() *RateTable {
	return &RateTable{rates: make(map[Pair]float64)}
}

func (table *RateTable) Get(from, to string) (float64, bool) {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	rate, ok := table.rates[Pair{from, to}]
	return rate, ok
}

func (table *RateTable) Set(from, to string, rate float64) {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	table.rates[Pair{from, to}] = rate
}

// SetIfAbsent stores rate unless the pair already has one, and returns the rate
// the table holds afterwards.
func (table *RateTable) SetIfAbsent(from, to string, rate float64) float64 {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	if existing, ok := table.rates[Pair{from, to}]; ok {
		return existing
	}
	table.rates[Pair{from, to}] = rate
	return rate
}

// Replace swaps in a new set of rates. The table takes ownership of rates.
func (table *RateTable) Replace(rates map[Pair]float64) {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	table.rates = rates
}

func (table *RateTable) Reset() {
	table.Replace(make(map[Pair]float64))
}

func (table *RateTable) Len() int {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	return len(table.rates)
}

// Snapshot copies the table keyed by the concatenated pair, e.g. "USDEUR".
// Infinite and NaN rates, the reciprocals of zero quotes, are left out.
func (table *RateTable) Snapshot() map[string]float64 {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	snapshot := make(map[string]float64, len(table.rates))
	for pair, rate := range table.rates {
		if math.IsInf(rate, 0) || math.IsNaN(rate) {
			continue
		}
		snapshot[pair.String()] = rate
	}
	return snapshot
}
