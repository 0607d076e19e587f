package order

import "sort"

// bucketKey 标识一个 side/tick 分组。
type bucketKey struct {
	side Side
	tick int64
}

// Book 按 side/tick 分组的挂单快照，组内按 OrderIndex 升序（FIFO）。
type Book struct {
	buckets map[bucketKey][]LiveOrder
	keys    []bucketKey
}

// NewBook 对快照分组；传入的切片不会被修改。
func NewBook(orders []LiveOrder) *Book {
	b := &Book{buckets: make(map[bucketKey][]LiveOrder)}
	for _, o := range orders {
		k := bucketKey{side: o.Side, tick: o.Tick}
		if _, ok := b.buckets[k]; !ok {
			b.keys = append(b.keys, k)
		}
		b.buckets[k] = append(b.buckets[k], o)
	}
	for _, k := range b.keys {
		bucket := b.buckets[k]
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].OrderIndex < bucket[j].OrderIndex })
	}
	sort.Slice(b.keys, func(i, j int) bool {
		if b.keys[i].side != b.keys[j].side {
			return b.keys[i].side < b.keys[j].side
		}
		return b.keys[i].tick < b.keys[j].tick
	})
	return b
}

// Bucket returns the FIFO-ordered orders at side/tick.
func (b *Book) Bucket(side Side, tick int64) []LiveOrder {
	return b.buckets[bucketKey{side: side, tick: tick}]
}

// Has reports whether any live order rests at side/tick.
func (b *Book) Has(side Side, tick int64) bool {
	return len(b.buckets[bucketKey{side: side, tick: tick}]) > 0
}

// Each walks buckets in deterministic (side, tick) order.
func (b *Book) Each(fn func(side Side, tick int64, orders []LiveOrder)) {
	for _, k := range b.keys {
		fn(k.side, k.tick, b.buckets[k])
	}
}

// Len returns the number of orders in the snapshot.
func (b *Book) Len() int {
	n := 0
	for _, bucket := range b.buckets {
		n += len(bucket)
	}
	return n
}
