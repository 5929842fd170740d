// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"sync"
)

// ConcurrentMap 是基于 sync.Map 的泛型并发 map。
// 适用于读多写少、键集合频繁变化的场景。
type ConcurrentMap[K comparable, V any] struct {
	inner sync.Map
}

func NewConcurrentMap[K comparable, V any]() *ConcurrentMap[K, V] {
	return &ConcurrentMap[K, V]{}
}

// Insert 写入或覆盖 key 对应的值。
func (m *ConcurrentMap[K, V]) Insert(key K, value V) {
	m.inner.Store(key, value)
}

// Get 读取 key 对应的值。
func (m *ConcurrentMap[K, V]) Get(key K) (V, bool) {
	var zeroValue V
	value, ok := m.inner.Load(key)
	if !ok {
		return zeroValue, false
	}
	return value.(V), true
}

// Contain 判断 key 是否存在。
func (m *ConcurrentMap[K, V]) Contain(key K) bool {
	_, ok := m.inner.Load(key)
	return ok
}

// GetOrInsert 若 key 已存在则返回已有的值与 true，否则写入 value 并返回 value 与 false。
func (m *ConcurrentMap[K, V]) GetOrInsert(key K, value V) (V, bool) {
	loaded, exist := m.inner.LoadOrStore(key, value)
	return loaded.(V), exist
}

// Remove 删除 key。
func (m *ConcurrentMap[K, V]) Remove(key K) {
	m.inner.Delete(key)
}

// GetAndRemove 删除 key，并返回删除前的值。
func (m *ConcurrentMap[K, V]) GetAndRemove(key K) (V, bool) {
	var zeroValue V
	value, ok := m.inner.LoadAndDelete(key)
	if !ok {
		return zeroValue, false
	}
	return value.(V), true
}

// CompareAndRemove 仅当 key 当前对应的值为 old 时才删除，返回是否删除成功。
// V 的动态类型必须可比较。
func (m *ConcurrentMap[K, V]) CompareAndRemove(key K, old V) bool {
	return m.inner.CompareAndDelete(key, old)
}

// Range 遍历所有键值对，回调返回 false 时提前终止。
// 遍历期间并发的写入可能可见也可能不可见。
func (m *ConcurrentMap[K, V]) Range(fn func(key K, value V) bool) {
	m.inner.Range(func(key, value any) bool {
		return fn(key.(K), value.(V))
	})
}

// Len 返回当前元素个数，需要完整遍历，仅用于统计与诊断。
func (m *ConcurrentMap[K, V]) Len() int {
	n := 0
	m.inner.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Keys 返回所有 key 的快照。
func (m *ConcurrentMap[K, V]) Keys() []K {
	keys := make([]K, 0)
	m.inner.Range(func(key, _ any) bool {
		keys = append(keys, key.(K))
		return true
	})
	return keys
}
