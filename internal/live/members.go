package live

import (
	"strconv"
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/shout-live-go/pkg/util/typeutil"
)

const displayNamePrefix = "user"

// memberName 是单个会话标识的显示名槽位，名字只会被写入一次。
type memberName struct {
	once sync.Once
	name atomic.String
}

// Directory 维护会话标识到匿名显示名的映射。
type Directory struct {
	counter atomic.Uint64
	names   *typeutil.ConcurrentMap[string, *memberName]
}

func NewDirectory() *Directory {
	return &Directory{
		names: typeutil.NewConcurrentMap[string, *memberName](),
	}
}

// DisplayNameFor 返回已有显示名，未见过的标识分配一个新的 user<N>。
// 同一标识并发首次访问时只会消耗一个序号，所有调用方得到同一个名字。
func (d *Directory) DisplayNameFor(sid string) string {
	slot, _ := d.names.GetOrInsert(sid, &memberName{})
	slot.once.Do(func() {
		slot.name.Store(displayNamePrefix + strconv.FormatUint(d.counter.Inc(), 10))
	})
	return slot.name.Load()
}

// Lookup 只查询，不分配。
func (d *Directory) Lookup(sid string) (string, bool) {
	slot, ok := d.names.Get(sid)
	if !ok {
		return "", false
	}
	name := slot.name.Load()
	return name, name != ""
}

// Forget 删除标识的显示名，之后再次出现会分配新的序号。
func (d *Directory) Forget(sid string) {
	d.names.Remove(sid)
}

// Len 返回当前持有显示名的标识数量。
func (d *Directory) Len() int {
	return d.names.Len()
}
