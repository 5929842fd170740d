package live

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
	"github.com/lk2023060901/shout-live-go/pkg/util/typeutil"
)

// DefaultDistance 是未设置距离阈值时的缺省值。
const DefaultDistance = 100.0

// Location 是一对经纬度。
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (l Location) String() string {
	return fmt.Sprintf("Location(lat=%s, lon=%s)", formatFloat(l.Lat), formatFloat(l.Lon))
}

// Presence 是单个会话的位置状态。
//
// Location 为 nil 且 Global 为 true 表示不做位置过滤；设置位置会把 Global 置为 false。
type Presence struct {
	Location *Location `json:"location,omitempty"`
	Global   bool      `json:"global"`
	Distance float64   `json:"distance"`
}

// DefaultPresence 返回新会话的初始状态。
func DefaultPresence() Presence {
	return Presence{Global: true, Distance: DefaultDistance}
}

func (p Presence) String() string {
	location := "none"
	if p.Location != nil {
		location = p.Location.String()
	}
	return fmt.Sprintf("location=%s global=%t distance=%s", location, p.Global, formatFloat(p.Distance))
}

type presenceEntry struct {
	mu    sync.RWMutex
	state Presence
}

// PresenceStore 维护会话标识到位置状态的映射。每个标识独立加锁，字段级后写者胜出。
type PresenceStore struct {
	entries *typeutil.ConcurrentMap[string, *presenceEntry]
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		entries: typeutil.NewConcurrentMap[string, *presenceEntry](),
	}
}

// Create 为标识创建缺省状态；已存在时保持不变。
func (s *PresenceStore) Create(sid string) {
	s.entries.GetOrInsert(sid, &presenceEntry{state: DefaultPresence()})
}

// Remove 删除标识的状态。
func (s *PresenceStore) Remove(sid string) {
	s.entries.Remove(sid)
}

// Get 返回状态的副本。
func (s *PresenceStore) Get(sid string) (Presence, bool) {
	entry, ok := s.entries.Get(sid)
	if !ok {
		return Presence{}, false
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.state, true
}

// SetLocation 解析 "<lat> <lon>" 并写入；解析失败时状态不变。
func (s *PresenceStore) SetLocation(sid string, text string) (Location, error) {
	loc, err := ParseLocation(text)
	if err != nil {
		return Location{}, err
	}
	err = s.update(sid, func(p *Presence) {
		p.Location = &Location{Lat: loc.Lat, Lon: loc.Lon}
		p.Global = false
	})
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

// SetDistance 解析单个非负数并写入距离阈值；解析失败时状态不变。
func (s *PresenceStore) SetDistance(sid string, text string) (float64, error) {
	d, err := ParseDistance(text)
	if err != nil {
		return 0, err
	}
	if err := s.update(sid, func(p *Presence) { p.Distance = d }); err != nil {
		return 0, err
	}
	return d, nil
}

// ClearLocation 清除位置并恢复 global。
func (s *PresenceStore) ClearLocation(sid string) error {
	return s.update(sid, func(p *Presence) {
		p.Location = nil
		p.Global = true
	})
}

// Describe 返回当前状态的可读描述。
func (s *PresenceStore) Describe(sid string) (string, error) {
	p, ok := s.Get(sid)
	if !ok {
		return "", merr.WrapErrMemberNotFound(sid)
	}
	return p.String(), nil
}

// Len 返回当前持有状态的标识数量。
func (s *PresenceStore) Len() int {
	return s.entries.Len()
}

func (s *PresenceStore) update(sid string, fn func(p *Presence)) error {
	entry, ok := s.entries.Get(sid)
	if !ok {
		return merr.WrapErrMemberNotFound(sid)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.state)
	return nil
}

// ParseLocation 把以空白分隔的两个有限浮点数解析为经纬度。
// 失败时返回可用 errors.Is 匹配 merr.ErrLocationInvalid 的错误。
func ParseLocation(text string) (Location, error) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return Location{}, merr.WrapErrLocationInvalid(text, fmt.Sprintf("expected 2 values, got %d", len(parts)))
	}
	lat, err := parseFinite(parts[0])
	if err != nil {
		return Location{}, merr.WrapErrLocationInvalid(text, "latitude "+err.Error())
	}
	lon, err := parseFinite(parts[1])
	if err != nil {
		return Location{}, merr.WrapErrLocationInvalid(text, "longitude "+err.Error())
	}
	return Location{Lat: lat, Lon: lon}, nil
}

// ParseDistance 把单个有限、非负的浮点数解析为距离阈值。
// 失败时返回可用 errors.Is 匹配 merr.ErrDistanceInvalid 的错误。
func ParseDistance(text string) (float64, error) {
	parts := strings.Fields(text)
	if len(parts) != 1 {
		return 0, merr.WrapErrDistanceInvalid(text, fmt.Sprintf("expected 1 value, got %d", len(parts)))
	}
	d, err := parseFinite(parts[0])
	if err != nil {
		return 0, merr.WrapErrDistanceInvalid(text, err.Error())
	}
	if d < 0 {
		return 0, merr.WrapErrDistanceInvalid(text, "must not be negative")
	}
	return d, nil
}

func parseFinite(token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, errors.Newf("%q is not a number", token)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Newf("%q is not finite", token)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
