package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/segment"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLayerNotFound   = errors.New("layer not found")
	ErrVersionConflict = errors.New("layer version conflict")
	ErrTooManySessions = errors.New("too many sessions")
	ErrTooManyLayers   = errors.New("too many layers")
)

// Layer 图层快照。Mask 不可变，修改图层总是替换整个值并递增 Version。
type Layer struct {
	ID      string
	Name    string
	Source  string
	Mask    *mask.Mask
	Color   segment.Color
	Visible bool
	Opacity float64
	Version int64
}

// Session 一张上传图像及其图层
type Session struct {
	ID        string
	MD5       string
	Format    string
	Image     *raster.Image
	CreatedAt time.Time

	maxLayers  int
	mu         sync.RWMutex
	layers     map[string]Layer
	order      []string
	lastAccess time.Time
}

// Layers 按创建顺序返回全部图层快照
func (s *Session) Layers() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Layer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.layers[id])
	}
	return out
}

// Layer 单个图层快照
func (s *Session) Layer(id string) (Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return Layer{}, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	return l, nil
}

// AddLayer 加入新图层，ID 为空时自动生成
func (s *Session) AddLayer(l Layer) (Layer, error) {
	if l.Mask == nil || l.Mask.Width() != s.Image.Width() || l.Mask.Height() != s.Image.Height() {
		return Layer{}, fmt.Errorf("%w: layer mask does not match %dx%d image",
			mask.ErrDimensionMismatch, s.Image.Width(), s.Image.Height())
	}
	if l.ID == "" {
		l.ID = utils.NewID()
	}
	if l.Name == "" {
		l.Name = l.Source + "_" + utils.ShortID(l.ID)
	}
	l.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxLayers > 0 && len(s.order) >= s.maxLayers {
		return Layer{}, fmt.Errorf("%w: limit %d", ErrTooManyLayers, s.maxLayers)
	}
	s.layers[l.ID] = l
	s.order = append(s.order, l.ID)
	return l, nil
}

// UpdateLayer 在会话写锁内对图层做一次读-改-写。expected 非空时版本不一致返回 ErrVersionConflict。
// fn 修改的是副本，返回错误时图层保持不变。
func (s *Session) UpdateLayer(id string, expected *int64, fn func(l *Layer) error) (Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.layers[id]
	if !ok {
		return Layer{}, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if expected != nil && *expected != cur.Version {
		return Layer{}, fmt.Errorf("%w: layer %s is at version %d, expected %d", ErrVersionConflict, id, cur.Version, *expected)
	}
	next := cur
	if err := fn(&next); err != nil {
		return Layer{}, err
	}
	if next.Mask == nil || !next.Mask.SameSize(cur.Mask) {
		return Layer{}, fmt.Errorf("%w: updated mask does not match layer", mask.ErrDimensionMismatch)
	}
	next.ID = cur.ID
	next.Version = cur.Version + 1
	s.layers[id] = next
	return next, nil
}

// RemoveLayers 删除满足条件的图层，返回删除数量
func (s *Session) RemoveLayers(match func(Layer) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	n := 0
	for _, id := range s.order {
		if match(s.layers[id]) {
			delete(s.layers, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n
}

// DeleteLayer 删除图层，只丢弃其掩码，不影响原图
func (s *Session) DeleteLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	delete(s.layers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// SessionStore 内存中的会话表，不同会话之间互不影响
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	interval    time.Duration
	maxSessions int
	maxLayers   int
	now         func() time.Time
}

func NewSessionStore(cfg *config.SessionConfig) *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]*Session),
		ttl:         cfg.TTL,
		interval:    cfg.CleanupInterval,
		maxSessions: cfg.MaxSessions,
		maxLayers:   cfg.MaxLayers,
		now:         time.Now,
	}
}

// Create 为解码后的图像建立会话
func (st *SessionStore) Create(img *raster.Image, md5, format string) (*Session, error) {
	now := st.now()
	s := &Session{
		ID:         utils.NewID(),
		MD5:        md5,
		Format:     format,
		Image:      img,
		CreatedAt:  now,
		maxLayers:  st.maxLayers,
		layers:     make(map[string]Layer),
		lastAccess: now,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.maxSessions > 0 && len(st.sessions) >= st.maxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, st.maxSessions)
	}
	st.sessions[s.ID] = s
	return s, nil
}

// Get 查找会话并刷新访问时间
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch(st.now())
	return s, nil
}

// Delete 删除会话，图像和全部图层随之释放
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(st.sessions, id)
	return nil
}

func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep 清理超过 TTL 未访问的会话
func (st *SessionStore) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}
	deadline := st.now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(deadline) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Run 定期清理过期会话，直到 ctx 结束
func (st *SessionStore) Run(ctx context.Context) {
	if st.interval <= 0 || st.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				utils.Logger.Info("expired sessions removed",
					zap.Int("removed", n),
					zap.Int("remaining", st.Len()))
			}
		}
	}
}
