// Package tracer 沿骨架做动量引导的曲线追踪，能在交叉点保持方向并跨越小断点
package tracer

import (
	"context"
	"errors"
	"image"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/yyy-OPS/SciDataExtractor/skeleton"
)

// ErrNoStartPixel 起点附近没有骨架像素
var ErrNoStartPixel = errors.New("no skeleton pixel near start point")

// cancelCheckInterval 每走多少步检查一次 ctx
const cancelCheckInterval = 64

// State 追踪状态机的状态
type State int

const (
	Seeking State = iota
	Stepping
	GapSearching
	Terminated
)

// Reason 追踪结束原因
type Reason int

const (
	ReasonNone Reason = iota
	ReasonDeadEnd
	ReasonRevisit
	ReasonExhausted
)

func (r Reason) String() string {
	switch r {
	case ReasonDeadEnd:
		return "dead_end"
	case ReasonRevisit:
		return "revisit"
	case ReasonExhausted:
		return "exhausted"
	default:
		return "none"
	}
}

// Jump 一次断点跨越
type Jump struct {
	From image.Point
	To   image.Point
	Gap  int // 跨过的像素数
}

// Result 追踪结果，Path 按访问顺序排列，不含重复像素
type Result struct {
	Path      []image.Point
	Start     image.Point
	Reason    Reason
	Truncated bool // 结束时仍有骨架像素未访问
	Jumps     []Jump
}

type walker struct {
	sk       *skeleton.Skeleton
	params   Params
	pos      image.Point
	prev     image.Point
	hasPrev  bool
	momentum r2.Vec
	visited  []bool
	nVisited int
	path     []image.Point
	jumps    []Jump
	reason   Reason
}

// Trace 从 start（为 nil 时取最左或最右像素）开始追踪一条曲线。
// 空骨架返回空结果；ctx 取消时返回 ctx.Err()，不返回部分路径。
func Trace(ctx context.Context, sk *skeleton.Skeleton, start *image.Point, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sk.Len() == 0 {
		return &Result{}, nil
	}

	w := &walker{
		sk:       sk,
		params:   params,
		momentum: r2.Vec{X: 1, Y: 0},
		visited:  make([]bool, sk.Width()*sk.Height()),
	}
	if params.FromRight {
		w.momentum = r2.Vec{X: -1, Y: 0}
	}

	state := Seeking
	for steps := 0; state != Terminated; steps++ {
		if steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		switch state {
		case Seeking:
			p, err := Seek(sk, start, params)
			if err != nil {
				return nil, err
			}
			w.visit(p)
			state = w.afterMove()
		case Stepping:
			state = w.step()
		case GapSearching:
			state = w.bridge()
		}
	}

	return &Result{
		Path:      w.path,
		Start:     w.path[0],
		Reason:    w.reason,
		Truncated: w.reason != ReasonExhausted,
		Jumps:     w.jumps,
	}, nil
}

// Seek 确定起点：未指定时取最左（FromRight 时最右）像素，
// 否则吸附到 SnapRadius 内最近的骨架像素
func Seek(sk *skeleton.Skeleton, start *image.Point, params Params) (image.Point, error) {
	if start == nil {
		edge := sk.Leftmost
		if params.FromRight {
			edge = sk.Rightmost
		}
		if p, ok := edge(); ok {
			return p, nil
		}
		return image.Point{}, ErrNoStartPixel
	}
	if p, ok := sk.Nearest(*start, params.SnapRadius); ok {
		return p, nil
	}
	return image.Point{}, ErrNoStartPixel
}

func (w *walker) index(p image.Point) int { return p.Y*w.sk.Width() + p.X }

func (w *walker) isVisited(p image.Point) bool { return w.visited[w.index(p)] }

func (w *walker) visit(p image.Point) {
	w.visited[w.index(p)] = true
	w.nVisited++
	w.path = append(w.path, p)
	w.pos = p
}

// move 前进到 next 并更新动量
func (w *walker) move(next image.Point) {
	dir := Direction(w.pos, next)
	w.momentum = UpdateMomentum(w.momentum, dir, w.params.Inertia)
	w.prev, w.hasPrev = w.pos, true
	w.visit(next)
}

func (w *walker) afterMove() State {
	if w.nVisited == w.sk.Len() {
		w.reason = ReasonExhausted
		return Terminated
	}
	return Stepping
}

// step 在 8 邻域（去掉来时的像素）中选下一步
func (w *walker) step() State {
	var fresh []image.Point
	seenOnly := false
	for _, q := range w.sk.Neighbors(w.pos) {
		if w.hasPrev && q == w.prev {
			continue
		}
		if w.isVisited(q) {
			seenOnly = true
			continue
		}
		fresh = append(fresh, q)
	}
	if next, ok := Choose(w.pos, w.momentum, fresh, w.params.MomentumWeight); ok {
		w.move(next)
		return w.afterMove()
	}
	if seenOnly {
		w.reason = ReasonRevisit
		return Terminated
	}
	return GapSearching
}

// bridge 邻域内无路可走时向外搜索断点另一侧
func (w *walker) bridge() State {
	next, gap, ok := SearchGap(w.sk, w.pos, w.momentum, w.isVisited, w.params)
	if !ok {
		w.reason = ReasonDeadEnd
		return Terminated
	}
	w.jumps = append(w.jumps, Jump{From: w.pos, To: next, Gap: gap})
	w.move(next)
	return w.afterMove()
}
