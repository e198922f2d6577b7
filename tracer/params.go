package tracer

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams 追踪参数不合法
var ErrInvalidParams = errors.New("invalid tracer parameters")

// Params 追踪调参项。
// 半径以"可跳过的像素数"计：r 对应切比雪夫距离 r+1 的像素环。
type Params struct {
	MomentumWeight float64 // α，候选方向与动量一致性的权重，(0,1)
	Inertia        float64 // 动量更新中保留旧动量的比例，[0,1)
	BaseRadius     int     // r₀，断点搜索的起始半径
	MaxGapRadius   int     // r_max，超过此宽度的断点不再跨越
	SnapRadius     int     // 起点吸附到骨架的最大距离
	FromRight      bool    // 从右向左追踪：默认起点取最右像素，初始动量向左
}

// DefaultParams 经验值：α=0.7，动量 0.6/0.4，可跨越 1~3 像素的断点
func DefaultParams() Params {
	return Params{
		MomentumWeight: 0.7,
		Inertia:        0.6,
		BaseRadius:     1,
		MaxGapRadius:   3,
		SnapRadius:     5,
	}
}

// Validate 检查参数范围
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.MomentumWeight) || p.MomentumWeight <= 0 || p.MomentumWeight >= 1:
		return fmt.Errorf("%w: momentum weight %v not in (0,1)", ErrInvalidParams, p.MomentumWeight)
	case math.IsNaN(p.Inertia) || p.Inertia < 0 || p.Inertia >= 1:
		return fmt.Errorf("%w: inertia %v not in [0,1)", ErrInvalidParams, p.Inertia)
	case p.BaseRadius < 1:
		return fmt.Errorf("%w: base radius %d < 1", ErrInvalidParams, p.BaseRadius)
	case p.MaxGapRadius < p.BaseRadius:
		return fmt.Errorf("%w: max gap radius %d < base radius %d", ErrInvalidParams, p.MaxGapRadius, p.BaseRadius)
	case p.SnapRadius < 0:
		return fmt.Errorf("%w: snap radius %d < 0", ErrInvalidParams, p.SnapRadius)
	}
	return nil
}
