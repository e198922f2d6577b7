package tracer

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/yyy-OPS/SciDataExtractor/skeleton"
)

const scoreEpsilon = 1e-12

// Direction 从 from 指向 to 的单位向量
func Direction(from, to image.Point) r2.Vec {
	v := r2.Vec{X: float64(to.X - from.X), Y: float64(to.Y - from.Y)}
	if r2.Norm(v) == 0 {
		return r2.Vec{}
	}
	return r2.Unit(v)
}

// Score α·(dir·momentum) + (1−α)，同时返回与动量的夹角（弧度）
func Score(from, to image.Point, momentum r2.Vec, alpha float64) (score, deviation float64) {
	dot := r2.Dot(Direction(from, to), momentum)
	dot = math.Max(-1, math.Min(1, dot))
	return alpha*dot + (1 - alpha), math.Acos(dot)
}

// better 得分高者优先，其次夹角小者，再次行号小者，最后列号小者
func better(a, b image.Point, sa, da, sb, db float64) bool {
	if math.Abs(sa-sb) > scoreEpsilon {
		return sa > sb
	}
	if math.Abs(da-db) > scoreEpsilon {
		return da < db
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// Choose 在候选像素中选出下一步，候选为空时返回 false
func Choose(from image.Point, momentum r2.Vec, candidates []image.Point, alpha float64) (image.Point, bool) {
	if len(candidates) == 0 {
		return image.Point{}, false
	}
	best := candidates[0]
	bs, bd := Score(from, best, momentum, alpha)
	for _, c := range candidates[1:] {
		s, d := Score(from, c, momentum, alpha)
		if better(c, best, s, d, bs, bd) {
			best, bs, bd = c, s, d
		}
	}
	return best, true
}

// UpdateMomentum normalize(inertia·momentum + (1−inertia)·dir)
func UpdateMomentum(momentum, dir r2.Vec, inertia float64) r2.Vec {
	m := r2.Add(r2.Scale(inertia, momentum), r2.Scale(1-inertia, dir))
	if r2.Norm(m) < scoreEpsilon {
		return dir
	}
	return r2.Unit(m)
}

// Ring 与 center 切比雪夫距离恰为 d 的像素，按行优先顺序
func Ring(center image.Point, d int) []image.Point {
	if d <= 0 {
		return []image.Point{center}
	}
	out := make([]image.Point, 0, 8*d)
	for dy := -d; dy <= d; dy++ {
		if dy == -d || dy == d {
			for dx := -d; dx <= d; dx++ {
				out = append(out, image.Point{X: center.X + dx, Y: center.Y + dy})
			}
			continue
		}
		out = append(out,
			image.Point{X: center.X - d, Y: center.Y + dy},
			image.Point{X: center.X + d, Y: center.Y + dy})
	}
	return out
}

// SearchGap 从 r₀ 到 r_max 逐环向外搜索未访问的骨架像素，
// 第一个有候选的环内按与单步相同的打分规则选取。返回目标像素和跨过的像素数。
func SearchGap(sk *skeleton.Skeleton, from image.Point, momentum r2.Vec, visited func(image.Point) bool, p Params) (image.Point, int, bool) {
	for r := p.BaseRadius; r <= p.MaxGapRadius; r++ {
		var cands []image.Point
		for _, q := range Ring(from, r+1) {
			if sk.Has(q) && !visited(q) {
				cands = append(cands, q)
			}
		}
		if next, ok := Choose(from, momentum, cands, p.MomentumWeight); ok {
			return next, r, true
		}
	}
	return image.Point{}, 0, false
}
