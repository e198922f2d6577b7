package skeleton

import (
	"context"
	"image"

	"github.com/yyy-OPS/SciDataExtractor/mask"
)

// Thin Zhang-Suen 细化（保留粗线端点），随后去掉多余的阶梯拐角像素，
// 最后保证输入的每个 8 连通区域至少保留一个骨架像素。
func Thin(ctx context.Context, m *mask.Mask) (*Skeleton, error) {
	s := FromMask(m)
	if s.n == 0 {
		return s, nil
	}

	var del []int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for pass := 0; pass < 2; pass++ {
			del = del[:0]
			for y := 0; y < s.height; y++ {
				for x := 0; x < s.width; x++ {
					if s.pix[y*s.width+x] && s.zhangSuenDeletable(x, y, pass) {
						del = append(del, y*s.width+x)
					}
				}
			}
			for _, i := range del {
				s.pix[i] = false
			}
			s.n -= len(del)
			changed = changed || len(del) > 0
		}
		if !changed {
			break
		}
	}

	s.removeStaircase()
	s.restoreLostComponents(m)
	return s, nil
}

func (s *Skeleton) bit(x, y int) int {
	if x < 0 || x >= s.width || y < 0 || y >= s.height || !s.pix[y*s.width+x] {
		return 0
	}
	return 1
}

// ring 返回 P2..P9（从正上方开始顺时针）
func (s *Skeleton) ring(x, y int) [8]int {
	return [8]int{
		s.bit(x, y-1), s.bit(x+1, y-1), s.bit(x+1, y), s.bit(x+1, y+1),
		s.bit(x, y+1), s.bit(x-1, y+1), s.bit(x-1, y), s.bit(x-1, y-1),
	}
}

func (s *Skeleton) zhangSuenDeletable(x, y, pass int) bool {
	p := s.ring(x, y)
	b := 0
	for _, v := range p {
		b += v
	}
	// B=2 且两个邻居相邻时是 2 像素宽斜线的端点，删掉会让整条斜线从两头被吃光
	if b < 3 || b > 6 {
		return false
	}
	a := 0
	for i := 0; i < 8; i++ {
		if p[i] == 0 && p[(i+1)%8] == 1 {
			a++
		}
	}
	if a != 1 {
		return false
	}
	p2, p4, p6, p8 := p[0], p[2], p[4], p[6]
	if pass == 0 {
		return p2*p4*p6 == 0 && p4*p6*p8 == 0
	}
	return p2*p4*p8 == 0 && p2*p6*p8 == 0
}

// removeStaircase 顺序扫描，删除 4 连通拐角：两条正交邻边已经对角相连时该像素多余
func (s *Skeleton) removeStaircase() {
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			if !s.pix[y*s.width+x] {
				continue
			}
			p := s.ring(x, y)
			n, ne, e, se, south, sw, w, nw := p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7]
			redundant := (n == 1 && e == 1 && south == 0 && w == 0 && sw == 0) ||
				(e == 1 && south == 1 && n == 0 && w == 0 && nw == 0) ||
				(south == 1 && w == 1 && n == 0 && e == 0 && ne == 0) ||
				(w == 1 && n == 1 && south == 0 && e == 0 && se == 0)
			if redundant {
				s.pix[y*s.width+x] = false
				s.n--
			}
		}
	}
}

// restoreLostComponents 细化会整块抹掉 2x2 之类的小区域，这里为它们补回质心附近的一个像素
func (s *Skeleton) restoreLostComponents(m *mask.Mask) {
	seen := make([]bool, s.width*s.height)
	var queue []image.Point
	for _, start := range m.Points() {
		if seen[start.Y*s.width+start.X] {
			continue
		}
		queue = append(queue[:0], start)
		seen[start.Y*s.width+start.X] = true
		var comp []image.Point
		kept := false
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			if s.pix[cur.Y*s.width+cur.X] {
				kept = true
			}
			for _, d := range Offsets {
				q := cur.Add(d)
				if !m.At(q.X, q.Y) || seen[q.Y*s.width+q.X] {
					continue
				}
				seen[q.Y*s.width+q.X] = true
				queue = append(queue, q)
			}
		}
		if kept {
			continue
		}

		var sx, sy int
		for _, p := range comp {
			sx += p.X
			sy += p.Y
		}
		cx, cy := float64(sx)/float64(len(comp)), float64(sy)/float64(len(comp))
		best, bestD := comp[0], -1.0
		for _, p := range comp {
			dx, dy := float64(p.X)-cx, float64(p.Y)-cy
			d := dx*dx + dy*dy
			if bestD < 0 || d < bestD || (d == bestD && (p.Y < best.Y || (p.Y == best.Y && p.X < best.X))) {
				best, bestD = p, d
			}
		}
		s.pix[best.Y*s.width+best.X] = true
		s.n++
	}
}
