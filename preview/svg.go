package preview

import (
	"fmt"
	"image"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/yyy-OPS/SciDataExtractor/tracer"
)

// TraceStyle 路径叠加图的样式
type TraceStyle struct {
	Stroke      string
	StrokeWidth float64
	JumpStroke  string
	// Background 可选的底图地址（通常是合成预览的 data URL）
	Background string
}

func DefaultTraceStyle() TraceStyle {
	return TraceStyle{Stroke: "#ff2d55", StrokeWidth: 1.5, JumpStroke: "#ffcc00"}
}

// TraceSVG 把追踪结果画成 SVG：路径按跨越断点处拆成多段折线，跨越处画虚线，起点画圆
func TraceSVG(w io.Writer, width, height int, res *tracer.Result, style TraceStyle) {
	canvas := svg.New(w)
	canvas.Start(width, height)
	if style.Background != "" {
		canvas.Image(0, 0, width, height, style.Background)
	}
	if res != nil && len(res.Path) > 0 {
		line := fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g;stroke-linejoin:round", style.Stroke, style.StrokeWidth)
		for _, seg := range splitAtJumps(res.Path, res.Jumps) {
			xs, ys := coords(seg)
			canvas.Polyline(xs, ys, line)
		}
		jump := fmt.Sprintf("stroke:%s;stroke-width:%g;stroke-dasharray:2,2", style.JumpStroke, style.StrokeWidth)
		for _, j := range res.Jumps {
			canvas.Line(j.From.X, j.From.Y, j.To.X, j.To.Y, jump)
		}
		start := res.Path[0]
		canvas.Circle(start.X, start.Y, 3, "fill:"+style.Stroke)
	}
	canvas.End()
}

func splitAtJumps(path []image.Point, jumps []tracer.Jump) [][]image.Point {
	if len(jumps) == 0 {
		return [][]image.Point{path}
	}
	targets := make(map[image.Point]bool, len(jumps))
	for _, j := range jumps {
		targets[j.To] = true
	}
	var out [][]image.Point
	begin := 0
	for i := 1; i < len(path); i++ {
		if targets[path[i]] {
			out = append(out, path[begin:i])
			begin = i
		}
	}
	return append(out, path[begin:])
}

func coords(pts []image.Point) ([]int, []int) {
	xs := make([]int, len(pts))
	ys := make([]int, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}
