package mask

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrUnknownOp 不支持的运算名称
	ErrUnknownOp = errors.New("unknown mask operation")
	// ErrOperandCount 操作数个数与运算不符
	ErrOperandCount = errors.New("wrong number of mask operands")
)

// Op 掩码运算类型
type Op string

const (
	OpUnion       Op = "union"
	OpIntersect   Op = "intersect"
	OpSubtract    Op = "subtract"
	OpDilate      Op = "dilate"
	OpErode       Op = "erode"
	OpOpen        Op = "open"
	OpClose       Op = "close"
	OpClean       Op = "clean"
	OpFillGaps    Op = "fill_gaps"
	OpKeepLargest Op = "keep_largest"
	OpDropSmall   Op = "drop_small"
)

// ParseOp 解析运算名称（大小写不敏感）
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpUnion, OpIntersect, OpSubtract, OpDilate, OpErode, OpOpen, OpClose,
		OpClean, OpFillGaps, OpKeepLargest, OpDropSmall:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Binary 是否需要两个操作数
func (op Op) Binary() bool {
	return op == OpUnion || op == OpIntersect || op == OpSubtract
}

// Apply 按运算类型分派，binary 运算需要两个操作数，其余只取第一个
func Apply(op Op, kernel int, operands ...*Mask) (*Mask, error) {
	want := 1
	if op.Binary() {
		want = 2
	}
	if len(operands) != want {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrOperandCount, op, want, len(operands))
	}
	a := operands[0]
	switch op {
	case OpUnion:
		return Union(a, operands[1])
	case OpIntersect:
		return Intersect(a, operands[1])
	case OpSubtract:
		return Subtract(a, operands[1])
	case OpDilate:
		return Dilate(a, kernel)
	case OpErode:
		return Erode(a, kernel)
	case OpOpen:
		return Open(a, kernel)
	case OpClose:
		return Close(a, kernel)
	case OpClean:
		return Clean(a, kernel)
	case OpFillGaps:
		return FillGaps(a, kernel)
	case OpKeepLargest:
		return KeepLargest(a), nil
	case OpDropSmall:
		return DropSmall(a, 0.1, 50), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op)
}

// Union 并集
func Union(a, b *Mask) (*Mask, error) {
	return binary(a, b, func(ma, mb gocv.Mat, dst *gocv.Mat) {
		gocv.BitwiseOr(ma, mb, dst)
	})
}

// Intersect 交集
func Intersect(a, b *Mask) (*Mask, error) {
	return binary(a, b, func(ma, mb gocv.Mat, dst *gocv.Mat) {
		gocv.BitwiseAnd(ma, mb, dst)
	})
}

// Subtract 差集：属于 a 且不属于 b 的像素
func Subtract(a, b *Mask) (*Mask, error) {
	return binary(a, b, func(ma, mb gocv.Mat, dst *gocv.Mat) {
		inv := gocv.NewMat()
		defer inv.Close()
		gocv.BitwiseNot(mb, &inv)
		gocv.BitwiseAnd(ma, inv, dst)
	})
}

// Dilate 膨胀
func Dilate(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		gocv.Dilate(src, dst, kernel)
	})
}

// Erode 腐蚀
func Erode(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		gocv.Erode(src, dst, kernel)
	})
}

// Open 开运算（先腐蚀后膨胀），去除小噪点
func Open(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		gocv.MorphologyEx(src, dst, gocv.MorphOpen, kernel)
	})
}

// Close 闭运算（先膨胀后腐蚀），填充小缺口
func Close(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
	})
}

// Clean 开运算后接闭运算，稳定掩码供骨架化使用
func Clean(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		opened := gocv.NewMat()
		defer opened.Close()
		gocv.MorphologyEx(src, &opened, gocv.MorphOpen, kernel)
		gocv.MorphologyEx(opened, dst, gocv.MorphClose, kernel)
	})
}

// FillGaps 连续两次闭运算
func FillGaps(m *Mask, kernelSize int) (*Mask, error) {
	return morph(m, kernelSize, func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
		once := gocv.NewMat()
		defer once.Close()
		gocv.MorphologyEx(src, &once, gocv.MorphClose, kernel)
		gocv.MorphologyEx(once, dst, gocv.MorphClose, kernel)
	})
}

// ValidateKernel 结构元素尺寸必须为正奇数
func ValidateKernel(kernelSize int) error {
	if kernelSize <= 0 || kernelSize%2 == 0 {
		return fmt.Errorf("%w: %d (must be a positive odd integer)", ErrInvalidKernel, kernelSize)
	}
	return nil
}

func binary(a, b *Mask, fn func(ma, mb gocv.Mat, dst *gocv.Mat)) (*Mask, error) {
	if !a.SameSize(b) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, a.width, a.height, b.width, b.height)
	}
	if a.width == 0 || a.height == 0 {
		return New(a.width, a.height), nil
	}

	ma, err := a.toMat()
	if err != nil {
		return nil, err
	}
	defer ma.Close()
	mb, err := b.toMat()
	if err != nil {
		return nil, err
	}
	defer mb.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	fn(ma, mb, &dst)
	return fromMat(dst)
}

func morph(m *Mask, kernelSize int, fn func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat)) (*Mask, error) {
	if err := ValidateKernel(kernelSize); err != nil {
		return nil, err
	}
	if m.width == 0 || m.height == 0 {
		return New(m.width, m.height), nil
	}

	src, err := m.toMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	fn(src, &dst, kernel)
	return fromMat(dst)
}

// Mat 返回 CV_8U 单通道 Mat，调用方负责 Close
func (m *Mask) Mat() (gocv.Mat, error) {
	return m.toMat()
}

func (m *Mask) toMat() (gocv.Mat, error) {
	return gocv.NewMatFromBytes(m.height, m.width, gocv.MatTypeCV8U, m.Bytes())
}

// FromMat 由单通道 Mat 构造掩码，非零视为前景
func FromMat(mat gocv.Mat) (*Mask, error) {
	return fromMat(mat)
}

func fromMat(mat gocv.Mat) (*Mask, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	if mat.Channels() != 1 {
		return nil, fmt.Errorf("expected single channel mat, got %d channels", mat.Channels())
	}
	data := mat.ToBytes()
	w, h := mat.Cols(), mat.Rows()
	if len(data) != w*h {
		return nil, fmt.Errorf("%w: mat %dx%d with %d bytes", ErrDimensionMismatch, w, h, len(data))
	}
	m := New(w, h)
	for i, v := range data {
		if v != 0 {
			m.pix[i] = on
		}
	}
	return m, nil
}
