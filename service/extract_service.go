package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/calibration"
	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/preview"
	"github.com/yyy-OPS/SciDataExtractor/series"
	"github.com/yyy-OPS/SciDataExtractor/skeleton"
	"github.com/yyy-OPS/SciDataExtractor/tracer"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

var (
	// ErrNoMaskSource 提取请求既没有图层也没有掩码
	ErrNoMaskSource = errors.New("extraction needs a layer id or a mask")
	// ErrInvalidROI ROI 宽或高不是正数
	ErrInvalidROI = errors.New("roi width and height must be positive")
)

// MessageNoPoints 提取成功但没有数据点
const MessageNoPoints = "no points found"

// ExtractService 掩码 → 骨架 → 追踪 → 标定映射 → 后处理
type ExtractService struct {
	store  *SessionStore
	queue  *WorkQueue
	tracer config.TracerConfig
	cfg    config.ExtractConfig
}

// NewExtractService queue 为 nil 时不限制并发
func NewExtractService(store *SessionStore, queue *WorkQueue, tracerCfg *config.TracerConfig, extractCfg *config.ExtractConfig) *ExtractService {
	return &ExtractService{
		store:  store,
		queue:  queue,
		tracer: *tracerCfg,
		cfg:    *extractCfg,
	}
}

// extraction 一次提取的中间结果
type extraction struct {
	session  *Session
	trace    *tracer.Result
	skeleton int
	points   []calibration.DataPoint
	layerID  string
	version  int64
}

// Extract 从图层或上传掩码中提取一条曲线的物理坐标
func (s *ExtractService) Extract(ctx context.Context, sessionID string, req model.ExtractRequest) (*model.ExtractResult, error) {
	ex, err := s.run(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	res := &model.ExtractResult{
		Points:       ex.points,
		Count:        len(ex.points),
		Truncated:    ex.trace.Truncated,
		Reason:       ex.trace.Reason.String(),
		Jumps:        len(ex.trace.Jumps),
		LayerID:      ex.layerID,
		LayerVersion: ex.version,
		SkeletonSize: ex.skeleton,
		PathLength:   len(ex.trace.Path),
	}
	if res.Points == nil {
		res.Points = []calibration.DataPoint{}
	}
	if len(ex.trace.Path) > 0 {
		res.Start = &model.Point{X: ex.trace.Start.X, Y: ex.trace.Start.Y}
	}
	if res.Count == 0 {
		res.Message = MessageNoPoints
	}
	return res, nil
}

// ExtractPoints 把一组有序像素点直接换算为物理坐标，保持输入顺序，
// 不经过骨架化和追踪；ROI 与后处理的语义同 Extract
func (s *ExtractService) ExtractPoints(sessionID string, req model.ExtractPointsRequest) (*model.ExtractResult, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	mapper, err := calibration.New(req.Calibration)
	if err != nil {
		return nil, err
	}
	roi, err := s.region(mapper, req.ROI, req.ClipToPlotRegion)
	if err != nil {
		return nil, err
	}

	path := make([]image.Point, len(req.Points))
	for i, p := range req.Points {
		path[i] = image.Pt(p.X, p.Y)
	}
	pts, err := series.Apply(mapper.Map(path, roi), req.Post)
	if err != nil {
		return nil, err
	}
	if pts == nil {
		pts = []calibration.DataPoint{}
	}

	res := &model.ExtractResult{
		Points:     pts,
		Count:      len(pts),
		PathLength: len(path),
	}
	if len(path) > 0 {
		res.Start = &model.Point{X: path[0].X, Y: path[0].Y}
	}
	if res.Count == 0 {
		res.Message = MessageNoPoints
	}

	utils.Logger.Debug("curve points mapped",
		zap.String("session", sess.ID),
		zap.Int("input", len(path)),
		zap.Int("points", len(pts)))
	return res, nil
}

// Overlay 追踪路径叠加在原图上的 SVG
func (s *ExtractService) Overlay(ctx context.Context, sessionID string, req model.ExtractRequest) ([]byte, error) {
	ex, err := s.run(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}
	img := ex.session.Image
	png, err := preview.EncodePNG(img.NRGBA())
	if err != nil {
		return nil, fmt.Errorf("encode background: %w", err)
	}
	style := preview.DefaultTraceStyle()
	style.Background = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	var buf bytes.Buffer
	preview.TraceSVG(&buf, img.Width(), img.Height(), ex.trace, style)
	return buf.Bytes(), nil
}

func (s *ExtractService) run(ctx context.Context, sessionID string, req model.ExtractRequest) (*extraction, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	mapper, err := calibration.New(req.Calibration)
	if err != nil {
		return nil, err
	}
	params := s.params(req.Tracer)
	params.FromRight = req.Direction == model.DirectionRightToLeft
	if err := params.Validate(); err != nil {
		return nil, err
	}
	roi, err := s.region(mapper, req.ROI, req.ClipToPlotRegion)
	if err != nil {
		return nil, err
	}

	ex := &extraction{session: sess}
	var m *mask.Mask
	switch {
	case req.LayerID != "":
		l, err := sess.Layer(req.LayerID)
		if err != nil {
			return nil, err
		}
		m, ex.layerID, ex.version = l.Mask, l.ID, l.Version
	case req.Mask != nil:
		if m, err = decodePayload(req.Mask, sess.Image.Width(), sess.Image.Height()); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoMaskSource
	}

	var start *image.Point
	if req.Start != nil {
		start = &image.Point{X: req.Start.X, Y: req.Start.Y}
	}

	if s.queue != nil {
		release, err := s.queue.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	sk, err := skeleton.Thin(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("skeletonize: %w", err)
	}
	ex.skeleton = sk.Len()

	ex.trace, err = tracer.Trace(ctx, sk, start, params)
	if err != nil {
		return nil, err
	}

	pts := mapper.Map(ex.trace.Path, roi)
	if ex.points, err = series.Apply(pts, req.Post); err != nil {
		return nil, err
	}

	utils.Logger.Info("curve extracted",
		zap.String("session", sess.ID),
		zap.String("layer", ex.layerID),
		zap.Int("skeleton", ex.skeleton),
		zap.Int("path", len(ex.trace.Path)),
		zap.Int("points", len(ex.points)),
		zap.Int("jumps", len(ex.trace.Jumps)),
		zap.String("reason", ex.trace.Reason.String()),
		zap.Duration("duration", time.Since(startTime)))
	return ex, nil
}

// region 闭区间 ROI：显式给出的 box 优先，其次是标定锚点外扩的绘图区，都没有时返回 nil
func (s *ExtractService) region(mapper *calibration.Mapper, box *model.BBox, clip bool) (*image.Rectangle, error) {
	switch {
	case box != nil:
		if box.Width <= 0 || box.Height <= 0 {
			return nil, fmt.Errorf("%w: %dx%d", ErrInvalidROI, box.Width, box.Height)
		}
		r := image.Rect(box.X, box.Y, box.X+box.Width-1, box.Y+box.Height-1)
		return &r, nil
	case clip:
		margin := s.cfg.PlotMargin
		if margin <= 0 {
			margin = calibration.DefaultPlotMargin
		}
		r := mapper.PlotRegion(margin)
		return &r, nil
	}
	return nil, nil
}

// params 配置中的追踪参数，按请求逐项覆盖
func (s *ExtractService) params(o *model.TracerParams) tracer.Params {
	p := s.tracer.Params()
	if o == nil {
		return p
	}
	if o.MomentumWeight != nil {
		p.MomentumWeight = *o.MomentumWeight
	}
	if o.Inertia != nil {
		p.Inertia = *o.Inertia
	}
	if o.BaseRadius != nil {
		p.BaseRadius = *o.BaseRadius
	}
	if o.MaxGapRadius != nil {
		p.MaxGapRadius = *o.MaxGapRadius
	}
	if o.SnapRadius != nil {
		p.SnapRadius = *o.SnapRadius
	}
	return p
}
