package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/preview"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/segment"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

var (
	// ErrMissingOperand 二元运算缺少第二个掩码
	ErrMissingOperand = errors.New("binary operation needs an operand layer or mask")
	// ErrNoLayerSource 新建图层既没有掩码也没有颜色
	ErrNoLayerSource = errors.New("layer needs a mask or a color")
)

// LayerService 负责图层的生成与编辑
type LayerService struct {
	store   *SessionStore
	colors  *segment.ColorSegmenter
	grabcut *segment.GrabCut
	cache   LayerCache
	queue   *WorkQueue
	segCfg  config.SegmentConfig
}

// NewLayerService cache 可以为 nil，此时每次都重新聚类
func NewLayerService(store *SessionStore, queue *WorkQueue, segCfg *config.SegmentConfig, gcCfg *config.GrabCutConfig, cache LayerCache) *LayerService {
	s := &LayerService{
		store:  store,
		colors: segment.NewColorSegmenter(),
		cache:  cache,
		queue:  queue,
		segCfg: *segCfg,
	}
	if gcCfg.Enabled {
		s.grabcut = segment.NewGrabCut(gcCfg.Iterations, gcCfg.BoxRadius)
	}
	return s
}

// AutoLayers 颜色聚类生成候选图层并加入会话。相同图像和参数的结果从缓存读取。
func (s *LayerService) AutoLayers(ctx context.Context, sessionID string, req model.AutoLayersRequest) (*model.AutoLayerResult, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	opt := s.segCfg.Options()
	if req.K != nil {
		opt.K = *req.K
	}
	if req.ExcludeBackground != nil {
		opt.ExcludeBackground = *req.ExcludeBackground
	}
	if req.MinSaturation != nil {
		opt.MinSaturation = *req.MinSaturation
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	w, h := sess.Image.Width(), sess.Image.Height()
	key := AutoLayersKey(sess.MD5, opt)
	layers, diagnostic, cached := s.cachedAutoLayers(ctx, key, w, h)

	if !cached {
		startTime := time.Now()
		release, err := s.queue.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		sctx, cancel := context.WithTimeout(ctx, s.segCfg.Timeout)
		defer cancel()
		res, err := s.colors.Segment(sctx, sess.Image, opt)
		if err != nil {
			return nil, fmt.Errorf("color segmentation: %w", err)
		}
		for _, l := range res.Layers {
			layers = append(layers, Layer{
				Name:    l.Name,
				Source:  SourceAuto,
				Mask:    l.Mask,
				Color:   l.Color,
				Visible: true,
				Opacity: defaultOpacity,
			})
		}
		diagnostic = res.Diagnostic

		utils.Logger.Info("auto layers computed",
			zap.String("session", sess.ID),
			zap.String("md5", sess.MD5),
			zap.Int("k", opt.K),
			zap.Int("layers", len(layers)),
			zap.Int("valid_pixels", res.ValidPixels),
			zap.Duration("duration", time.Since(startTime)))

		s.storeAutoLayers(ctx, key, sess, layers, diagnostic)
	}

	if req.Replace {
		n := sess.RemoveLayers(func(l Layer) bool { return l.Source == SourceAuto })
		utils.Logger.Debug("auto layers replaced", zap.String("session", sess.ID), zap.Int("removed", n))
	}

	result := &model.AutoLayerResult{
		MD5:        sess.MD5,
		Width:      w,
		Height:     h,
		Diagnostic: diagnostic,
		Cached:     cached,
		Timestamp:  time.Now().Unix(),
		Layers:     make([]model.Layer, 0, len(layers)),
	}
	for _, l := range layers {
		added, err := sess.AddLayer(l)
		if err != nil {
			return nil, err
		}
		result.Layers = append(result.Layers, ToModelLayer(added, true))
	}
	return result, nil
}

func (s *LayerService) cachedAutoLayers(ctx context.Context, key string, w, h int) ([]Layer, string, bool) {
	if s.cache == nil {
		return nil, "", false
	}
	cached, err := s.cache.GetAutoLayers(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
		return nil, "", false
	}
	if cached == nil {
		return nil, "", false
	}
	layers := make([]Layer, 0, len(cached.Layers))
	for _, l := range cached.Layers {
		m, err := mask.DecodeBase64(l.Mask, w, h)
		if err != nil {
			utils.Logger.Warn("discarding unreadable cache entry", zap.String("cache_key", key), zap.Error(err))
			return nil, "", false
		}
		layers = append(layers, Layer{
			Name:    l.Name,
			Source:  SourceAuto,
			Mask:    m,
			Color:   l.Color,
			Visible: true,
			Opacity: defaultOpacity,
		})
	}
	utils.Logger.Info("cache hit", zap.String("cache_key", key))
	return layers, cached.Diagnostic, true
}

func (s *LayerService) storeAutoLayers(ctx context.Context, key string, sess *Session, layers []Layer, diagnostic string) {
	if s.cache == nil {
		return
	}
	entry := &model.AutoLayerResult{
		MD5:        sess.MD5,
		Width:      sess.Image.Width(),
		Height:     sess.Image.Height(),
		Diagnostic: diagnostic,
		Timestamp:  time.Now().Unix(),
	}
	for _, l := range layers {
		entry.Layers = append(entry.Layers, ToModelLayer(l, true))
	}
	if err := s.cache.SetAutoLayers(ctx, key, entry); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}
}

// SampleColor 取 (x,y) 邻域的平均颜色
func (s *LayerService) SampleColor(sessionID string, req model.SampleColorRequest) (segment.Color, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return segment.Color{}, err
	}
	radius := s.segCfg.SampleRadius
	if req.Radius != nil {
		radius = *req.Radius
	}
	hsv, err := sess.Image.SampleHSV(req.X, req.Y, radius)
	if err != nil {
		return segment.Color{}, fmt.Errorf("%w: %v", segment.ErrPointOutside, err)
	}
	return segment.NewColor(hsv), nil
}

// CreateLayer 由上传的掩码或颜色范围新建图层
func (s *LayerService) CreateLayer(ctx context.Context, sessionID string, req model.CreateLayerRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	w, h := sess.Image.Width(), sess.Image.Height()

	switch {
	case req.Mask != nil:
		m, err := decodePayload(req.Mask, w, h)
		if err != nil {
			return Layer{}, err
		}
		return sess.AddLayer(Layer{
			Name:    req.Name,
			Source:  SourceMask,
			Mask:    m,
			Color:   segment.NewColor(raster.HSV{H: 0, S: 255, V: 255}),
			Visible: true,
			Opacity: defaultOpacity,
		})
	case req.Color != nil:
		if err := ctx.Err(); err != nil {
			return Layer{}, err
		}
		tol := s.segCfg.ColorTolerance
		if req.Tolerance != nil {
			tol = *req.Tolerance
		}
		m, err := segment.RangeMask(sess.Image, *req.Color, tol)
		if err != nil {
			return Layer{}, err
		}
		c := segment.NewColor(*req.Color)
		name := req.Name
		if name == "" {
			name = segment.HueName(c.HSV) + "_color"
		}
		return sess.AddLayer(Layer{
			Name:    name,
			Source:  SourceColor,
			Mask:    m,
			Color:   c,
			Visible: true,
			Opacity: defaultOpacity,
		})
	}
	return Layer{}, ErrNoLayerSource
}

// pointSegmenter 按方法名选择点选分割器，GrabCut 不可用时退回颜色泛洪
func (s *LayerService) pointSegmenter(method string, tolerance int) segment.PointSegmenter {
	colorRegion := segment.NewColorRegion(tolerance)
	colorRegion.SampleRadius = s.segCfg.SampleRadius
	switch method {
	case "color":
		return colorRegion
	case "grabcut":
		if s.grabcut != nil {
			return s.grabcut
		}
		return colorRegion
	default:
		if s.grabcut == nil {
			return colorRegion
		}
		return segment.WithFallback(s.grabcut, colorRegion)
	}
}

// SmartSegment 点选分割生成图层
func (s *LayerService) SmartSegment(ctx context.Context, sessionID string, req model.SmartSegmentRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	tol := s.segCfg.ColorTolerance
	if req.Tolerance != nil {
		tol = *req.Tolerance
	}

	release, err := s.queue.acquire(ctx)
	if err != nil {
		return Layer{}, err
	}
	defer release()

	startTime := time.Now()
	sctx, cancel := context.WithTimeout(ctx, s.segCfg.Timeout)
	defer cancel()
	p := image.Pt(req.X, req.Y)
	m, err := s.pointSegmenter(req.Method, tol).SegmentAt(sctx, sess.Image, p)
	if err != nil {
		return Layer{}, err
	}
	hsv, err := sess.Image.SampleHSV(p.X, p.Y, s.segCfg.SampleRadius)
	if err != nil {
		return Layer{}, err
	}

	utils.Logger.Info("smart segment",
		zap.String("session", sess.ID),
		zap.String("method", req.Method),
		zap.Int("x", p.X),
		zap.Int("y", p.Y),
		zap.Int("pixels", m.Count()),
		zap.Duration("duration", time.Since(startTime)))

	return sess.AddLayer(Layer{
		Name:    req.Name,
		Source:  SourceSmart,
		Mask:    m,
		Color:   segment.NewColor(hsv),
		Visible: true,
		Opacity: defaultOpacity,
	})
}

// UpdateLayer 修改名称、可见性、不透明度
func (s *LayerService) UpdateLayer(sessionID, layerID string, req model.UpdateLayerRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	return sess.UpdateLayer(layerID, req.ExpectedVersion, func(l *Layer) error {
		if req.Name != nil {
			l.Name = *req.Name
		}
		if req.Visible != nil {
			l.Visible = *req.Visible
		}
		if req.Opacity != nil {
			l.Opacity = *req.Opacity
		}
		return nil
	})
}

// ApplyOp 对图层掩码执行一次掩码运算，结果替换原掩码
func (s *LayerService) ApplyOp(sessionID, layerID string, req model.MaskOpRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	op, err := mask.ParseOp(req.Op)
	if err != nil {
		return Layer{}, err
	}
	kernel := req.KernelSize
	if kernel == 0 {
		kernel = s.segCfg.KernelSize
	}
	if !op.Binary() {
		if err := mask.ValidateKernel(kernel); err != nil {
			return Layer{}, err
		}
	}

	var operand *mask.Mask
	if op.Binary() {
		switch {
		case req.OperandLayer != "":
			other, err := sess.Layer(req.OperandLayer)
			if err != nil {
				return Layer{}, err
			}
			operand = other.Mask
		case req.OperandMask != nil:
			if operand, err = decodePayload(req.OperandMask, sess.Image.Width(), sess.Image.Height()); err != nil {
				return Layer{}, err
			}
		default:
			return Layer{}, ErrMissingOperand
		}
	}

	updated, err := sess.UpdateLayer(layerID, req.ExpectedVersion, func(l *Layer) error {
		operands := []*mask.Mask{l.Mask}
		if operand != nil {
			operands = append(operands, operand)
		}
		m, err := mask.Apply(op, kernel, operands...)
		if err != nil {
			return err
		}
		l.Mask = m
		return nil
	})
	if err != nil {
		return Layer{}, err
	}
	utils.Logger.Info("mask operation applied",
		zap.String("session", sess.ID),
		zap.String("layer", layerID),
		zap.String("op", string(op)),
		zap.Int64("version", updated.Version))
	return updated, nil
}

// ApplyStrokes 把画笔、橡皮擦轨迹合并进图层掩码
func (s *LayerService) ApplyStrokes(sessionID, layerID string, req model.StrokesRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	strokes := make([]mask.Stroke, 0, len(req.Strokes))
	for _, st := range req.Strokes {
		pts := make([]image.Point, len(st.Points))
		for i, p := range st.Points {
			pts[i] = image.Pt(p.X, p.Y)
		}
		strokes = append(strokes, mask.Stroke{Points: pts, Radius: st.Radius, Erase: st.Erase})
	}
	return sess.UpdateLayer(layerID, req.ExpectedVersion, func(l *Layer) error {
		m, err := mask.ApplyStrokes(l.Mask, strokes)
		if err != nil {
			return err
		}
		l.Mask = m
		return nil
	})
}

// defaultCurveRadius 重绘曲线时的默认笔画半径
const defaultCurveRadius = 1.0

// RedrawCurve 用编辑后的有序点重新生成图层掩码，原掩码被整体替换
func (s *LayerService) RedrawCurve(sessionID, layerID string, req model.CurveRequest) (Layer, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Layer{}, err
	}
	radius := req.Radius
	if radius <= 0 {
		radius = defaultCurveRadius
	}
	pts := make([]image.Point, len(req.Points))
	for i, p := range req.Points {
		pts[i] = image.Pt(p.X, p.Y)
	}
	m := mask.Rasterize(sess.Image.Width(), sess.Image.Height(), pts, radius)
	if m.Count() == 0 {
		return Layer{}, mask.ErrEmptyPayload
	}
	updated, err := sess.UpdateLayer(layerID, req.ExpectedVersion, func(l *Layer) error {
		l.Mask = m
		return nil
	})
	if err != nil {
		return Layer{}, err
	}
	utils.Logger.Info("layer curve redrawn",
		zap.String("session", sess.ID),
		zap.String("layer", layerID),
		zap.Int("points", len(pts)),
		zap.Int64("version", updated.Version))
	return updated, nil
}

// DeleteLayer 删除图层
func (s *LayerService) DeleteLayer(sessionID, layerID string) error {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.DeleteLayer(layerID)
}

// Preview 原图叠加全部可见图层的 PNG，selected 图层加深显示
func (s *LayerService) Preview(sessionID, selected string) ([]byte, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	layers := sess.Layers()
	overlays := make([]preview.Overlay, 0, len(layers))
	for _, l := range layers {
		overlays = append(overlays, preview.Overlay{
			Mask:     l.Mask,
			Color:    color.NRGBA{R: l.Color.RGB[0], G: l.Color.RGB[1], B: l.Color.RGB[2], A: 0xff},
			Opacity:  l.Opacity,
			Visible:  l.Visible,
			Selected: l.ID == selected,
		})
	}
	img, err := preview.Composite(sess.Image, overlays)
	if err != nil {
		return nil, err
	}
	return preview.EncodePNG(img)
}
