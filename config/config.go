package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/yyy-OPS/SciDataExtractor/segment"
	"github.com/yyy-OPS/SciDataExtractor/tracer"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Session SessionConfig `mapstructure:"session"`
	Segment SegmentConfig `mapstructure:"segment"`
	GrabCut GrabCutConfig `mapstructure:"grabcut"`
	Tracer  TracerConfig  `mapstructure:"tracer"`
	Extract ExtractConfig `mapstructure:"extract"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// SessionConfig 会话在内存中保存，超过 TTL 未访问即被清理
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	MaxLayers       int           `mapstructure:"max_layers"`
}

type SegmentConfig struct {
	K                int           `mapstructure:"k"`
	MinSaturation    int           `mapstructure:"min_saturation"`
	MinClusterPixels int           `mapstructure:"min_cluster_pixels"`
	KernelSize       int           `mapstructure:"kernel_size"`
	MaxIterations    int           `mapstructure:"max_iterations"`
	Epsilon          float64       `mapstructure:"epsilon"`
	Attempts         int           `mapstructure:"attempts"`
	ColorTolerance   int           `mapstructure:"color_tolerance"`
	SampleRadius     int           `mapstructure:"sample_radius"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type GrabCutConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Iterations    int  `mapstructure:"iterations"`
	BoxRadius     int  `mapstructure:"box_radius"`
	MaxConcurrent int  `mapstructure:"max_concurrent"`
	QueueTimeout  int  `mapstructure:"queue_timeout"`
}

// TracerConfig 动量追踪的经验常数
type TracerConfig struct {
	MomentumWeight float64 `mapstructure:"momentum_weight"`
	Inertia        float64 `mapstructure:"inertia"`
	BaseRadius     int     `mapstructure:"base_radius"`
	MaxGapRadius   int     `mapstructure:"max_gap_radius"`
	SnapRadius     int     `mapstructure:"snap_radius"`
}

type ExtractConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	PlotMargin int           `mapstructure:"plot_margin"`
}

// Options 转为聚类参数
func (c SegmentConfig) Options() segment.Options {
	return segment.Options{
		K:                 c.K,
		ExcludeBackground: true,
		MinSaturation:     c.MinSaturation,
		MinClusterPixels:  c.MinClusterPixels,
		KernelSize:        c.KernelSize,
		MaxIterations:     c.MaxIterations,
		Epsilon:           c.Epsilon,
		Attempts:          c.Attempts,
	}
}

// Params 转为追踪参数
func (c TracerConfig) Params() tracer.Params {
	return tracer.Params{
		MomentumWeight: c.MomentumWeight,
		Inertia:        c.Inertia,
		BaseRadius:     c.BaseRadius,
		MaxGapRadius:   c.MaxGapRadius,
		SnapRadius:     c.SnapRadius,
	}
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCIDATA")
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Tracer.Params().Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracer config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.cleanup_interval", d.Session.CleanupInterval)
	v.SetDefault("session.max_sessions", d.Session.MaxSessions)
	v.SetDefault("session.max_layers", d.Session.MaxLayers)

	v.SetDefault("segment.k", d.Segment.K)
	v.SetDefault("segment.min_saturation", d.Segment.MinSaturation)
	v.SetDefault("segment.min_cluster_pixels", d.Segment.MinClusterPixels)
	v.SetDefault("segment.kernel_size", d.Segment.KernelSize)
	v.SetDefault("segment.max_iterations", d.Segment.MaxIterations)
	v.SetDefault("segment.epsilon", d.Segment.Epsilon)
	v.SetDefault("segment.attempts", d.Segment.Attempts)
	v.SetDefault("segment.color_tolerance", d.Segment.ColorTolerance)
	v.SetDefault("segment.sample_radius", d.Segment.SampleRadius)
	v.SetDefault("segment.timeout", d.Segment.Timeout)

	v.SetDefault("grabcut.enabled", d.GrabCut.Enabled)
	v.SetDefault("grabcut.iterations", d.GrabCut.Iterations)
	v.SetDefault("grabcut.box_radius", d.GrabCut.BoxRadius)
	v.SetDefault("grabcut.max_concurrent", d.GrabCut.MaxConcurrent)
	v.SetDefault("grabcut.queue_timeout", d.GrabCut.QueueTimeout)

	v.SetDefault("tracer.momentum_weight", d.Tracer.MomentumWeight)
	v.SetDefault("tracer.inertia", d.Tracer.Inertia)
	v.SetDefault("tracer.base_radius", d.Tracer.BaseRadius)
	v.SetDefault("tracer.max_gap_radius", d.Tracer.MaxGapRadius)
	v.SetDefault("tracer.snap_radius", d.Tracer.SnapRadius)

	v.SetDefault("extract.timeout", d.Extract.Timeout)
	v.SetDefault("extract.plot_margin", d.Extract.PlotMargin)
}

// Default 内置默认配置
func Default() *Config {
	tp := tracer.DefaultParams()
	so := segment.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			Mode:            "debug",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize: 20 * 1024 * 1024,
			AllowedTypes: []string{
				"image/jpeg", "image/png", "image/jpg", "image/gif",
				"image/bmp", "image/tiff", "image/webp",
			},
		},
		Session: SessionConfig{
			TTL:             2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			MaxSessions:     100,
			MaxLayers:       64,
		},
		Segment: SegmentConfig{
			K:                so.K,
			MinSaturation:    so.MinSaturation,
			MinClusterPixels: so.MinClusterPixels,
			KernelSize:       so.KernelSize,
			MaxIterations:    so.MaxIterations,
			Epsilon:          so.Epsilon,
			Attempts:         so.Attempts,
			ColorTolerance:   20,
			SampleRadius:     2,
			Timeout:          60 * time.Second,
		},
		GrabCut: GrabCutConfig{
			Enabled:       true,
			Iterations:    5,
			BoxRadius:     60,
			MaxConcurrent: 3,
			QueueTimeout:  30,
		},
		Tracer: TracerConfig{
			MomentumWeight: tp.MomentumWeight,
			Inertia:        tp.Inertia,
			BaseRadius:     tp.BaseRadius,
			MaxGapRadius:   tp.MaxGapRadius,
			SnapRadius:     tp.SnapRadius,
		},
		Extract: ExtractConfig{
			Timeout:    30 * time.Second,
			PlotMargin: 10,
		},
	}
}
