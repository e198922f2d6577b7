package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/segment"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

// LayerCache 自动分层结果缓存
type LayerCache interface {
	GetAutoLayers(ctx context.Context, key string) (*model.AutoLayerResult, error)
	SetAutoLayers(ctx context.Context, key string, result *model.AutoLayerResult) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AutoLayersKey 图像 MD5 加上影响结果的全部参数
func AutoLayersKey(md5 string, opt segment.Options) string {
	return fmt.Sprintf("%s:k%d:bg%t:s%d:m%d:ks%d:it%d:eps%g:a%d",
		md5, opt.K, opt.ExcludeBackground, opt.MinSaturation, opt.MinClusterPixels,
		opt.KernelSize, opt.MaxIterations, opt.Epsilon, opt.Attempts)
}

// GetAutoLayers 从缓存获取分层结果
func (s *RedisService) GetAutoLayers(ctx context.Context, key string) (*model.AutoLayerResult, error) {
	data, err := s.client.Get(ctx, "layers:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var result model.AutoLayerResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal layer result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetAutoLayers 设置分层结果到缓存
func (s *RedisService) SetAutoLayers(ctx context.Context, key string, result *model.AutoLayerResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, "layers:"+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
