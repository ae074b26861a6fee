package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-screener/internal/config"

	"github.com/rs/zerolog"
)

// Storage 存储管理器，聚合所有可选的存储依赖。
// 未配置或初始化失败的组件为 nil，调用方需自行降级。
type Storage struct {
	// 对象存储：异步任务上传文件与反馈报告镜像
	MinIO *MinIO

	// 消息队列：异步批量任务与完成事件
	RabbitMQ *RabbitMQ

	// 关系型数据库：排名历史与出站表
	MySQL *MySQL

	// 键值存储：任务状态、分布式锁、提取文本缓存
	Redis *Redis
}

// NewStorage 根据配置初始化各存储组件。
// 单个组件失败只记录警告；只有当配置了组件却全部失败时才返回错误。
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error
	var initErrors []string
	configured := 0

	if cfg.MinIOEnabled() {
		configured++
		s.MinIO, err = NewMinIO(&cfg.MinIO, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败")
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		}
	}

	if cfg.RabbitMQEnabled() {
		configured++
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err == nil {
			err = s.RabbitMQ.SetupTopology()
		}
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
			if s.RabbitMQ != nil {
				s.RabbitMQ.Close()
				s.RabbitMQ = nil
			}
		}
	}

	if cfg.MySQLEnabled() {
		configured++
		s.MySQL, err = NewMySQL(&cfg.MySQL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MySQL失败")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	if cfg.RedisEnabled() {
		configured++
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("初始化Redis失败")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	} else {
		logger.Debug().Msg("Redis未配置, 跳过初始化")
	}

	if configured > 0 && len(initErrors) == configured {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		logger.Warn().Str("failed", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败，相关功能已关闭")
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close(logger zerolog.Logger) {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
