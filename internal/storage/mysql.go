package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-screener/internal/config"
	"resume-screener/internal/constants"
	"resume-screener/internal/storage/models"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("resume-screener/storage/mysql")

type spanCtxKey struct{}

// GormTracingPlugin 是一个GORM插件，为每条数据库操作创建 OpenTelemetry span
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("INSERT")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, table),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", table),
			))
		if stmt := db.Statement.SQL.String(); stmt != "" {
			span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(stmt)))
		}
		db.Statement.Context = context.WithValue(newCtx, spanCtxKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		}
	}
}

// MySQL 保存排名历史与出站消息
type MySQL struct {
	db     *gorm.DB
	cfg    *config.MySQLConfig
	logger zerolog.Logger
}

// NewMySQL 创建MySQL客户端，注册追踪插件并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig, log zerolog.Logger) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	timeout := cfg.ConnectTimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, timeout)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		PrepareStmt:                              true,
		NowFunc:                                  func() time.Time { return time.Now().Local() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg, logger: log.With().Str("component", "mysql").Logger()}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	m.logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("成功连接到MySQL并完成表结构迁移")
	return m, nil
}

func gormLogLevel(level int) logger.LogLevel {
	switch level {
	case 1:
		return logger.Silent
	case 2:
		return logger.Error
	case 3:
		return logger.Warn
	case 4:
		return logger.Info
	default:
		return logger.Warn
	}
}

// autoMigrateSchema 静默执行表结构迁移
func (m *MySQL) autoMigrateSchema() error {
	silent := m.db.Session(&gorm.Session{Logger: m.db.Logger.LogMode(logger.Silent)})
	if err := silent.AutoMigrate(
		&models.RankingRun{},
		&models.RankingEntry{},
		&models.OutboxMessage{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// EventTarget 排名完成事件的投递目标
type EventTarget struct {
	Exchange   string
	RoutingKey string
}

// SaveRankingRun 在同一事务中写入排名汇总、每行结果和完成事件。
// target 的 Exchange 为空时不写出站消息。
func (m *MySQL) SaveRankingRun(ctx context.Context, result *types.BatchResult, jdFileName string, target EventTarget) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("ranking run id is required")
	}

	run := models.RankingRun{
		RunID:      result.RunID,
		Role:       result.Role,
		JDFileName: jdFileName,
		Total:      len(result.Outcomes),
		Succeeded:  result.Count(types.ItemSuccess),
		Skipped:    result.Count(types.ItemSkipped),
		Failed:     result.Count(types.ItemFailed),
		CSVPath:    result.CSVPath,
		XLSXPath:   result.XLSXPath,
	}

	entries, err := rankingEntries(result)
	if err != nil {
		return err
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("写入排名记录失败: %w", err)
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 100).Error; err != nil {
				return fmt.Errorf("写入排名明细失败: %w", err)
			}
		}
		if target.Exchange == "" {
			return nil
		}

		msg, err := rankingCompletedMessage(result, target)
		if err != nil {
			return err
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入出站消息失败: %w", err)
		}
		return nil
	})
}

// rankingEntries 转换排名明细。只保存报告的对象名，下载链接在读取时重新签名。
func rankingEntries(result *types.BatchResult) ([]models.RankingEntry, error) {
	entries := make([]models.RankingEntry, 0, len(result.Entries))
	for _, e := range result.Entries {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成记录ID失败: %w", err)
		}
		entries = append(entries, models.RankingEntry{
			EntryID:          id.String(),
			RunID:            result.RunID,
			Rank:             e.Rank,
			FileName:         e.FileName,
			Score:            e.Score,
			MatchedTermsJSON: utils.ConvertArrayToJSON(e.MatchedTerms),
			Feedback:         e.Feedback,
			Status:           string(e.Status),
			ReportPath:       e.ReportPath,
			ReportObject:     e.ReportObject,
		})
	}
	return entries, nil
}

func rankingCompletedMessage(result *types.BatchResult, target EventTarget) (*models.OutboxMessage, error) {
	event := RankingCompletedEvent{
		RunID:       result.RunID,
		Role:        result.Role,
		Total:       len(result.Outcomes),
		Succeeded:   result.Count(types.ItemSuccess),
		Skipped:     result.Count(types.ItemSkipped),
		Failed:      result.Count(types.ItemFailed),
		CSVPath:     result.CSVPath,
		CompletedAt: time.Now(),
	}
	if len(result.Entries) > 0 {
		event.TopFile = result.Entries[0].FileName
		event.TopScore = result.Entries[0].Score
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化排名完成事件失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateType:    constants.AggregateTypeRankingRun,
		AggregateID:      result.RunID,
		EventType:        constants.OutboxEventRankingCompleted,
		Payload:          string(payload),
		TargetExchange:   target.Exchange,
		TargetRoutingKey: target.RoutingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}

// ListRankingRuns 按时间倒序列出最近的排名记录（不含明细）
func (m *MySQL) ListRankingRuns(ctx context.Context, limit int) ([]models.RankingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.RankingRun
	err := m.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRankingRun 读取一次排名及其按名次排序的明细
func (m *MySQL) GetRankingRun(ctx context.Context, runID string) (*models.RankingRun, error) {
	var run models.RankingRun
	err := m.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("`rank` asc") }).
		First(&run, "run_id = ?", runID).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}
