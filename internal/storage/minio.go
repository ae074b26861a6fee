package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-screener/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
)

// ObjectStorage 对象存储接口：异步任务的上传文件与反馈报告镜像
type ObjectStorage interface {
	// UploadBatchFile 保存异步批量任务的一个输入文件，返回对象键和内容MD5
	UploadBatchFile(ctx context.Context, jobID, fileName string, data []byte) (string, string, error)
	// DownloadBatchFile 读取异步批量任务的输入文件
	DownloadBatchFile(ctx context.Context, objectName string) ([]byte, error)
	// DeleteBatchFiles 任务结束后清理输入文件
	DeleteBatchFiles(ctx context.Context, objectNames []string) error
	// UploadReport 把本地报告文件镜像到报告存储桶
	UploadReport(ctx context.Context, runID, localPath string) (string, error)
	// PresignedReportURL 生成报告下载链接
	PresignedReportURL(ctx context.Context, objectName string) (string, error)
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	uploadsBucket string
	reportsBucket string
	logger        zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保两个存储桶存在
func NewMinIO(cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	logger = logger.With().Str("component", "minio").Logger()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		uploadsBucket: defaultString(cfg.UploadsBucket, "screening-uploads"),
		reportsBucket: defaultString(cfg.ReportsBucket, "screening-reports"),
		logger:        logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, bucket := range []string{m.uploadsBucket, m.reportsBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	if cfg.UploadExpireDays > 0 || cfg.ReportExpireDays > 0 {
		if err := m.setupLifecycleRules(ctx); err != nil {
			logger.Warn().Err(err).Msg("设置存储桶生命周期规则失败")
		}
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("uploads_bucket", m.uploadsBucket).
		Str("reports_bucket", m.reportsBucket).
		Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("存储桶已创建")
	return nil
}

// setupLifecycleRules 为上传桶和报告桶设置过期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.UploadExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.uploadsBucket, "expire-uploads", m.cfg.UploadExpireDays); err != nil {
			return fmt.Errorf("为上传存储桶 %s 设置生命周期失败: %w", m.uploadsBucket, err)
		}
	}
	if m.cfg.ReportExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.reportsBucket, "expire-reports", m.cfg.ReportExpireDays); err != nil {
			return fmt.Errorf("为报告存储桶 %s 设置生命周期失败: %w", m.reportsBucket, err)
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// UploadFile 上传对象到指定存储桶
func (m *MinIO) UploadFile(ctx context.Context, bucket, objectName string, reader io.Reader, fileSize int64, contentType string) error {
	info, err := m.client.PutObject(ctx, bucket, objectName, reader, fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 %s/%s 失败: %w", bucket, objectName, err)
	}
	m.logger.Debug().Str("bucket", bucket).Str("object", objectName).Int64("size", info.Size).Msg("对象已上传")
	return nil
}

// UploadBatchFile 流式上传任务输入文件并同时计算MD5
func (m *MinIO) UploadBatchFile(ctx context.Context, jobID, fileName string, data []byte) (string, string, error) {
	objectName := fmt.Sprintf("jobs/%s/%s", jobID, filepath.Base(fileName))

	hash := md5.New()
	tee := io.TeeReader(bytes.NewReader(data), hash)
	if err := m.UploadFile(ctx, m.uploadsBucket, objectName, tee, int64(len(data)), getContentType(filepath.Ext(fileName))); err != nil {
		return "", "", err
	}
	return objectName, hex.EncodeToString(hash.Sum(nil)), nil
}

// DownloadBatchFile 下载任务输入文件
func (m *MinIO) DownloadBatchFile(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.uploadsBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.uploadsBucket, objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.uploadsBucket, objectName, err)
	}
	return data, nil
}

// DeleteBatchFiles 删除任务输入文件，单个失败不影响其余文件
func (m *MinIO) DeleteBatchFiles(ctx context.Context, objectNames []string) error {
	var failed []string
	for _, name := range objectNames {
		if err := m.client.RemoveObject(ctx, m.uploadsBucket, name, minio.RemoveObjectOptions{}); err != nil {
			m.logger.Warn().Err(err).Str("object", name).Msg("删除任务输入文件失败")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("删除 %d 个对象失败: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// UploadReport 把本地报告上传到 reports/<runID>/<文件名>
func (m *MinIO) UploadReport(ctx context.Context, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开报告文件失败: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("读取报告文件信息失败: %w", err)
	}

	objectName := fmt.Sprintf("reports/%s/%s", runID, filepath.Base(localPath))
	if err := m.UploadFile(ctx, m.reportsBucket, objectName, f, stat.Size(), getContentType(filepath.Ext(localPath))); err != nil {
		return "", err
	}
	return objectName, nil
}

// PresignedReportURL 生成报告的预签名下载链接
func (m *MinIO) PresignedReportURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(m.cfg.PresignExpiryMins) * time.Minute
	if expiry <= 0 {
		expiry = time.Hour
	}
	u, err := m.client.PresignedGetObject(ctx, m.reportsBucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// getContentType 按扩展名推断内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
