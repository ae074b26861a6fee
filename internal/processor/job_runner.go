package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-screener/internal/constants"
	"resume-screener/internal/storage"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JobRunner 异步批量排名：上传文件暂存到对象存储，任务经队列投递，状态保存在 Redis
type JobRunner struct {
	ranker     *BatchRanker
	files      BatchFileStore
	jobs       JobStore
	publisher  JobPublisher
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// NewJobRunner 创建异步任务执行器，任一存储缺失时返回 ErrAsyncUnavailable
func NewJobRunner(ranker *BatchRanker, files BatchFileStore, jobs JobStore, publisher JobPublisher, exchange, routingKey string, logger zerolog.Logger) (*JobRunner, error) {
	if ranker == nil || files == nil || jobs == nil || publisher == nil {
		return nil, ErrAsyncUnavailable
	}
	return &JobRunner{
		ranker:     ranker,
		files:      files,
		jobs:       jobs,
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With().Str("component", "job_runner").Logger(),
	}, nil
}

// Submit 暂存文件、登记任务并投递到队列，返回排队中的任务
func (j *JobRunner) Submit(ctx context.Context, resumes []types.Source, jd types.Source) (*types.BatchJob, error) {
	if len(resumes) == 0 {
		return nil, ErrNoResumes
	}

	jobID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "processor.SubmitJob", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("job.resumes", len(resumes)),
	))
	defer span.End()

	msg := types.BatchJobMessage{JobID: jobID, JDName: jd.Name}
	jdObject, _, err := j.files.UploadBatchFile(ctx, jobID, "jd_"+fileNameOf(jd.Name), jd.Data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("暂存职位描述失败: %w", err)
	}
	msg.JDObject = jdObject

	for i, src := range resumes {
		// 序号前缀避免同名文件互相覆盖
		object, _, err := j.files.UploadBatchFile(ctx, jobID, fmt.Sprintf("%03d_%s", i, fileNameOf(src.Name)), src.Data)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
			j.cleanup(ctx, append([]string{jdObject}, msg.ResumeObjects...))
			return nil, fmt.Errorf("暂存简历 %s 失败: %w", src.Name, err)
		}
		msg.ResumeObjects = append(msg.ResumeObjects, object)
		msg.ResumeNames = append(msg.ResumeNames, src.Name)
	}

	now := time.Now()
	job := &types.BatchJob{
		ID:        jobID,
		Status:    types.JobQueued,
		Role:      utils.BaseName(jd.Name),
		Total:     len(resumes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := j.jobs.SaveJob(ctx, job); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("保存任务状态失败: %w", err)
	}

	if err := j.publisher.PublishJSON(ctx, j.exchange, j.routingKey, msg, true); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		j.cleanup(ctx, append([]string{jdObject}, msg.ResumeObjects...))
		return nil, j.fail(ctx, job, fmt.Errorf("投递任务失败: %w", err))
	}

	j.logger.Info().Str("job_id", jobID).Int("resumes", len(resumes)).Msg("批量排名任务已提交")
	return job, nil
}

// Status 查询任务状态
func (j *JobRunner) Status(ctx context.Context, jobID string) (*types.BatchJob, error) {
	job, err := j.jobs.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// HandleMessage 队列消费回调。返回 false 时消息重新入队。
func (j *JobRunner) HandleMessage(ctx context.Context, body []byte) bool {
	var msg types.BatchJobMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.JobID == "" {
		j.logger.Error().Err(err).Msg("无法解析批量任务消息，丢弃")
		return true
	}

	err := j.Process(ctx, msg)
	switch {
	case err == nil, errors.Is(err, ErrJobLocked):
		return true
	case ctx.Err() != nil:
		// 服务关闭导致中断，重新入队由其他实例继续
		return false
	default:
		j.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("批量排名任务失败")
		return true
	}
}

// Process 执行一条批量任务，同一任务同时只会被一个消费者处理
func (j *JobRunner) Process(ctx context.Context, msg types.BatchJobMessage) error {
	ctx, span := tracer.Start(ctx, "processor.ProcessJob", trace.WithAttributes(attribute.String("job.id", msg.JobID)))
	defer span.End()
	log := j.logger.With().Str("job_id", msg.JobID).Logger()

	lockKey := storage.JobLockKey(msg.JobID)
	lockValue, err := j.jobs.AcquireLock(ctx, lockKey, constants.JobLockTTL)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("获取任务锁失败: %w", err)
	}
	if lockValue == "" {
		log.Info().Msg("任务正在被其他消费者处理，跳过")
		return ErrJobLocked
	}
	defer func() {
		if _, err := j.jobs.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
			log.Warn().Err(err).Msg("释放任务锁失败")
		}
	}()

	job, err := j.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("读取任务状态失败: %w", err)
		}
		job = &types.BatchJob{ID: msg.JobID, Role: utils.BaseName(msg.JDName), Total: len(msg.ResumeObjects), CreatedAt: time.Now()}
	}
	if job.Status == types.JobCompleted || job.Status == types.JobFailed {
		log.Info().Str("status", string(job.Status)).Msg("任务已结束，忽略重复投递")
		return nil
	}

	job.Status = types.JobRunning
	j.save(ctx, job)

	jdData, err := j.files.DownloadBatchFile(ctx, msg.JDObject)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return j.fail(ctx, job, fmt.Errorf("下载职位描述失败: %w", err))
	}
	jd := types.Source{Name: msg.JDName, Data: jdData}

	resumes := make([]types.Source, 0, len(msg.ResumeObjects))
	for i, object := range msg.ResumeObjects {
		name := object
		if i < len(msg.ResumeNames) {
			name = msg.ResumeNames[i]
		}
		data, err := j.files.DownloadBatchFile(ctx, object)
		if err != nil {
			// 数据为空的文件在排名中记为 skipped
			log.Warn().Err(err).Str("object", object).Msg("下载简历失败")
		}
		resumes = append(resumes, types.Source{Name: name, Data: data})
	}

	ranker := j.ranker.WithProgress(func(done, total int, file string) {
		job.Done = done
		j.save(ctx, job)
	})
	result, err := ranker.RankSources(ctx, resumes, jd)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return j.fail(ctx, job, err)
	}

	job.Status = types.JobCompleted
	job.Done = job.Total
	job.Result = result
	j.save(ctx, job)
	j.cleanup(ctx, append([]string{msg.JDObject}, msg.ResumeObjects...))

	log.Info().Int("ranked", len(result.Entries)).Msg("批量排名任务完成")
	return nil
}

func (j *JobRunner) fail(ctx context.Context, job *types.BatchJob, cause error) error {
	job.Status = types.JobFailed
	job.Error = cause.Error()
	j.save(ctx, job)
	return cause
}

func (j *JobRunner) save(ctx context.Context, job *types.BatchJob) {
	job.UpdatedAt = time.Now()
	if err := j.jobs.SaveJob(ctx, job); err != nil {
		j.logger.Warn().Err(err).Str("job_id", job.ID).Msg("保存任务状态失败")
	}
}

func (j *JobRunner) cleanup(ctx context.Context, objects []string) {
	if err := j.files.DeleteBatchFiles(ctx, objects); err != nil {
		j.logger.Warn().Err(err).Msg("清理任务输入文件失败")
	}
}
