package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rewards-engine/pkg/rediskey"
	"rewards-engine/pkg/sequence"
	pkgtask "rewards-engine/pkg/task"
	"rewards-engine/pkg/taskname"
	"rewards-engine/services/membership"
)

// Sweeper resets membership baselines whose subscription has ended.
type Sweeper interface {
	ResetExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer pkgtask.Enqueuer
	redis    *redis.Client
	seq      sequence.Generator
	sweeper  Sweeper
	now      func() time.Time
}

type Params struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Enqueuer   pkgtask.Enqueuer
	Membership *membership.Service
	Redis      *redis.Client      `optional:"true"`
	Seq        sequence.Generator `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
		redis:    p.Redis,
		seq:      p.Seq,
		sweeper:  p.Membership,
		now:      time.Now,
	}
}

type sweepPayload struct {
	JobID string `json:"job_id"`
	Day   string `json:"day"`
}

// EnqueueExpirySweep records a pending job and queues the sweep. Only the
// first scheduler to claim the day's lock enqueues.
func (s *Service) EnqueueExpirySweep(ctx context.Context) error {
	day := s.now().UTC().Format("2006-01-02")

	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, rediskey.BuildSweepLockKey(day), "1", 25*time.Hour).Result()
		if err != nil {
			zap.L().Warn("failed to claim sweep lock, enqueueing anyway", zap.Error(err))
		} else if !ok {
			zap.L().Info("expiry sweep already enqueued", zap.String("day", day))
			return nil
		}
	}

	job := Job{
		ID:       s.node.Generate().String(),
		Code:     s.jobCode(ctx),
		TaskName: taskname.MembershipExpirySweep,
		Status:   JobStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return err
	}

	payload, _ := json.Marshal(sweepPayload{JobID: job.ID, Day: day})
	task := asynq.NewTask(taskname.MembershipExpirySweep, payload)

	if _, err := s.enqueuer.Enqueue(ctx, task, asynq.Queue("low"), asynq.MaxRetry(3)); err != nil {
		s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":    JobStatusFailed,
			"error_msg": err.Error(),
		})
		return err
	}

	zap.L().Info("enqueued expiry sweep", zap.String("job_id", job.ID), zap.String("day", day))
	return nil
}

// HandleExpirySweep is the asynq handler for taskname.MembershipExpirySweep.
func (s *Service) HandleExpirySweep(ctx context.Context, t *asynq.Task) error {
	var payload sweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid expiry sweep payload", zap.Error(err))
		return err
	}

	_, err := s.RunExpirySweep(ctx, payload.JobID)
	return err
}

// RunExpirySweep resets expired baselines and records the outcome on the job.
// An empty jobID creates a new job record.
func (s *Service) RunExpirySweep(ctx context.Context, jobID string) (int64, error) {
	started := s.now()
	db := s.db.WithContext(ctx)

	if jobID == "" {
		job := Job{
			ID:        s.node.Generate().String(),
			Code:      s.jobCode(ctx),
			TaskName:  taskname.MembershipExpirySweep,
			Status:    JobStatusRunning,
			StartedAt: &started,
		}
		if err := db.Create(&job).Error; err != nil {
			return 0, err
		}
		jobID = job.ID
	} else if err := db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":     JobStatusRunning,
		"started_at": started,
	}).Error; err != nil {
		return 0, err
	}

	n, err := s.sweeper.ResetExpired(ctx, started)
	completed := s.now()
	if err != nil {
		db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
			"status":       JobStatusFailed,
			"error_msg":    err.Error(),
			"completed_at": completed,
		})
		zap.L().Error("expiry sweep failed", zap.String("job_id", jobID), zap.Error(err))
		return 0, err
	}

	meta, _ := json.Marshal(map[string]any{"reset": n})
	if err := db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":       JobStatusSuccess,
		"completed_at": completed,
		"metadata":     datatypes.JSON(meta),
	}).Error; err != nil {
		return n, err
	}

	zap.L().Info("expiry sweep finished",
		zap.String("job_id", jobID),
		zap.Int64("reset", n),
		zap.Duration("duration", completed.Sub(started)),
	)
	return n, nil
}

func (s *Service) jobCode(ctx context.Context) string {
	if s.seq == nil {
		return ""
	}
	code, err := s.seq.NextJobCode(ctx)
	if err != nil {
		zap.L().Warn("failed to generate job code", zap.Error(err))
		return ""
	}
	return code
}
