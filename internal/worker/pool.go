package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/services"
)

const maxAttempts = 3

type mailer interface {
	SendPasswordResetEmail(to, resetLink string) error
	SendRatingNotification(to, recipeTitle string, rating int) error
	SendRecipePDF(to, recipeTitle string, pdf []byte) error
}

type recipeLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
}

type pdfRenderer interface {
	Render(recipe *models.Recipe) ([]byte, error)
}

// Pool drains the email queue. Each job is sent by exactly one worker; failed
// jobs are pushed back after a backoff until maxAttempts is reached.
type Pool struct {
	redis       *redis.Client
	mail        mailer
	recipes     recipeLoader
	pdf         pdfRenderer
	workerCount int
	logger      *zap.Logger

	blockTimeout time.Duration
	backoff      func(attempt int) time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Retries waiting out their backoff. Stop pushes them back immediately.
	retryMu sync.Mutex
	retries map[*time.Timer][]byte
	retryWG sync.WaitGroup
}

func NewPool(redisClient *redis.Client, mail mailer, recipes recipeLoader, pdf pdfRenderer, workerCount int, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:        redisClient,
		mail:         mail,
		recipes:      recipes,
		pdf:          pdf,
		workerCount:  workerCount,
		logger:       logger,
		retries:      make(map[*time.Timer][]byte),
		blockTimeout: 5 * time.Second,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("email workers started", zap.Int("count", p.workerCount))
}

// Stop cancels pending pops, waits for in-flight jobs to finish and re-queues
// retries still waiting out their backoff.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()

	p.retryMu.Lock()
	for t, jobBytes := range p.retries {
		// A timer that already fired is re-queueing on its own.
		if t.Stop() {
			delete(p.retries, t)
			p.requeue(jobBytes)
			p.retryWG.Done()
		}
	}
	p.retryMu.Unlock()
	p.retryWG.Wait()
}

// pendingRetries reports how many failed jobs are waiting out their backoff.
func (p *Pool) pendingRetries() int {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	return len(p.retries)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			log.Debug("worker shutting down")
			return
		}

		result, err := p.redis.BLPop(ctx, p.blockTimeout, services.EmailQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn("queue pop failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.EmailJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error("failed to parse email job", zap.Error(err))
			continue
		}

		// Jobs are handled outside ctx so shutdown lets an in-flight send finish.
		jobCtx := context.WithoutCancel(ctx)

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(jobCtx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Debug("processing email job", zap.String("job_id", job.ID.String()), zap.String("type", job.Type))
		err = p.process(jobCtx, &job)
		p.redis.Del(jobCtx, lockKey)

		if err != nil {
			p.handleFailure(&job, err)
		} else {
			log.Info("email sent", zap.String("job_id", job.ID.String()), zap.String("type", job.Type))
		}
	}
}

func (p *Pool) process(ctx context.Context, job *models.EmailJob) error {
	switch job.Type {
	case models.JobPasswordReset:
		return p.mail.SendPasswordResetEmail(job.To, job.ResetLink)

	case models.JobRatingAlert:
		recipe, err := p.recipes.GetByID(ctx, job.RecipeID)
		if err != nil {
			return fmt.Errorf("failed to load recipe %s: %w", job.RecipeID, err)
		}
		return p.mail.SendRatingNotification(job.To, recipe.Title, job.Rating)

	case models.JobRecipeShare:
		recipe, err := p.recipes.GetByID(ctx, job.RecipeID)
		if err != nil {
			return fmt.Errorf("failed to load recipe %s: %w", job.RecipeID, err)
		}
		pdf, err := p.pdf.Render(recipe)
		if err != nil {
			return fmt.Errorf("failed to render recipe pdf: %w", err)
		}
		return p.mail.SendRecipePDF(job.To, recipe.Title, pdf)

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pool) handleFailure(job *models.EmailJob, err error) {
	job.RetryCount++
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.Int("attempt", job.RetryCount),
		zap.Error(err),
	}

	if job.RetryCount >= maxAttempts {
		p.logger.Error("email job dropped after max retries", fields...)
		return
	}

	p.logger.Warn("email job failed, retrying", fields...)
	jobBytes, _ := json.Marshal(job)

	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	p.retryWG.Add(1)
	var t *time.Timer
	t = time.AfterFunc(p.backoff(job.RetryCount), func() {
		defer p.retryWG.Done()
		p.retryMu.Lock()
		delete(p.retries, t)
		p.retryMu.Unlock()
		p.requeue(jobBytes)
	})
	p.retries[t] = jobBytes
}

func (p *Pool) requeue(jobBytes []byte) {
	if err := p.redis.RPush(context.Background(), services.EmailQueue, jobBytes).Err(); err != nil {
		p.logger.Error("failed to re-queue email job", zap.Error(err))
	}
}
