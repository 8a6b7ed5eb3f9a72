package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/export"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/service"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

// FeedSource: откуда планировщик берёт классы и их серии
type FeedSource interface {
	ListClasses(ctx context.Context) ([]*model.Class, error)
	ClassInputs(ctx context.Context, classID int64) (*model.Class, *time.Location, []timeline.SeriesInput, error)
}

// Scheduler управляет фоновыми задачами: периодически публикует .ics-фиды классов
type Scheduler struct {
	source FeedSource
	fs     afero.Fs
	dir    string
	spec   string
	clock  service.Clock
	logger *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
	// первая публикация идёт мимо cron, Stop ждёт её отдельно
	initial sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(source FeedSource, fs afero.Fs, dir, spec string, clock service.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Scheduler{
		source: source,
		fs:     fs,
		dir:    dir,
		spec:   spec,
		clock:  clock,
		logger: logger,
	}
}

// FeedPath: путь фида класса внутри каталога dir
func FeedPath(dir string, classID int64) string {
	return filepath.Join(dir, fmt.Sprintf("class-%d.ics", classID))
}

// Start запускает фоновые задачи. Пустой каталог фидов отключает публикацию.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		s.logger.Info("Feed publishing disabled, FEED_DIR is empty")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.spec, func() { s.publish(ctx) }); err != nil {
		return fmt.Errorf("schedule feed job %q: %w", s.spec, err)
	}

	s.logger.Info("Starting background scheduler",
		zap.String("feed_dir", s.dir),
		zap.String("spec", s.spec),
	)

	// Первый запуск сразу при старте
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.publish(ctx)
	}()

	c.Start()
	s.cron = c
	return nil
}

// Stop останавливает фоновые задачи и ждёт завершения текущей публикации
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.cron = nil
}

func (s *Scheduler) publish(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.PublishFeeds(ctx); err != nil {
		s.logger.Error("Failed to publish feeds", zap.Error(err))
	}
}

// PublishFeeds выгружает фид каждого класса. Ошибка одного класса не останавливает остальные.
func (s *Scheduler) PublishFeeds(ctx context.Context) (int, error) {
	classes, err := s.source.ListClasses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list classes: %w", err)
	}

	var (
		published int
		errs      []error
	)
	for _, class := range classes {
		if err := s.PublishClass(ctx, class.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		published++
	}

	s.logger.Info("Feeds published",
		zap.Int("published", published),
		zap.Int("failed", len(errs)),
	)
	return published, errors.Join(errs...)
}

// PublishClass выгружает фид одного класса
func (s *Scheduler) PublishClass(ctx context.Context, classID int64) error {
	class, _, inputs, err := s.source.ClassInputs(ctx, classID)
	if err != nil {
		return fmt.Errorf("load class %d: %w", classID, err)
	}

	var buf bytes.Buffer
	skipped, err := export.WriteClassCalendar(&buf, class, inputs, s.clock.Now())
	if err != nil {
		return err
	}
	for _, e := range skipped {
		s.logger.Warn("Series skipped in feed",
			zap.Int64("class_id", classID),
			zap.Int64("series_id", e.SeriesID),
			zap.Error(e.Err),
		)
	}

	if err := s.writeAtomic(FeedPath(s.dir, classID), buf.Bytes()); err != nil {
		return fmt.Errorf("write feed of class %d: %w", classID, err)
	}
	return nil
}

// writeAtomic пишет во временный файл рядом с целевым и переименовывает его:
// читатель фида видит либо старую, либо новую версию целиком
func (s *Scheduler) writeAtomic(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
