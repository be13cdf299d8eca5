package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/openrport/rguard/share/logger"
)

type Task interface {
	Run(ctx context.Context) error
}

// Scheduler runs tasks on cron schedules. A run that is still going when the next one is
// due is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

func New(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Add registers task under name with a standard cron spec or a descriptor such as "@daily".
func (s *Scheduler) Add(name, spec string, task Task) error {
	log := s.log.Fork(name)
	_, err := s.cron.AddFunc(spec, func() {
		log.Debugf("task started")
		if err := task.Run(s.ctx); err != nil {
			log.Errorf("finished with an error: %v.", err)
			return
		}
		log.Debugf("task finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf("%s: %v %v", msg, err, keysAndValues)
}
