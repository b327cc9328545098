package pendingexpiry

import (
	"context"
	"time"

	"dinein_backend/pkg/utils"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// runTimeout bounds a single sweep.
const runTimeout = time.Minute

// Worker cancels payment transactions that stayed pending longer than ttl.
type Worker struct {
	expirer  Expirer
	recorder Recorder
	schedule string
	ttl      time.Duration
	batch    int
	cron     *cron.Cron
}

const defaultBatch = 100

func NewWorker(expirer Expirer, recorder Recorder, schedule string, ttl time.Duration, batch int) *Worker {
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Worker{
		expirer:  expirer,
		recorder: recorder,
		schedule: schedule,
		ttl:      ttl,
		batch:    batch,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (w *Worker) Name() string {
	return "pending_expiry"
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := w.run(ctx); err != nil {
			utils.LogError(err, "Pending expiry sweep failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %q", w.schedule)
	}

	w.cron.Start()
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// run drains expired transactions batch by batch until a short batch comes back.
func (w *Worker) run(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.expirer.ExpirePending(ctx, w.ttl, w.batch)
		if err != nil {
			return total, errors.Wrap(err, "expire pending transactions")
		}
		total += n
		if w.recorder != nil && n > 0 {
			w.recorder.PendingExpired(n)
		}
		if n < w.batch || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		utils.LogInfo("Expired pending transactions", map[string]interface{}{"count": total, "ttl": w.ttl.String()})
	}
	return total, nil
}
