package workers

import (
	"dinein_backend/pkg/utils"

	"github.com/pkg/errors"
)

// Manager starts and stops a fixed set of workers.
type Manager struct {
	workers []Worker
	started []Worker
}

func NewManager(workers ...Worker) *Manager {
	return &Manager{workers: workers}
}

// Start starts workers in order. If one fails, the ones already started are stopped.
func (m *Manager) Start() error {
	utils.LogInfo("Starting worker manager", map[string]interface{}{"worker_count": len(m.workers)})

	for _, worker := range m.workers {
		if err := worker.Start(); err != nil {
			m.Stop()
			return errors.Wrapf(err, "start worker %s", worker.Name())
		}
		m.started = append(m.started, worker)
		utils.LogInfo("Worker started", map[string]interface{}{"name": worker.Name()})
	}
	return nil
}

// Stop stops started workers in reverse order.
func (m *Manager) Stop() {
	for i := len(m.started) - 1; i >= 0; i-- {
		worker := m.started[i]
		worker.Stop()
		utils.LogInfo("Worker stopped", map[string]interface{}{"name": worker.Name()})
	}
	m.started = nil
}
