package workers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *stubWorker) Start() error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start "+w.name)
	return nil
}

func (w *stubWorker) Stop() { *w.log = append(*w.log, "stop "+w.name) }

func (w *stubWorker) Name() string { return w.name }

func TestManagerStopsInReverseOrder(t *testing.T) {
	var log []string
	m := NewManager(&stubWorker{name: "a", log: &log}, &stubWorker{name: "b", log: &log})

	require.NoError(t, m.Start())
	m.Stop()
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)

	m.Stop()
	assert.Len(t, log, 4)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager(
		&stubWorker{name: "a", log: &log},
		&stubWorker{name: "b", log: &log, startErr: errors.New("boom")},
	)

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start worker b")
	assert.Equal(t, []string{"start a", "stop a"}, log)
}
