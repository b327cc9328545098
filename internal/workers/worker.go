package workers

// Worker is a background job started and stopped with the server.
type Worker interface {
	Start() error
	// Stop blocks until a running tick finishes.
	Stop()
	Name() string
}
