package registry

// Service is the interface for all long-running engine services
// (listeners, scheduler, publisher).
type Service interface {
	Start() error
	Stop() error
}
