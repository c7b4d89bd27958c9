package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API layer to manage background task
// processing: queue management, worker pool control and monitoring.
// Example usage:
//
//	scheduler := NewScheduler(configCache, registry, cache, aggregator)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshDigestTask(aggregator, true))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
