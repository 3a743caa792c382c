package taskname

const (
	// Flyer tasks
	FlyerDistribute = "flyer:distribute"

	// Statistic tasks
	StatisticRebuild = "statistic:rebuild"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
