package indexing

import (
	"github.com/rgitdev/ai-assistant/internal/schedule"
)

// JobSchedules holds the cron expressions for the indexing jobs.
type JobSchedules struct {
	IndexMemories      string
	IndexConversations string
	Memorize           string
}

// Jobs returns the scheduler jobs backed by this indexer. The memorize
// job stays parked until a completion provider is available.
func (ix *Indexer) Jobs(schedules JobSchedules) []schedule.Job {
	return []schedule.Job{
		{
			Name:        "index-memories",
			Description: "embed memories whose vectors are missing or stale",
			Schedule:    schedules.IndexMemories,
			Execute:     ix.IndexMemories,
		},
		{
			Name:        "index-conversations",
			Description: "embed conversation transcripts",
			Schedule:    schedules.IndexConversations,
			Execute:     ix.IndexConversations,
		},
		{
			Name:        "memorize-conversations",
			Description: "derive memories from stored conversations",
			Schedule:    schedules.Memorize,
			Execute:     ix.MemorizeConversations,
			CanRun:      func() bool { return ix.chatter != nil },
			OnError: func(err error) {
				ix.logger.Error("memorize job failed", "error", err)
			},
		},
	}
}
