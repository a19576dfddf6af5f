package evaluation

import (
	"sort"
	"time"

	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/scheduler"
)

// QueueStatus reports the queued operations grouped by
// (type, object, dataset, priority), ordered the way the queue would serve
// them. Per-testcase evaluations collapse into one row with a count.
func (s *Service) QueueStatus() []esconn.QueueStatusEntry {
	type groupKey struct {
		short    operations.ShortKey
		priority scheduler.Priority
	}
	type group struct {
		oldest time.Time
		count  int
	}

	groups := make(map[groupKey]*group)
	for _, entry := range s.executor.Snapshot() {
		key := groupKey{short: entry.Item.Short(), priority: entry.Priority}
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{oldest: entry.Timestamp, count: 1}
			continue
		}
		g.count++
		if entry.Timestamp.Before(g.oldest) {
			g.oldest = entry.Timestamp
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].priority != keys[j].priority {
			return keys[i].priority < keys[j].priority
		}
		return groups[keys[i]].oldest.Before(groups[keys[j]].oldest)
	})

	entries := make([]esconn.QueueStatusEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, esconn.QueueStatusEntry{
			Type:      key.short.Kind.String(),
			ObjectID:  key.short.ObjectID,
			DatasetID: key.short.DatasetID,
			Priority:  key.priority.String(),
			Timestamp: groups[key].oldest,
			Count:     groups[key].count,
		})
	}
	return entries
}

// WorkersStatus reports per-worker health and live assignments.
func (s *Service) WorkersStatus() []esconn.WorkerStatus {
	views := s.pool.Status()
	statuses := make([]esconn.WorkerStatus, 0, len(views))
	for _, view := range views {
		statuses = append(statuses, esconn.WorkerStatus{
			Address:       view.Address,
			Connected:     view.Connected,
			Disabled:      view.Disabled,
			LastHeartbeat: view.LastHeartbeat,
			JobID:         view.JobID,
			Operations:    view.Operations,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Address < statuses[j].Address
	})
	return statuses
}
