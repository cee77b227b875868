package models

// JobOverview is one entry from the job manager's jobs listing.
type JobOverview struct {
	JID       string `json:"jid"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartTime int64  `json:"start-time"`
	EndTime   int64  `json:"end-time"`
	Duration  int64  `json:"duration"`
}

// JobsOverview is the response of GET /jobs/overview.
type JobsOverview struct {
	Jobs []JobOverview `json:"jobs"`
}

// JobIDEntry is one entry of the legacy GET /jobs listing.
type JobIDEntry struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobsList is the response of the legacy GET /jobs endpoint, used as a
// fallback when /jobs/overview is unavailable.
type JobsList struct {
	Jobs []JobIDEntry `json:"jobs"`
}

// JobDetail is the response of GET /jobs/{id}.
type JobDetail struct {
	JID       string      `json:"jid"`
	Name      string      `json:"name"`
	State     string      `json:"state"`
	StartTime int64       `json:"start-time"`
	EndTime   int64       `json:"end-time"`
	Duration  int64       `json:"duration"`
	Vertices  []JobVertex `json:"vertices,omitempty"`
}

// JobVertex is one operator vertex of a running job.
type JobVertex struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Parallelism int    `json:"parallelism"`
	Status      string `json:"status"`
}

// JobPlan is the response of GET /jobs/{id}/plan.
type JobPlan struct {
	Plan map[string]interface{} `json:"plan"`
}

// TaskManagers is the response of GET /taskmanagers.
type TaskManagers struct {
	TaskManagers []TaskManager `json:"taskmanagers"`
}

// TaskManager describes one task manager process.
type TaskManager struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	SlotsNumber   int    `json:"slotsNumber"`
	FreeSlots     int    `json:"freeSlots"`
	TimeSinceLast int64  `json:"timeSinceLastHeartbeat"`
}

// ClusterOverview is the response of GET /overview.
type ClusterOverview struct {
	TaskManagers   int    `json:"taskmanagers"`
	SlotsTotal     int    `json:"slots-total"`
	SlotsAvailable int    `json:"slots-available"`
	JobsRunning    int    `json:"jobs-running"`
	JobsFinished   int    `json:"jobs-finished"`
	JobsCancelled  int    `json:"jobs-cancelled"`
	JobsFailed     int    `json:"jobs-failed"`
	FlinkVersion   string `json:"flink-version"`
}
