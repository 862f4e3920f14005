// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// RebuildTask represents the data structure for an index rebuild job.
type RebuildTask struct {
	RunID        string   `json:"run_id"`
	Modalities   []string `json:"modalities"`
	ForceRebuild bool     `json:"force_rebuild"`
	RequestedBy  string   `json:"requested_by"`
}
