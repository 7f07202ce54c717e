// Package events defines the messages published to Kafka.
package events

import "time"

// PrescriptionAnalyzed is published after a prescription has been analyzed successfully.
type PrescriptionAnalyzed struct {
	RequestID     string    `json:"request_id"`
	FileName      string    `json:"file_name"`
	ArchiveObject string    `json:"archive_object,omitempty"`
	ChunkCount    int       `json:"chunk_count"`
	ExtractedText string    `json:"extracted_text"`
	MedicineIDs   []string  `json:"medicine_ids"`
	At            time.Time `json:"at"`
}
