package job

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusActive     Status = "active"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusActive, StatusFailed, StatusArchived:
		return true
	}
	return false
}

// Rendition labels in the order the worker produces them.
const (
	Label720  = "720p"
	Label1080 = "1080p"
	Label2160 = "2160p"
)

// Job is one video processing task. A job is claimable while
// Status is processing and ProcessingLock is empty.
type Job struct {
	ID                  string     `json:"jobId"`
	MasterKey           string     `json:"masterKey"`
	Make4K              bool       `json:"make4k"`
	Status              Status     `json:"status"`
	ProcessingLock      string     `json:"processingLock"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt"`
	LastError           string     `json:"lastError,omitempty"`
	MP4720Path          string     `json:"mp4_720_path"`
	MP4720URL           string     `json:"mp4_720_url"`
	MP41080Path         string     `json:"mp4_1080_path"`
	MP41080URL          string     `json:"mp4_1080_url"`
	MP42160Path         string     `json:"mp4_2160_path"`
	MP42160URL          string     `json:"mp4_2160_url"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (j *Job) Claimable() bool {
	return j.Status == StatusProcessing && j.ProcessingLock == ""
}

// RequiredHeights returns the target heights for this job, in encode order.
func (j *Job) RequiredHeights() []int {
	heights := []int{720, 1080}
	if j.Make4K {
		heights = append(heights, 2160)
	}
	return heights
}

// LabelForHeight maps a target height to its rendition label.
func LabelForHeight(height int) string {
	return fmt.Sprintf("%dp", height)
}

// RenditionKey is the storage key for one rendition of one job.
func RenditionKey(jobID, label string) string {
	return fmt.Sprintf("video/mp4/%s/%s.mp4", jobID, label)
}

// RenditionOutput is the stored location of one finished rendition.
type RenditionOutput struct {
	Key string
	URL string
}

// RenditionSet maps rendition labels to their outputs. Labels the job did
// not request are simply absent; lookups return zero values, which is how
// the 2160p fields end up as empty strings on non-4K jobs.
type RenditionSet map[string]RenditionOutput
