package constants

// JobStatus is the canonical status for rows in processing_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // accepted, nothing run yet
	JobStatusOCR       JobStatus = "OCR"       // text recovery pending or running
	JobStatusExtract   JobStatus = "EXTRACT"   // raw text recorded, extraction pending or running
	JobStatusSummarise JobStatus = "SUMMARISE" // extraction recorded, compliance linkage pending or running
	JobStatusReady     JobStatus = "READY"     // terminal success
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure, reprocessable
)

var statusRank = map[JobStatus]int{
	JobStatusQueued:    0,
	JobStatusOCR:       1,
	JobStatusExtract:   2,
	JobStatusSummarise: 3,
	JobStatusReady:     4,
}

// Rank orders the non-failed statuses. FAILED and unknown values return -1.
func (s JobStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s has reached other in stage order.
func (s JobStatus) AtLeast(other JobStatus) bool {
	return s.Rank() >= 0 && s.Rank() >= other.Rank()
}

// Terminal reports whether no further stage runs without a reprocess.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Next returns the status a successful stage commits to.
func (s JobStatus) Next() (JobStatus, bool) {
	switch s {
	case JobStatusQueued:
		return JobStatusOCR, true
	case JobStatusOCR:
		return JobStatusExtract, true
	case JobStatusExtract:
		return JobStatusSummarise, true
	case JobStatusSummarise:
		return JobStatusReady, true
	}
	return "", false
}

func (s JobStatus) Valid() bool {
	return s == JobStatusFailed || s.Rank() >= 0
}
