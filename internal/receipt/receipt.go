package receipt

import (
	"time"

	"github.com/receiptscan/receipt-scanner/internal/pipeline"
)

// ReviewStatus tracks where a scanned receipt sits in the human-review flow
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ValidReviewStatus reports whether s is one of the known statuses
func ValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// Record is a stored receipt scan: the uploaded file's whereabouts plus
// the full extraction result and its confidence analysis
type Record struct {
	ID           string               `json:"id"`
	Filename     string               `json:"filename"`
	ContentType  string               `json:"content_type"`
	Scan         *pipeline.ScanResult `json:"scan"`
	ReviewStatus ReviewStatus         `json:"review_status"`
	ReviewNote   string               `json:"review_note,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}
