package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the two-valued authenticity classification
type Outcome string

const (
	OutcomeAuthentic   Outcome = "authentic"
	OutcomeCounterfeit Outcome = "counterfeit"
)

// History labels and result messages shown to the user.
const (
	AuthenticLabel     = "✅ Authentic"
	CounterfeitLabel   = "⚠️ Counterfeit"
	AuthenticMessage   = "✅ This medicine appears to be authentic"
	CounterfeitMessage = "⚠️ Warning: This medicine may be counterfeit"

	// authenticMarker is what a stored label must contain to count as authentic.
	authenticMarker = "✅"
)

// Verdict is the result of evaluating one pending image
type Verdict struct {
	Outcome    Outcome `json:"outcome"`
	Confidence int     `json:"confidence"`
	Notes      string  `json:"notes,omitempty"`
}

// NewVerdict builds a verdict from a boolean classification.
func NewVerdict(authentic bool, confidence int) Verdict {
	v := Verdict{Outcome: OutcomeCounterfeit, Confidence: confidence}
	if authentic {
		v.Outcome = OutcomeAuthentic
	}
	return v
}

func (v Verdict) IsAuthentic() bool {
	return v.Outcome == OutcomeAuthentic
}

// Label is the short form persisted in history entries.
func (v Verdict) Label() string {
	if v.IsAuthentic() {
		return AuthenticLabel
	}
	return CounterfeitLabel
}

// Message is the long form displayed after analysis.
func (v Verdict) Message() string {
	if v.IsAuthentic() {
		return AuthenticMessage
	}
	return CounterfeitMessage
}

// ImageSource records how a pending image was acquired
type ImageSource string

const (
	SourceCamera ImageSource = "camera"
	SourceUpload ImageSource = "upload"
)

// PendingImage is the single image awaiting (or having just received) a verdict
type PendingImage struct {
	ID         uuid.UUID   `json:"id"`
	DataURI    string      `json:"image"`
	MIMEType   string      `json:"mime_type"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Source     ImageSource `json:"source"`
	AcquiredAt time.Time   `json:"acquired_at"`
}

// HistoryEntry is one persisted scan. The JSON layout matches what the web
// client keeps in local storage.
type HistoryEntry struct {
	Image     string `json:"image"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp,omitempty"`
}

// IsAuthentic reports whether the stored label is an authentic verdict.
func (e HistoryEntry) IsAuthentic() bool {
	return strings.Contains(e.Result, authenticMarker)
}

// VerificationResult is what the API returns for a verified upload
type VerificationResult struct {
	IsAuthentic bool      `json:"isAuthentic"`
	Confidence  int       `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	ImageURL    string    `json:"imageUrl"`
}

// MedicationMetadata is optional packaging information supplied with an upload
type MedicationMetadata struct {
	MedicationName string     `json:"medicationName,omitempty"`
	Manufacturer   string     `json:"manufacturer,omitempty"`
	BatchNumber    string     `json:"batchNumber,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
}

// VerificationRecord is a server-side verification stored per user
type VerificationRecord struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             string             `json:"userId"`
	VerificationResult VerificationResult `json:"verificationResult"`
	Metadata           MedicationMetadata `json:"metadata"`
	CreatedAt          time.Time          `json:"createdAt"`
}
