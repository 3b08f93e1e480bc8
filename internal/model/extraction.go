package model

import "time"

// Extraction is a persisted meeting summary and its serialized record.
type Extraction struct {
	ID              int64     `json:"id"`
	MeetingSummary  string    `json:"meetingSummary"`
	ExtractedData   string    `json:"extractedData"`
	SyncedToHubspot bool      `json:"syncedToHubspot"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Record parses and validates the stored extracted data.
func (e Extraction) Record() (ExtractedRecord, error) {
	return ParseRecord(e.ExtractedData)
}

// ExtractionUpdate lists the mutable fields of an Extraction. Nil fields are
// left unchanged.
type ExtractionUpdate struct {
	SyncedToHubspot *bool `json:"syncedToHubspot,omitempty"`
}

// Contact is the local mirror of a contact pushed to HubSpot.
type Contact struct {
	ID         int64     `json:"id"`
	Name       *string   `json:"name"`
	Email      *string   `json:"email"`
	Title      *string   `json:"title"`
	Phone      *string   `json:"phone"`
	Confidence int       `json:"confidence"`
	HubspotID  *string   `json:"hubspotId"`
	CompanyID  *int64    `json:"companyId"` // local Company mirror from the same sync pass
	CreatedAt  time.Time `json:"createdAt"`
}

// Company is the local mirror of a company pushed to HubSpot.
type Company struct {
	ID         int64     `json:"id"`
	Name       *string   `json:"name"`
	Industry   *string   `json:"industry"`
	Size       *string   `json:"size"`
	Website    *string   `json:"website"`
	Confidence int       `json:"confidence"`
	HubspotID  *string   `json:"hubspotId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Deal is the local mirror of a deal pushed to HubSpot.
type Deal struct {
	ID         int64     `json:"id"`
	Name       *string   `json:"name"`
	Value      *float64  `json:"value"`
	CloseDate  *string   `json:"closeDate"`
	Stage      *string   `json:"stage"`
	Confidence int       `json:"confidence"`
	HubspotID  *string   `json:"hubspotId"`
	ContactID  *int64    `json:"contactId"`
	CompanyID  *int64    `json:"companyId"`
	CreatedAt  time.Time `json:"createdAt"`
}
