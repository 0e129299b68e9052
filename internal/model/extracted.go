package model

// ExtractedLead is the structured result the text-generation model produces
// from a transcript. All fields are best effort; the caller validates and
// normalizes before persisting.
type ExtractedLead struct {
	CaseCategory string `json:"case_category" validate:"required"`
	Location     string `json:"location"`
	UrgencyScore int    `json:"urgency_score"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Summary      string `json:"summary"`
}

// Normalize clamps the urgency score into [1,10] and maps unknown case
// categories onto the closed taxonomy's "other" bucket.
func (e *ExtractedLead) Normalize() {
	if e.UrgencyScore < 1 {
		e.UrgencyScore = 1
	}
	if e.UrgencyScore > 10 {
		e.UrgencyScore = 10
	}
	if !IsKnownPracticeArea(e.CaseCategory) {
		e.CaseCategory = "other"
	}
}
