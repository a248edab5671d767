package model

import "time"

// Confidence is a coarse three-level confidence rating.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Category is an operator category from the category table.
type Category string

const (
	CategoryStadiumArena       Category = "stadium_arena"
	CategoryCasino             Category = "casino"
	CategoryThemePark          Category = "theme_park"
	CategoryUniversityDining   Category = "university_dining"
	CategoryAirportConcessions Category = "airport_concessions"
	CategoryRestaurantChain    Category = "restaurant_chain"
	CategoryGolfManagement     Category = "golf_management"
	CategoryMarinaGroup        Category = "marina_group"
	CategoryHotelFB            Category = "hotel_fb"
	CategoryEntertainmentVenue Category = "entertainment_venue"
)

// LocationSource tags a provider of a location-count estimate.
type LocationSource string

const (
	SourceGooglePlaces LocationSource = "google_places"
	SourceHeadcount    LocationSource = "headcount"
	SourceManual       LocationSource = "manual"
)

// Candidate is the pre-resolution signal bundle for a possible
// multi-location operator, built from a registry search hit.
type Candidate struct {
	CompanyName     string   `json:"company_name"`
	DocumentNumber  string   `json:"document_number,omitempty"`
	RegisteredAgent string   `json:"registered_agent,omitempty"`
	DBACount        int      `json:"dba_count,omitempty"`
	EntityKeywords  []string `json:"entity_keywords"`
	FilingDate      string   `json:"filing_date,omitempty"`
}

// Indicators records the registry signals an operator was discovered with.
type Indicators struct {
	EntityKeywords []string `json:"entity_keywords,omitempty"`
	DBACount       int      `json:"dba_count,omitempty"`
}

// Operator is a resolved multi-location operator.
type Operator struct {
	ID                     string            `json:"id"`
	CompanyName            string            `json:"company_name"`
	DocumentNumber         string            `json:"document_number,omitempty"`
	Category               Category          `json:"category"`
	EstimatedLocationCount int               `json:"estimated_location_count"`
	LocationCountSource    string            `json:"location_count_source,omitempty"`
	Confidence             Confidence        `json:"confidence"`
	CategoryConfidence     Confidence        `json:"category_confidence,omitempty"`
	Indicators             Indicators        `json:"sunbiz_indicators"`
	Website                string            `json:"website,omitempty"`
	HQCity                 string            `json:"hq_city,omitempty"`
	HQState                string            `json:"hq_state,omitempty"`
	POSSystem              string            `json:"pos_system,omitempty"`
	POSConfidence          Confidence        `json:"pos_confidence,omitempty"`
	ExpansionSignals       []ExpansionSignal `json:"expansion_signals,omitempty"`
	ExpansionScore         int               `json:"expansion_score"`
	IsQualified            bool              `json:"is_qualified"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// OperatorPatch holds the fields written by bonus enrichment.
type OperatorPatch struct {
	POSSystem        string
	POSConfidence    Confidence
	ExpansionSignals []ExpansionSignal
	ExpansionScore   int
}

// ExpansionSource tags where an expansion signal was observed.
type ExpansionSource string

const (
	ExpansionCrunchbase  ExpansionSource = "crunchbase"
	ExpansionSunbiz      ExpansionSource = "sunbiz"
	ExpansionJobPostings ExpansionSource = "job_postings"
	ExpansionGoogleNews  ExpansionSource = "google_news"
)

// ExpansionSignal is one weak signal that an operator is growing.
type ExpansionSignal struct {
	Source      ExpansionSource `json:"source"`
	Description string          `json:"description"`
	Date        string          `json:"date,omitempty"`
}

// DecisionMaker is a contact at an operator. Email is mandatory; records
// without one are dropped before they reach the store.
type DecisionMaker struct {
	ID              string     `json:"id"`
	CompanyID       string     `json:"company_id"`
	FullName        string     `json:"full_name"`
	Title           string     `json:"title,omitempty"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	LinkedInURL     string     `json:"linkedin_url,omitempty"`
	DataSources     []string   `json:"data_sources,omitempty"`
	EmailConfidence Confidence `json:"email_confidence,omitempty"`
	IsVerified      bool       `json:"is_verified"`
	SyncedToCRM     bool       `json:"synced_to_crm"`
	CRMContactID    string     `json:"crm_contact_id,omitempty"`
}

// OutreachContact is a decision maker that is qualified for, but not yet
// pushed to, the CRM. It carries the operator context used for the CRM record.
type OutreachContact struct {
	DecisionMakerID        string   `json:"decision_maker_id"`
	FullName               string   `json:"full_name"`
	Title                  string   `json:"title,omitempty"`
	Email                  string   `json:"email"`
	Phone                  string   `json:"phone,omitempty"`
	LinkedInURL            string   `json:"linkedin_url,omitempty"`
	CompanyName            string   `json:"company_name"`
	Category               Category `json:"category"`
	EstimatedLocationCount int      `json:"estimated_location_count"`
	POSSystem              string   `json:"pos_system,omitempty"`
	ExpansionScore         int      `json:"expansion_score"`
	HQCity                 string   `json:"hq_city,omitempty"`
	HQState                string   `json:"hq_state,omitempty"`
}
