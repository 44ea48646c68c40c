package models

import (
	"time"
)

type Category string

const (
	CategoryIdentity   Category = "identity"
	CategoryEmployment Category = "employment"
	CategoryTaxation   Category = "taxation"
	CategoryHealth     Category = "health"
	CategoryLegal      Category = "legal"
	CategoryHousing    Category = "housing"
	CategoryEducation  Category = "education"
	CategorySocial     Category = "social"
	CategoryFinance    Category = "finance"
	CategoryTransport  Category = "transport"
	CategoryOther      Category = "other"
)

// Categories lists every category in the order the analysis prompt presents them.
var Categories = []Category{
	CategoryIdentity, CategoryEmployment, CategoryTaxation, CategoryHealth, CategoryLegal, CategoryHousing,
	CategoryEducation, CategorySocial, CategoryFinance, CategoryTransport, CategoryOther,
}

// ParseCategory maps free text to a known category, defaulting to CategoryOther.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

type AnalysisRequest struct {
	RawText      string `json:"contextAndText"`
	FileName     string `json:"fileName"`
	ImageBase64  string `json:"imageBase64,omitempty"`
	LanguageName string `json:"lang"`
	Country      string `json:"country,omitempty"`
	Region       string `json:"region,omitempty"`
}

type ComplexTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

type SuggestedAction struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type Page struct {
	PageNumber    int    `json:"pageNumber"`
	Summary       string `json:"summary"`
	ExtractedText string `json:"extractedText"`
}

// AnalysisResult is the canonical, backend-agnostic analysis output.
// An empty Pages slice means the whole document is a single virtual page
// whose text is ExtractedText.
type AnalysisResult struct {
	Summary          string            `json:"summary"`
	KeyPoints        []string          `json:"keyPoints"`
	KeyDates         []string          `json:"keyDates"`
	ComplexTerms     []ComplexTerm     `json:"complexTerms"`
	RegionalContext  *string           `json:"regionalContext"`
	Warning          *string           `json:"warning"`
	Category         Category          `json:"category"`
	SuggestedActions []SuggestedAction `json:"suggestedActions"`
	Pages            []Page            `json:"pages"`
	ExtractedText    string            `json:"extractedText"`
	IsLegible        bool              `json:"isLegible"`
	IllegibleReason  *string           `json:"illegibleReason"`
	FileName         string            `json:"fileName"`
	Timestamp        string            `json:"timestamp"`
	ModelUsed        string            `json:"modelUsed"`
}

// HistoryEntry is a stored analysis. ArchiveKey points at the original
// upload in object storage when one was archived.
type HistoryEntry struct {
	ID         string         `json:"id" db:"id"`
	DeviceID   string         `json:"deviceId" db:"device_id"`
	Result     AnalysisResult `json:"result" db:"-"`
	ArchiveKey string         `json:"archiveKey,omitempty" db:"archive_key"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}

// Upload is a document received as a file. Images and PDFs are sent to the
// backend as binary payloads; other types are extracted to text first.
type Upload struct {
	Data         []byte
	FileName     string
	ContentType  string
	ContextText  string
	LanguageName string
	Country      string
	Region       string
}
