package model

import (
	"strings"
	"time"

	"formative-compliance/internal/domain"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	}
	return "", domain.ErrInvalidArgument
}

func (f Format) Extension() string { return string(f) }

func (f Format) ContentType() string {
	if f == FormatDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// BusinessInfo is the customer-supplied context a document is tailored to.
type BusinessInfo struct {
	BusinessName      string `json:"businessName"`
	ABN               string `json:"abn,omitempty"`
	State             string `json:"state"`
	ContactName       string `json:"contactName,omitempty"`
	ContactEmail      string `json:"contactEmail,omitempty"`
	Address           string `json:"address,omitempty"`
	EmployeeCount     int    `json:"employeeCount,omitempty"`
	AdditionalDetails string `json:"additionalDetails,omitempty"`
}

func (b BusinessInfo) Validate() error {
	if strings.TrimSpace(b.BusinessName) == "" || strings.TrimSpace(b.State) == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Document is a generated, stored policy document.
type Document struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	IndustryID    string       `json:"industry"`
	PackID        string       `json:"pack"`
	DocumentType  string       `json:"documentType"`
	Title         string       `json:"title"`
	Format        Format       `json:"format"`
	StorageKey    string       `json:"-"`
	SizeBytes     int64        `json:"sizeBytes"`
	Business      BusinessInfo `json:"businessInfo"`
	DownloadCount int          `json:"downloadCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	DeletedAt     *time.Time   `json:"deletedAt,omitempty"`
}

// StorageKeyFor is the object key a rendered document is stored under.
func StorageKeyFor(userID, documentID string, f Format) string {
	return "documents/" + userID + "/" + documentID + "." + f.Extension()
}

// DocumentStats summarizes a user's generation and download history.
type DocumentStats struct {
	TotalDocuments   int        `json:"totalDocuments"`
	MonthlyDocuments int        `json:"monthlyDocuments"`
	TotalDownloads   int        `json:"totalDownloads"`
	FavoriteIndustry string     `json:"favoriteIndustry,omitempty"`
	MostUsedFormat   Format     `json:"mostUsedFormat,omitempty"`
	LastGeneratedAt  *time.Time `json:"lastGeneratedAt,omitempty"`
}
