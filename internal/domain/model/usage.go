package model

import "time"

// UsageRecord is one generation event counted against a monthly quota.
type UsageRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	DocumentID string     `json:"documentId"`
	CreatedAt  time.Time  `json:"createdAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// CountsSince reports whether the record counts toward a window starting at since.
func (u *UsageRecord) CountsSince(since time.Time) bool {
	return u.DeletedAt == nil && !u.CreatedAt.Before(since)
}

// MonthStart returns day 1, 00:00:00 of t's month in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
