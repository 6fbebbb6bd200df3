package model

import "time"

// ScanRecord is one relayed badge scan, journaled for end-of-event reporting.
type ScanRecord struct {
	ID        string    `db:"id" json:"id"`
	DeskID    string    `db:"desk_id" json:"deskId"`
	UniqueID  string    `db:"unique_id" json:"uniqueId"`
	ScannedAt time.Time `db:"scanned_at" json:"scannedAt"`
}

type CreateScanRecordParams struct {
	DeskID   string
	UniqueID string
}
