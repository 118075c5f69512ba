package db

import (
	"time"
)

type Printer struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Location      string     `json:"location"`
	APIKey        string     `json:"-"`
	HotFolderPath string     `json:"hot_folder_path"`
	IsOnline      bool       `json:"is_online"`
	LastSeen      *time.Time `json:"last_seen"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BedWidthMM  float64   `json:"bed_width_mm"`
	BedHeightMM float64   `json:"bed_height_mm"`
	PDFPath     string    `json:"pdf_path"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TemplateSlot struct {
	ID           string  `json:"id"`
	TemplateID   string  `json:"template_id"`
	Name         string  `json:"name"`
	SlotPosition string  `json:"slot_position"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Rotation     float64 `json:"rotation"`
	ProductType  string  `json:"product_type"`
	DisplayOrder int     `json:"display_order"`
}

type Job struct {
	ID                 int64      `json:"id"`
	PrinterID          string     `json:"printer_id"`
	TemplateID         string     `json:"template_id"`
	Status             string     `json:"status"`
	QueuePosition      int        `json:"queue_position"`
	LocalQueuePosition *int       `json:"local_queue_position"`
	Priority           int        `json:"priority"`
	JobName            string     `json:"job_name"`
	EventName          string     `json:"event_name"`
	EventDate          *time.Time `json:"event_date"`
	Copies             int        `json:"copies"`
	ComposedPDFPath    string     `json:"composed_pdf_path"`
	CreatedBy          *int64     `json:"created_by"`
	ReprintOf          *int64     `json:"reprint_of"`
	ReprintReason      string     `json:"reprint_reason"`
	OperatorNotes      string     `json:"operator_notes"`
	DesignerNotes      string     `json:"designer_notes"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	DownloadedAt       *time.Time `json:"downloaded_at"`
	PrintedAt          *time.Time `json:"printed_at"`
}

type JobSlot struct {
	ID               int64     `json:"id"`
	JobID            int64     `json:"job_id"`
	TemplateSlotID   string    `json:"template_slot_id"`
	SlotPosition     string    `json:"slot_position"`
	SlotLabel        string    `json:"slot_label"`
	LabelAssetPath   string    `json:"label_asset_path"`
	LabelPreviewPath string    `json:"label_preview_path"`
	GuestName        string    `json:"guest_name"`
	Recipient        string    `json:"recipient"`
	FragranceID      string    `json:"fragrance_id"`
	FragranceName    string    `json:"fragrance_name"`
	ProductType      string    `json:"product_type"`
	QRUID            string    `json:"qr_uid"`
	CreatedAt        time.Time `json:"created_at"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Webhook struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ArchiveRecord struct {
	ID            int64     `json:"id"`
	OriginalJobID int64     `json:"original_job_id"`
	ArchiveFile   string    `json:"archive_file"`
	ArchivedAt    time.Time `json:"archived_at"`
}

type JobFilter struct {
	PrinterID string
	Status    string
	Limit     int
	Offset    int
}
