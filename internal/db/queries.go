package db

const (
	InsertPrinter = `
		INSERT INTO printers (id, name, location, api_key, hot_folder_path)
		VALUES (?, ?, ?, ?, ?)
	`

	GetPrinterByID = `
		SELECT id, name, location, api_key, hot_folder_path, is_online, last_seen, created_at, updated_at
		FROM printers WHERE id = ?
	`

	GetPrinterByAPIKey = `
		SELECT id, name, location, api_key, hot_folder_path, is_online, last_seen, created_at, updated_at
		FROM printers WHERE api_key = ?
	`

	ListPrinters = `
		SELECT id, name, location, api_key, hot_folder_path, is_online, last_seen, created_at, updated_at
		FROM printers ORDER BY name ASC
	`

	UpdatePrinter = `
		UPDATE printers SET name = ?, location = ?, hot_folder_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	TouchPrinterHeartbeat = `
		UPDATE printers SET is_online = 1, last_seen = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	MarkPrinterOnline = `
		UPDATE printers SET is_online = 1, last_seen = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_online = 0
	`

	RotatePrinterAPIKey = `
		UPDATE printers SET api_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	MarkPrinterOffline = `
		UPDATE printers SET is_online = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_online = 1
	`

	GetStalePrinterIDs = `
		SELECT id FROM printers
		WHERE is_online = 1 AND (last_seen IS NULL OR last_seen < ?)
	`

	DeletePrinter = `DELETE FROM printers WHERE id = ?`
)

const (
	InsertTemplate = `
		INSERT INTO templates (id, name, description, bed_width_mm, bed_height_mm, pdf_path, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	GetTemplateByID = `
		SELECT id, name, description, bed_width_mm, bed_height_mm, pdf_path, is_active, created_at, updated_at
		FROM templates WHERE id = ?
	`

	ListTemplates = `
		SELECT id, name, description, bed_width_mm, bed_height_mm, pdf_path, is_active, created_at, updated_at
		FROM templates ORDER BY name ASC
	`

	InsertTemplateSlot = `
		INSERT INTO template_slots (id, template_id, name, slot_position, x, y, width, height, rotation, product_type, display_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListTemplateSlots = `
		SELECT id, template_id, name, slot_position, x, y, width, height, rotation, product_type, display_order
		FROM template_slots WHERE template_id = ? ORDER BY display_order ASC, id ASC
	`
)

// JobColumns returns the canonical jobs column list, for callers composing
// their own SELECTs that will be scanned with ScanJob.
func JobColumns() string {
	return jobColumns
}

const (
	jobColumns = `id, printer_id, template_id, status, queue_position, local_queue_position, priority,
		job_name, event_name, event_date, copies, composed_pdf_path, created_by, reprint_of, reprint_reason,
		operator_notes, designer_notes, created_at, updated_at, submitted_at, downloaded_at, printed_at`

	InsertJob = `
		INSERT INTO jobs (printer_id, template_id, status, queue_position, priority, job_name, event_name,
			event_date, copies, composed_pdf_path, created_by, reprint_of, reprint_reason, designer_notes, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	GetJobForPrinter = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND printer_id = ?`

	GetReadyJobsForPrinter = `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE printer_id = ? AND status = 'ready_for_print'
		ORDER BY priority DESC, queue_position ASC
	`

	GetOperatorQueue = `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE printer_id = ? AND status IN ('queued_local', 'awaiting_operator', 'sent_to_printer')
		ORDER BY local_queue_position IS NULL, local_queue_position ASC, priority DESC, queue_position ASC
	`

	GetQueuedLocalIDs = `
		SELECT id FROM jobs WHERE printer_id = ? AND status = 'queued_local' ORDER BY local_queue_position ASC
	`

	GetHeldQueuePositions = `
		SELECT local_queue_position FROM jobs
		WHERE printer_id = ? AND local_queue_position IS NOT NULL
			AND status IN ('awaiting_operator', 'sent_to_printer')
	`

	GetPrintHistory = `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE printer_id = ? AND status IN ('printed', 'failed')
		ORDER BY printed_at DESC, updated_at DESC LIMIT ?
	`

	MaxQueuePosition = `
		SELECT COALESCE(MAX(queue_position), 0) FROM jobs WHERE printer_id = ?
	`

	MaxLocalQueuePosition = `
		SELECT COALESCE(MAX(local_queue_position), 0) FROM jobs
		WHERE printer_id = ? AND status IN ('queued_local', 'awaiting_operator', 'sent_to_printer')
	`

	CountSentToPrinter = `
		SELECT COUNT(*) FROM jobs WHERE printer_id = ? AND status = 'sent_to_printer'
	`

	CountJobsByStatusForPrinter = `
		SELECT status, COUNT(*) FROM jobs WHERE printer_id = ? GROUP BY status
	`

	UpdateJobStatus = `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`

	SetLocalQueuePosition = `
		UPDATE jobs SET local_queue_position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	DeleteJob = `DELETE FROM jobs WHERE id = ?`

	GetJobsForArchival = `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status IN ('printed', 'failed') AND updated_at < ?
	`
)

const (
	InsertJobSlot = `
		INSERT INTO job_slots (job_id, template_slot_id, slot_position, slot_label, label_asset_path,
			label_preview_path, guest_name, recipient, fragrance_id, fragrance_name, product_type, qr_uid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListJobSlots = `
		SELECT id, job_id, template_slot_id, slot_position, slot_label, label_asset_path,
			label_preview_path, guest_name, recipient, fragrance_id, fragrance_name, product_type, qr_uid, created_at
		FROM job_slots WHERE job_id = ? ORDER BY slot_position ASC, id ASC
	`

	UpdateJobSlotAsset = `
		UPDATE job_slots SET label_asset_path = ? WHERE id = ? AND job_id = ?
	`

	DeleteJobSlots = `DELETE FROM job_slots WHERE job_id = ?`
)

const (
	InsertUser = `
		INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)
	`

	GetUserByUsername = `
		SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?
	`

	GetUserByID = `
		SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?
	`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	GetSetting = `SELECT value FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`
)

const (
	InsertArchiveRecord = `
		INSERT INTO archive_records (original_job_id, archive_file)
		VALUES (?, ?)
	`

	ListArchiveRecords = `
		SELECT id, original_job_id, archive_file, archived_at
		FROM archive_records ORDER BY archived_at DESC LIMIT ? OFFSET ?
	`
)
