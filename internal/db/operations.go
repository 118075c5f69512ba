package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PrinterOperations struct{}

func (o *PrinterOperations) CreatePrinter(ctx context.Context, p *Printer) error {
	_, err := GetDB().ExecContext(ctx, InsertPrinter,
		p.ID, p.Name, p.Location, p.APIKey, p.HotFolderPath)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return nil
}

func (o *PrinterOperations) GetPrinterByID(ctx context.Context, id string) (*Printer, error) {
	return scanPrinterRow(GetDB().QueryRowContext(ctx, GetPrinterByID, id))
}

func (o *PrinterOperations) GetPrinterByAPIKey(ctx context.Context, apiKey string) (*Printer, error) {
	return scanPrinterRow(GetDB().QueryRowContext(ctx, GetPrinterByAPIKey, apiKey))
}

func (o *PrinterOperations) ListPrinters(ctx context.Context) ([]*Printer, error) {
	rows, err := GetDB().QueryContext(ctx, ListPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p := &Printer{}
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Location, &p.APIKey, &p.HotFolderPath,
			&p.IsOnline, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (o *PrinterOperations) UpdatePrinter(ctx context.Context, p *Printer) error {
	_, err := GetDB().ExecContext(ctx, UpdatePrinter, p.Name, p.Location, p.HotFolderPath, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

func (o *PrinterOperations) RotateAPIKey(ctx context.Context, id, apiKey string) error {
	_, err := GetDB().ExecContext(ctx, RotatePrinterAPIKey, apiKey, id)
	if err != nil {
		return fmt.Errorf("failed to rotate api key: %w", err)
	}
	return nil
}

func (o *PrinterOperations) DeletePrinter(ctx context.Context, id string) error {
	_, err := GetDB().ExecContext(ctx, DeletePrinter, id)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	return nil
}

func scanPrinterRow(row *sql.Row) (*Printer, error) {
	p := &Printer{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Location, &p.APIKey, &p.HotFolderPath,
		&p.IsOnline, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

type TemplateOperations struct{}

func (o *TemplateOperations) CreateTemplate(ctx context.Context, t *Template, slots []*TemplateSlot) error {
	tx, err := GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, InsertTemplate,
		t.ID, t.Name, t.Description, t.BedWidthMM, t.BedHeightMM, t.PDFPath, t.IsActive); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, InsertTemplateSlot,
			s.ID, t.ID, s.Name, s.SlotPosition, s.X, s.Y, s.Width, s.Height,
			s.Rotation, s.ProductType, s.DisplayOrder); err != nil {
			return fmt.Errorf("failed to create template slot %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

func (o *TemplateOperations) GetTemplateByID(ctx context.Context, id string) (*Template, error) {
	t := &Template{}
	err := GetDB().QueryRowContext(ctx, GetTemplateByID, id).Scan(
		&t.ID, &t.Name, &t.Description, &t.BedWidthMM, &t.BedHeightMM,
		&t.PDFPath, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (o *TemplateOperations) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := GetDB().QueryContext(ctx, ListTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t := &Template{}
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.BedWidthMM, &t.BedHeightMM,
			&t.PDFPath, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (o *TemplateOperations) ListTemplateSlots(ctx context.Context, templateID string) ([]*TemplateSlot, error) {
	rows, err := GetDB().QueryContext(ctx, ListTemplateSlots, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list template slots: %w", err)
	}
	defer rows.Close()

	var slots []*TemplateSlot
	for rows.Next() {
		s := &TemplateSlot{}
		if err := rows.Scan(
			&s.ID, &s.TemplateID, &s.Name, &s.SlotPosition, &s.X, &s.Y,
			&s.Width, &s.Height, &s.Rotation, &s.ProductType, &s.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan template slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

type JobOperations struct{}

func (o *JobOperations) GetJobByID(ctx context.Context, id int64) (*Job, error) {
	return ScanJob(GetDB().QueryRowContext(ctx, GetJobByID, id))
}

func (o *JobOperations) GetJobForPrinter(ctx context.Context, id int64, printerID string) (*Job, error) {
	return ScanJob(GetDB().QueryRowContext(ctx, GetJobForPrinter, id, printerID))
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	var conditions []string
	var args []interface{}

	if filter.PrinterID != "" {
		conditions = append(conditions, "printer_id = ?")
		args = append(args, filter.PrinterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority DESC, queue_position ASC, created_at ASC"

	limit := 50
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return ScanJobs(rows)
}

func (o *JobOperations) GetOperatorQueue(ctx context.Context, printerID string) ([]*Job, error) {
	rows, err := GetDB().QueryContext(ctx, GetOperatorQueue, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operator queue: %w", err)
	}
	defer rows.Close()

	return ScanJobs(rows)
}

func (o *JobOperations) GetPrintHistory(ctx context.Context, printerID string, limit int) ([]*Job, error) {
	rows, err := GetDB().QueryContext(ctx, GetPrintHistory, printerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get print history: %w", err)
	}
	defer rows.Close()

	return ScanJobs(rows)
}

func (o *JobOperations) DeleteJob(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

type SlotOperations struct{}

func (o *SlotOperations) ListJobSlots(ctx context.Context, jobID int64) ([]*JobSlot, error) {
	rows, err := GetDB().QueryContext(ctx, ListJobSlots, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job slots: %w", err)
	}
	defer rows.Close()

	var slots []*JobSlot
	for rows.Next() {
		s := &JobSlot{}
		if err := rows.Scan(
			&s.ID, &s.JobID, &s.TemplateSlotID, &s.SlotPosition, &s.SlotLabel,
			&s.LabelAssetPath, &s.LabelPreviewPath, &s.GuestName, &s.Recipient,
			&s.FragranceID, &s.FragranceName, &s.ProductType, &s.QRUID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (o *SlotOperations) UpdateSlotAsset(ctx context.Context, slotID, jobID int64, assetPath string) error {
	res, err := GetDB().ExecContext(ctx, UpdateJobSlotAsset, assetPath, slotID, jobID)
	if err != nil {
		return fmt.Errorf("failed to update slot asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type UserOperations struct{}

func (o *UserOperations) CreateUser(ctx context.Context, u *User) error {
	result, err := GetDB().ExecContext(ctx, InsertUser, u.Username, u.PasswordHash, u.Role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}
	u.ID = id
	return nil
}

func (o *UserOperations) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	err := GetDB().QueryRowContext(ctx, GetUserByUsername, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w := &Webhook{}
	err := GetDB().QueryRowContext(ctx, GetWebhookByID, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	return o.queryWebhooks(ctx, ListWebhooks)
}

func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	pattern := "%\"" + event + "\"%"
	return o.queryWebhooks(ctx, ListWebhooksForEvent, pattern)
}

func (o *WebhookOperations) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(
			&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	_, err := GetDB().ExecContext(ctx, UpdateWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

type ArchiveOperations struct{}

func (o *ArchiveOperations) CreateArchiveRecord(ctx context.Context, a *ArchiveRecord) error {
	result, err := GetDB().ExecContext(ctx, InsertArchiveRecord, a.OriginalJobID, a.ArchiveFile)
	if err != nil {
		return fmt.Errorf("failed to create archive record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get archive record id: %w", err)
	}
	a.ID = id
	return nil
}

func (o *ArchiveOperations) ListArchiveRecords(ctx context.Context, limit, offset int) ([]*ArchiveRecord, error) {
	rows, err := GetDB().QueryContext(ctx, ListArchiveRecords, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	var records []*ArchiveRecord
	for rows.Next() {
		a := &ArchiveRecord{}
		if err := rows.Scan(&a.ID, &a.OriginalJobID, &a.ArchiveFile, &a.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanJob reads one jobs row in jobColumns order.
func ScanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID, &j.PrinterID, &j.TemplateID, &j.Status, &j.QueuePosition,
		&j.LocalQueuePosition, &j.Priority, &j.JobName, &j.EventName, &j.EventDate,
		&j.Copies, &j.ComposedPDFPath, &j.CreatedBy, &j.ReprintOf, &j.ReprintReason,
		&j.OperatorNotes, &j.DesignerNotes, &j.CreatedAt, &j.UpdatedAt,
		&j.SubmittedAt, &j.DownloadedAt, &j.PrintedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return j, nil
}

func ScanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := ScanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

var (
	Printers  = &PrinterOperations{}
	Templates = &TemplateOperations{}
	Jobs      = &JobOperations{}
	Slots     = &SlotOperations{}
	Users     = &UserOperations{}
	Webhooks  = &WebhookOperations{}
	Settings  = &SettingsOperations{}
	Archive   = &ArchiveOperations{}
)
