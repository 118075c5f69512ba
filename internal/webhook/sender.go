package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

type Event string

const (
	EventJobDownloaded        Event = "job_downloaded"
	EventJobPrinted           Event = "job_printed"
	EventJobFailed            Event = "job_failed"
	EventPrinterStatusChanged Event = "printer_status_changed"
)

func ValidEvent(e string) bool {
	switch Event(e) {
	case EventJobDownloaded, EventJobPrinted, EventJobFailed, EventPrinterStatusChanged:
		return true
	}
	return false
}

type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID     int64  `json:"job_id"`
	PrinterID string `json:"printer_id"`
	JobName   string `json:"job_name,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type PrinterStatusData struct {
	PrinterID string    `json:"printer_id"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}

type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	webhookID int64
	event     Event
	payload   *Payload
	attempt   int
}

// Sender delivers lifecycle events to registered webhook endpoints. Events
// are queued and sent by a small worker pool so callers never block on
// subscriber latency; an overfull queue drops rather than stalls.
type Sender struct {
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *task
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewSender(config Config) *Sender {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	return &Sender{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		maxRetries:  config.MaxRetries,
		retryDelay:  config.RetryDelay,
		workerCount: config.WorkerCount,
		queue:       make(chan *task, config.QueueSize),
		stopCh:      make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// JobDownloaded, JobPrinted, JobFailed and PrinterStatusChanged implement
// the lifecycle event sink consumed by the core package.

func (s *Sender) JobDownloaded(job *db.Job) {
	s.enqueue(EventJobDownloaded, jobData(job, ""))
}

func (s *Sender) JobPrinted(job *db.Job) {
	s.enqueue(EventJobPrinted, jobData(job, ""))
}

func (s *Sender) JobFailed(job *db.Job, reason string) {
	s.enqueue(EventJobFailed, jobData(job, reason))
}

func (s *Sender) PrinterStatusChanged(printerID string, online bool) {
	s.enqueue(EventPrinterStatusChanged, &PrinterStatusData{
		PrinterID: printerID,
		IsOnline:  online,
		Timestamp: time.Now().UTC(),
	})
}

func jobData(job *db.Job, reason string) *JobEventData {
	return &JobEventData{
		JobID:     job.ID,
		PrinterID: job.PrinterID,
		JobName:   job.JobName,
		Status:    job.Status,
		Reason:    reason,
	}
}

func (s *Sender) enqueue(event Event, data interface{}) {
	webhooks, err := db.Webhooks.ListActiveWebhooksForEvent(context.Background(), string(event))
	if err != nil {
		log.Printf("[webhook] failed to get webhooks for event %s: %v", event, err)
		return
	}

	for _, webhook := range webhooks {
		t := &task{
			webhookID: webhook.ID,
			event:     event,
			payload: &Payload{
				Event:     string(event),
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			log.Printf("[webhook] queue full, dropping webhook %d for event %s", webhook.ID, event)
		}
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				log.Printf("[webhook worker %d] failed to send webhook %d for event %s after %d attempts: %v",
					id, t.webhookID, t.event, t.attempt, err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	webhook, err := db.Webhooks.GetWebhookByID(context.Background(), t.webhookID)
	if err != nil {
		return fmt.Errorf("get webhook: %w", err)
	}

	var lastErr error
	for t.attempt < s.maxRetries {
		t.attempt++

		err := s.sendRequest(webhook, t.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			log.Printf("[webhook] client error for webhook %d, not retrying: %v", webhook.ID, err)
			return err
		}

		if t.attempt < s.maxRetries {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			log.Printf("[webhook] retry %d/%d for webhook %d in %v: %v",
				t.attempt, s.maxRetries, webhook.ID, backoff, err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(webhook *db.Webhook, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = signPayload(dataBytes, webhook.Secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhook.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}
