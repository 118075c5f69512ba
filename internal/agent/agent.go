package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Agent runs on the printer PC and bridges the cloud queue to the print
// driver's hot folder. It only ever polls: downloads ready jobs into the
// local queue directory, acknowledges them with mark-downloaded, and copies
// PDFs into the hot folder when the operator triggers a print.
//
// Every step is safe to repeat after a crash. A job directory on disk means
// the download happened; a .sent marker means the hot-folder copy happened.
type Agent struct {
	client       *Client
	queueDir     string
	pollInterval time.Duration
	maxBackoff   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type Config struct {
	APIURL       string
	APIKey       string
	QueueDir     string
	PollInterval time.Duration
	Timeout      time.Duration
}

const sentMarker = ".sent"

func New(config Config) (*Agent, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if config.QueueDir == "" {
		config.QueueDir = "./queue"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if err := os.MkdirAll(config.QueueDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	return &Agent{
		client:       NewClient(config.APIURL, config.APIKey, config.Timeout),
		queueDir:     config.QueueDir,
		pollInterval: config.PollInterval,
		maxBackoff:   5 * time.Minute,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start verifies connectivity with a first heartbeat, then runs the
// heartbeat, job-poll and print-trigger loops until Stop.
func (a *Agent) Start() error {
	hb, err := a.client.Heartbeat()
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	log.Printf("connected as printer %s", hb.PrinterID)

	a.wg.Add(3)
	go a.heartbeatLoop()
	go a.pollJobsLoop()
	go a.printTriggerLoop()
	return nil
}

func (a *Agent) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Agent) heartbeatLoop() {
	defer a.wg.Done()
	a.runLoop(30*time.Second, func() error {
		_, err := a.client.Heartbeat()
		return err
	})
}

func (a *Agent) pollJobsLoop() {
	defer a.wg.Done()
	a.runLoop(a.pollInterval, a.syncReadyJobs)
}

func (a *Agent) printTriggerLoop() {
	defer a.wg.Done()
	a.runLoop(2*time.Second, a.checkPrintTriggers)
}

// runLoop ticks at interval, backing off exponentially up to maxBackoff
// while fn keeps failing so a dead server is not hammered.
func (a *Agent) runLoop(interval time.Duration, fn func() error) {
	delay := interval
	for {
		select {
		case <-a.stopCh:
			return
		case <-time.After(delay):
		}

		if err := fn(); err != nil {
			log.Printf("warning: %v", err)
			delay *= 2
			if delay > a.maxBackoff {
				delay = a.maxBackoff
			}
		} else {
			delay = interval
		}
	}
}

// syncReadyJobs downloads every ready job not already on disk and reports
// each as downloaded. The job directory doubles as the dedupe marker, so a
// job is never fetched twice.
func (a *Agent) syncReadyJobs() error {
	jobs, err := a.client.ListReadyJobs()
	if err != nil {
		return fmt.Errorf("job poll failed: %w", err)
	}

	for _, job := range jobs {
		dir := a.jobDir(job.ID)
		if _, err := os.Stat(dir); err == nil {
			continue
		}

		log.Printf("downloading job %d (%s)", job.ID, job.JobName)
		if err := a.downloadJob(job); err != nil {
			log.Printf("warning: download of job %d failed: %v", job.ID, err)
		}
	}
	return nil
}

func (a *Agent) downloadJob(job *JobInfo) error {
	dir := a.jobDir(job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Any failure below removes the directory so the next poll retries the
	// whole download instead of trusting a partial one.
	cleanup := func(err error) error {
		os.RemoveAll(dir)
		return err
	}

	eventName := job.EventName
	if eventName == "" {
		eventName = "print"
	}
	pdfPath := filepath.Join(dir, fmt.Sprintf("JOB-%d_%s.pdf", job.ID, sanitize(eventName)))

	body, err := a.client.DownloadJob(job.ID)
	if err != nil {
		return cleanup(err)
	}
	defer body.Close()

	out, err := os.Create(pdfPath)
	if err != nil {
		return cleanup(err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return cleanup(err)
	}
	if err := out.Close(); err != nil {
		return cleanup(err)
	}

	meta, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return cleanup(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "job.json"), meta, 0644); err != nil {
		return cleanup(err)
	}

	if err := a.client.MarkDownloaded(job.ID); err != nil {
		return cleanup(fmt.Errorf("mark-downloaded failed: %w", err))
	}

	log.Printf("job %d queued locally", job.ID)
	return nil
}

// checkPrintTriggers copies PDFs to the hot folder for downloaded jobs the
// operator has sent to print. The .sent marker keeps each copy one-shot.
func (a *Agent) checkPrintTriggers() error {
	status, err := a.client.QueueStatus()
	if err != nil {
		return fmt.Errorf("queue status failed: %w", err)
	}
	if status.Counts["sent_to_printer"] == 0 {
		return nil
	}

	entries, err := os.ReadDir(a.queueDir)
	if err != nil {
		return fmt.Errorf("failed to read queue directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job_") {
			continue
		}
		jobID, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), "job_"), 10, 64)
		if err != nil {
			continue
		}

		dir := filepath.Join(a.queueDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, sentMarker)); err == nil {
			continue
		}

		info, err := a.client.PrintInfo(jobID)
		if err != nil {
			// Not at the print head yet; check again next tick.
			if err == ErrNotPrintable {
				continue
			}
			log.Printf("warning: print info for job %d failed: %v", jobID, err)
			continue
		}

		if err := a.sendToHotFolder(dir, info); err != nil {
			log.Printf("warning: hot folder copy for job %d failed: %v", jobID, err)
		}
	}
	return nil
}

func (a *Agent) sendToHotFolder(dir string, info *PrintInfo) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil || len(matches) == 0 {
		return fmt.Errorf("no PDF found in %s", dir)
	}

	if err := os.MkdirAll(info.HotFolderPath, 0755); err != nil {
		return fmt.Errorf("failed to create hot folder: %w", err)
	}

	dest := filepath.Join(info.HotFolderPath, info.Filename)
	if err := copyFile(matches[0], dest); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(filepath.Join(dir, sentMarker), []byte(stamp), 0644); err != nil {
		return err
	}

	if err := a.client.ConfirmSent(info.JobID); err != nil {
		log.Printf("warning: confirm-sent for job %d failed: %v", info.JobID, err)
	}

	log.Printf("job %d copied to hot folder %s", info.JobID, info.HotFolderPath)
	return nil
}

func (a *Agent) jobDir(jobID int64) string {
	return filepath.Join(a.queueDir, fmt.Sprintf("job_%d", jobID))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
