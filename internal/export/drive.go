package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/avendahl/podium/internal/storage"
)

const uploadConcurrency = 3

// OutputLister is the slice of the outputs store the exporter needs.
type OutputLister interface {
	ListOutputs(ctx context.Context) ([]storage.Output, error)
}

// Exporter mirrors saved outputs into a Google Drive folder as Docs.
// Uploads are tracked per output id, so each output is created once
// per process lifetime.
type Exporter struct {
	service  *drive.Service
	store    OutputLister
	folderID string
	logger   *slog.Logger

	mu       sync.Mutex
	uploaded map[string]string
}

func NewExporter(ctx context.Context, credPath, folderID string, store OutputLister, logger *slog.Logger) (*Exporter, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return NewExporterWithService(svc, folderID, store, logger), nil
}

// NewExporterWithService wires an already-built Drive client, which
// is how tests point the exporter at a local server.
func NewExporterWithService(svc *drive.Service, folderID string, store OutputLister, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		service:  svc,
		store:    store,
		folderID: folderID,
		logger:   logger,
		uploaded: make(map[string]string),
	}
}

// Run exports on a fixed cadence until ctx ends.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ExportAll(ctx); err != nil {
				e.logger.Warn("export outputs", "error", err)
			}
		}
	}
}

// ExportAll uploads every output not yet mirrored, a few at a time.
func (e *Exporter) ExportAll(ctx context.Context) error {
	outputs, err := e.store.ListOutputs(ctx)
	if err != nil {
		return fmt.Errorf("list outputs: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, out := range outputs {
		if e.alreadyUploaded(out.ID) {
			continue
		}
		g.Go(func() error {
			return e.exportOne(ctx, out)
		})
	}
	return g.Wait()
}

func (e *Exporter) alreadyUploaded(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.uploaded[id]
	return ok
}

func (e *Exporter) exportOne(ctx context.Context, out storage.Output) error {
	doc, err := e.service.Files.Create(&drive.File{
		Name:     fmt.Sprintf("podium-%s-%s", out.CreatedAt.Format("2006-01-02"), out.ID),
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{e.folderID},
	}).Media(strings.NewReader(renderDoc(out))).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create for output %s: %w", out.ID, err)
	}

	e.mu.Lock()
	e.uploaded[out.ID] = doc.Id
	e.mu.Unlock()

	e.logger.Info("exported output", "output_id", out.ID, "file_id", doc.Id)
	return nil
}

// renderDoc lays the output out as the body of the Drive doc.
func renderDoc(out storage.Output) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Practice evaluation %s\n\n", out.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Session:** %s\n\n", out.SessionID)

	b.WriteString("## Evaluation\n\n")
	b.WriteString(strings.TrimSpace(out.Evaluation))
	b.WriteString("\n\n## Spoken feedback\n\n")
	b.WriteString(strings.TrimSpace(out.Script))

	m := out.Metrics
	b.WriteString("\n\n## Delivery metrics\n\n")
	fmt.Fprintf(&b, "- Words: %d in %.1fs (%.0f wpm)\n", m.WordCount, m.DurationSeconds, m.WordsPerMinute)
	fmt.Fprintf(&b, "- Fillers: %d (%.1f per minute)\n", m.FillerCount, m.FillerPerMinute)
	fmt.Fprintf(&b, "- Pauses: %d (longest %.1fs)\n", m.PauseCount, m.LongestPauseSeconds)

	if transcript := strings.TrimSpace(out.Transcript); transcript != "" {
		b.WriteString("\n## Transcript\n\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	return b.String()
}
