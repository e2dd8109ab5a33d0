// Package ingester orchestrates dataset creation: it classifies each
// uploaded file, runs dedup and the image pipeline, stores raw files
// verbatim, and commits one dataset record per successful batch.
package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/dsingest/idgen"
	"github.com/hazyhaar/dsingest/imghash"
	"github.com/hazyhaar/dsingest/imgmeta"
	"github.com/hazyhaar/dsingest/kit"
	"github.com/hazyhaar/dsingest/observability"
	"github.com/hazyhaar/dsingest/safepath"
	"github.com/hazyhaar/dsingest/store"
	"github.com/hazyhaar/dsingest/transform"
)

// ValidationError marks a rejected request whose message is safe to
// show to clients. Field checks run before any file processing, so
// those rejections carry no side effects.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UploadFile is one file part of an ingestion request.
type UploadFile struct {
	Name        string // client-supplied original name
	ContentType string // declared MIME type; image/* selects the image path
	Data        []byte
}

// CreateRequest is a full ingestion batch.
type CreateRequest struct {
	Title       string
	DatasetType string
	Version     string
	Options     store.Options
	Files       []UploadFile
}

// CreateResult is the successful-ingestion response body.
type CreateResult struct {
	OK             bool            `json:"ok"`
	Dataset        *store.Dataset  `json:"dataset"`
	ProcessedFiles []store.FileRef `json:"processedFiles"`
	Message        string          `json:"message"`
}

// Ingester is the main pipeline orchestrator.
type Ingester struct {
	Store       *store.Store
	Config      *Config
	Transformer *transform.Transformer
	Audit       *observability.AuditLogger
	Events      *observability.EventLogger
	NewID       idgen.Generator

	log *slog.Logger
	now func() time.Time
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithAudit sets the audit logger.
func WithAudit(a *observability.AuditLogger) Option {
	return func(ing *Ingester) { ing.Audit = a }
}

// WithEvents sets the event logger.
func WithEvents(e *observability.EventLogger) Option {
	return func(ing *Ingester) { ing.Events = e }
}

// WithIDGenerator sets the generator used for dataset IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(ing *Ingester) { ing.NewID = g }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingester) { ing.log = l }
}

// WithClock overrides the time source for generated names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(ing *Ingester) { ing.now = now }
}

// New creates a fully wired ingester, preparing the uploads directories
// and the dataset store.
func New(cfg *Config, opts ...Option) (*Ingester, error) {
	for _, dir := range []string{cfg.RawDir(), cfg.ProcessedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", dir, err)
		}
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	ing := &Ingester{
		Store:       st,
		Config:      cfg,
		Transformer: transform.New(cfg.ProcessedDir(), "/uploads/processed"),
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(ing)
	}
	// Keep the ID generator and the filename timestamps on one clock.
	if ing.NewID == nil {
		ing.NewID = datasetID(ing.now)
	}
	ing.Transformer.Now(ing.now)
	return ing, nil
}

// Close releases observability resources.
func (ing *Ingester) Close() error {
	if ing.Audit != nil {
		ing.Audit.Close()
	}
	return nil
}

// datasetID builds "ds_{unixMillis}" generators on the given clock.
func datasetID(now func() time.Time) idgen.Generator {
	return idgen.Prefixed("ds_", func() string {
		return strconv.FormatInt(now().UnixMilli(), 10)
	})
}

// Create runs one ingestion batch. Files are processed strictly in
// upload order with no parallelism. Duplicates are skipped silently;
// undecodable images are skipped too unless strict_decode is set, in
// which case the whole batch fails. The store is written exactly once,
// after the loop, so a failed batch commits nothing.
func (ing *Ingester) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	start := ing.now()
	requestID := kit.GetRequestID(ctx)

	if err := validate(req); err != nil {
		return nil, err
	}

	existing, err := ing.Store.KnownHashes()
	if err != nil {
		return nil, err
	}
	batchSeen := make(map[string]struct{})

	var (
		processed []store.FileRef
		entries   []store.IndexEntry
	)
	for _, f := range req.Files {
		if strings.HasPrefix(f.ContentType, "image/") {
			ref, entry, err := ing.processImage(ctx, f, req.Options, existing, batchSeen, requestID)
			if err != nil {
				return nil, err
			}
			if ref == nil {
				continue // duplicate or skipped decode failure
			}
			processed = append(processed, *ref)
			entries = append(entries, *entry)
		} else {
			ref, err := ing.storeRaw(ctx, f, requestID)
			if err != nil {
				return nil, err
			}
			processed = append(processed, *ref)
		}
	}

	if processed == nil {
		processed = []store.FileRef{}
	}
	ds := store.Dataset{
		ID:          ing.NewID(),
		Title:       req.Title,
		DatasetType: req.DatasetType,
		Version:     req.Version,
		Files:       processed,
		Options:     req.Options,
		CreatedAt:   ing.now().UTC(),
	}
	if err := ing.Store.Commit(ds, entries); err != nil {
		return nil, err
	}

	ing.recordEvent(ctx, "dataset", ds.ID, requestID, "created",
		fmt.Sprintf(`{"files":%d,"indexed":%d}`, len(processed), len(entries)), true)
	ing.auditLog("create_dataset", auditParams{
		Title:       req.Title,
		DatasetType: req.DatasetType,
		Version:     req.Version,
		Files:       len(req.Files),
		Options:     req.Options,
	}, ds.ID, requestID, nil, ing.now().Sub(start))
	ing.log.InfoContext(ctx, "dataset created",
		"dataset_id", ds.ID, "title", ds.Title, "files", len(processed), "request_id", requestID)

	return &CreateResult{
		OK:             true,
		Dataset:        &ds,
		ProcessedFiles: processed,
		Message:        "Dataset created & files processed.",
	}, nil
}

// Datasets returns every committed dataset.
func (ing *Ingester) Datasets() ([]store.Dataset, error) {
	return ing.Store.Datasets()
}

func validate(req *CreateRequest) error {
	if req.Title == "" || req.DatasetType == "" || req.Version == "" {
		return &ValidationError{Msg: "Missing title/datasetType/version"}
	}
	if len(req.Files) == 0 {
		return &ValidationError{Msg: "No files uploaded"}
	}
	return nil
}

// processImage runs dedup and the transform pipeline for one image. A
// nil ref with nil error means the file was skipped and the batch goes
// on.
func (ing *Ingester) processImage(ctx context.Context, f UploadFile, opts store.Options, existing, batchSeen map[string]struct{}, requestID string) (*store.FileRef, *store.IndexEntry, error) {
	var fingerprint *string
	if opts.Deduplicate {
		h, err := imghash.Fingerprint(f.Data)
		if err != nil {
			return ing.skipUndecodable(ctx, f, requestID, err)
		}
		if _, ok := existing[h]; ok {
			return ing.skipDuplicate(ctx, f, h, requestID)
		}
		if _, ok := batchSeen[h]; ok {
			return ing.skipDuplicate(ctx, f, h, requestID)
		}
		batchSeen[h] = struct{}{}
		fingerprint = &h
	}

	res, err := ing.Transformer.Apply(f.Data, baseName(f.Name), toTransform(opts))
	if err != nil {
		if errors.Is(err, transform.ErrUnsupportedImage) {
			return ing.skipUndecodable(ctx, f, requestID, err)
		}
		return nil, nil, err
	}

	meta := imgmeta.Extract(f.Data)
	ref := store.FileRef{Filename: res.Filename, URL: res.URL}
	entry := store.IndexEntry{
		Filename:  res.Filename,
		URL:       res.URL,
		Hash:      fingerprint,
		Metadata:  meta,
		CreatedAt: ing.now().UTC(),
	}
	details, _ := json.Marshal(processedDetails{
		Format:   res.Format,
		Bytes:    len(res.Bytes),
		Width:    res.Width,
		Height:   res.Height,
		Metadata: meta,
	})
	ing.recordEvent(ctx, "file", res.Filename, requestID, "processed", string(details), true)
	return &ref, &entry, nil
}

// processedDetails is the JSON payload of a "processed" event.
type processedDetails struct {
	Format   string            `json:"format"`
	Bytes    int               `json:"bytes"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Metadata *imgmeta.Metadata `json:"metadata,omitempty"`
}

// storeRaw writes a non-image file verbatim into the raw directory.
func (ing *Ingester) storeRaw(ctx context.Context, f UploadFile, requestID string) (*store.FileRef, error) {
	name := strconv.FormatInt(ing.now().UnixMilli(), 10) + "_" + rawName(f.Name)
	path, err := safepath.Join(ing.Config.RawDir(), name)
	if err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("Invalid filename: %s", f.Name)}
	}
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return nil, fmt.Errorf("store raw %s: %w", name, err)
	}
	ing.recordEvent(ctx, "file", name, requestID, "raw_stored",
		fmt.Sprintf(`{"contentType":%q,"bytes":%d}`, f.ContentType, len(f.Data)), true)
	return &store.FileRef{Filename: name, URL: "/uploads/tmp/" + name}, nil
}

func (ing *Ingester) skipDuplicate(ctx context.Context, f UploadFile, hash, requestID string) (*store.FileRef, *store.IndexEntry, error) {
	ing.log.InfoContext(ctx, "skipped duplicate", "file", f.Name, "hash", hash, "request_id", requestID)
	ing.recordEvent(ctx, "file", f.Name, requestID, "dedup_skipped",
		fmt.Sprintf(`{"hash":%q}`, hash), true)
	return nil, nil, nil
}

// skipUndecodable applies the decode-failure policy: skip the file and
// continue, or fail the whole batch under strict_decode.
func (ing *Ingester) skipUndecodable(ctx context.Context, f UploadFile, requestID string, cause error) (*store.FileRef, *store.IndexEntry, error) {
	ing.recordEvent(ctx, "file", f.Name, requestID, "decode_failed", "", false)
	if ing.Config.StrictDecode {
		return nil, nil, fmt.Errorf("decode %s: %w", f.Name, cause)
	}
	ing.log.WarnContext(ctx, "skipped undecodable file", "file", f.Name, "error", cause, "request_id", requestID)
	return nil, nil, nil
}

// baseName strips directories and the extension from a client-supplied
// name before it reaches the pipeline's sanitizer.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// rawWhitespace matches whitespace runs in raw upload names. Each run
// becomes a single underscore, leading and trailing runs included.
var rawWhitespace = regexp.MustCompile(`\s+`)

// rawName keeps a raw upload's extension but folds whitespace and strips
// any client-supplied path components.
func rawName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return rawWhitespace.ReplaceAllString(name, "_")
}

func (ing *Ingester) recordEvent(ctx context.Context, eventType, entityID, requestID, action, details string, success bool) {
	if ing.Events == nil {
		return
	}
	ing.Events.LogEvent(ctx, observability.IngestEvent{
		EventType: eventType,
		EntityID:  entityID,
		RequestID: requestID,
		Action:    action,
		Details:   details,
		Success:   success,
	})
}

// auditParams is the compact request summary persisted with each audit
// entry; file contents never reach the audit log.
type auditParams struct {
	Title       string        `json:"title"`
	DatasetType string        `json:"datasetType"`
	Version     string        `json:"version"`
	Files       int           `json:"files"`
	Options     store.Options `json:"options"`
}

func (ing *Ingester) auditLog(operation string, params any, result, requestID string, err error, duration time.Duration) {
	if ing.Audit == nil {
		return
	}
	entry := ing.Audit.NewAuditEntry(operation, params, result, err, duration)
	entry.RequestID = requestID
	ing.Audit.LogAsync(entry)
}
