package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
	"github.com/jswatch/jswatch/internal/storage"
)

// contentStore is the slice of the storage layer the detector needs.
type contentStore interface {
	GetContentRecord(domain, url string) (*storage.ContentRecord, error)
	GetSnapshot(domain, url, hash string) ([]byte, error)
	SaveSnapshot(domain, url, hash string, body []byte) error
	SetContentHash(domain, url, hash string, size int, observedAt time.Time) error
}

// NewCodeSections carries the diff sections for both the raw and the
// beautified form of a changed file. Minified payloads rarely produce usable
// raw hunks, which is why both are kept.
type NewCodeSections struct {
	Raw       []Section `json:"raw"`
	Formatted []Section `json:"formatted"`
}

// Count reports the combined number of sections across both forms.
func (n NewCodeSections) Count() int {
	return len(n.Raw) + len(n.Formatted)
}

// ChangeResult classifies one observed payload against the content store.
type ChangeResult struct {
	IsNew    bool            `json:"is_new"`
	Changed  bool            `json:"changed"`
	Hash     string          `json:"hash"`
	Stats    DiffStats       `json:"stats"`
	Sections NewCodeSections `json:"sections,omitempty"`
	Preview  string          `json:"preview,omitempty"`
}

// Detector classifies payloads as new, changed or unchanged.
//
// Classify is safe to call concurrently for distinct (domain, url) pairs;
// calls for the same url must be serialized by the caller so two concurrent
// observations cannot race on the hash update.
type Detector struct {
	store           contentStore
	log             *zap.SugaredLogger
	maxSectionLines int
}

// NewDetector builds a Detector. maxSectionLines <= 0 selects the default.
func NewDetector(store contentStore, log *zap.SugaredLogger, maxSectionLines int) *Detector {
	if maxSectionLines <= 0 {
		maxSectionLines = DefaultMaxSectionLines
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Detector{store: store, log: log, maxSectionLines: maxSectionLines}
}

// HashContent returns the hex SHA-256 of a payload.
func HashContent(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Classify computes the payload hash, compares it with the stored record and
// produces the change classification. Any store read failure is treated as
// "no prior record": the file is reported as new and the store is
// overwritten, never raising the failure to the caller.
func (d *Detector) Classify(domain, url string, payload []byte) (*ChangeResult, error) {
	if domain == "" {
		return nil, sharedErrors.ErrEmptyDomain
	}
	if url == "" {
		return nil, sharedErrors.ErrEmptyURL
	}
	if len(payload) == 0 {
		return nil, sharedErrors.ErrEmptyPayload
	}
	if !utf8.Valid(payload) {
		return nil, sharedErrors.ErrInvalidPayload
	}

	hash := HashContent(payload)
	result := &ChangeResult{Hash: hash}
	result.Stats.FileSize = len(payload)

	prev, err := d.store.GetContentRecord(domain, url)
	if err != nil && err != sharedErrors.ErrRecordNotFound {
		// Fail open: unreadable or corrupt records behave like a first
		// observation so one bad row never stalls the pipeline.
		d.log.Warnw("content record unreadable, treating as new", "domain", domain, "url", url, "error", err)
		prev = nil
	}

	content := string(payload)

	switch {
	case prev == nil:
		result.IsNew = true
		result.Preview = previewExcerpt(content, d.maxSectionLines)
	case prev.Hash == hash:
		return result, nil
	default:
		result.Changed = true
		oldBody, err := d.store.GetSnapshot(domain, url, prev.Hash)
		if err != nil {
			d.log.Warnw("previous snapshot unavailable, reporting as new", "domain", domain, "url", url, "error", err)
			result.Changed = false
			result.IsNew = true
			result.Preview = previewExcerpt(content, d.maxSectionLines)
			break
		}
		oldContent := string(oldBody)

		rawLines := diffLines(oldContent, content)
		result.Sections.Raw, result.Stats = partitionSections(rawLines, d.maxSectionLines)

		formattedLines := diffLines(Beautify(oldContent), Beautify(content))
		var formattedStats DiffStats
		result.Sections.Formatted, formattedStats = partitionSections(formattedLines, d.maxSectionLines)
		// Minified payloads collapse to a single raw line; the formatted
		// stats are the usable ones then.
		if result.Stats.AddedLines == 0 && result.Stats.RemovedLines == 0 {
			result.Stats.AddedLines = formattedStats.AddedLines
			result.Stats.RemovedLines = formattedStats.RemovedLines
		}
		result.Stats.FileSize = len(payload)
	}

	// Snapshot first, hash second: a crash between the two writes must not
	// leave a hash pointing at missing content.
	if err := d.store.SaveSnapshot(domain, url, hash, payload); err != nil {
		return nil, err
	}
	if err := d.store.SetContentHash(domain, url, hash, len(payload), time.Now().UTC()); err != nil {
		return nil, err
	}

	return result, nil
}

// previewExcerpt returns a bounded excerpt of the beautified content for
// new-file reporting, where there is nothing to diff against.
func previewExcerpt(content string, maxLines int) string {
	formatted := Beautify(content)
	lines := strings.Split(formatted, "\n")
	if len(lines) <= maxLines {
		return formatted
	}
	return strings.Join(lines[:maxLines], "\n")
}
