// Package coretypes holds the data-model types shared across the cache
// engine's components, so that no package needs to import the
// orchestrator (or each other) just to share a struct definition.
package coretypes

import "time"

// FileKey is the canonical "{repoId}:{relPath}" identity of a source
// file. relPath is always forward-slash form.
type FileKey string

// ContextMode distinguishes the long-lived canonical view from a
// PR-shaped overlay on top of one.
type ContextMode string

const (
	ContextModeBaseline ContextMode = "baseline"
	ContextModePR       ContextMode = "pr"
)

// OverlayMode escalates irreversibly from Sparse to PartialOverlay once
// either overlay counter crosses a configured ceiling.
type OverlayMode string

const (
	OverlayModeSparse         OverlayMode = "sparse"
	OverlayModePartialOverlay OverlayMode = "partialOverlay"
)

// ContextStatus marks whether a context is still visible to chain walks.
type ContextStatus string

const (
	ContextStatusActive  ContextStatus = "active"
	ContextStatusExpired ContextStatus = "expired"
)

// FileState is an overlay's recorded change against its baseline.
type FileState string

const (
	FileStateAdded    FileState = "added"
	FileStateModified FileState = "modified"
	FileStateRenamed  FileState = "renamed"
	FileStateDeleted  FileState = "deleted"
)

// MatchType reports how a compile-db lookup was satisfied, so callers
// can tell an exact hit from a fallback sibling-TU guess.
type MatchType string

const (
	MatchTypeExact    MatchType = "exact"
	MatchTypeFallback MatchType = "fallback"
	MatchTypeMissing  MatchType = "missing"
)

// FileClass is the freshness classification of one candidate file.
type FileClass string

const (
	FileClassFresh    FileClass = "fresh"
	FileClassStale    FileClass = "stale"
	FileClassUnparsed FileClass = "unparsed"
)

// RefKind enumerates the reference kinds the extractor emits.
type RefKind string

const (
	RefKindCall  RefKind = "call"
	RefKindRead  RefKind = "read"
	RefKindWrite RefKind = "write"
	RefKindAddr  RefKind = "addr"
)

// JobStatus is shared by both job queues (index jobs and repo-sync jobs).
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDeadLetter JobStatus = "deadLetter"
)

// Workspace is a multi-repo topology: a root path, a manifest path, and
// the set of repos it owns.
type Workspace struct {
	WorkspaceID  string
	RootPath     string
	ManifestPath string
}

// RepoSyncMeta is present only when a repo is backed by a remote.
type RepoSyncMeta struct {
	RemoteURL   string // must be HTTPS
	TokenEnvVar string
	ProjectPath string
	CommitSHA   string // pinned 40-hex commit
}

// Repo is one repository within a workspace.
type Repo struct {
	RepoID          string
	Root            string // relative to workspace root
	CompileCommands string // optional, relative to the workspace root or absolute
	DefaultBranch   string
	DependsOn       []string
	Sync            *RepoSyncMeta // nil when not remote-backed
}

// PathRemap rewrites an include path's prefix to land it in another repo,
// used by ResolveIncludeDep when direct repo membership fails.
type PathRemap struct {
	FromPrefix string
	ToRepoID   string
	ToPrefix   string
}

// Manifest is the parsed, validated workspace manifest.
type Manifest struct {
	WorkspaceID string
	Repos       []Repo
	PathRemaps  []PathRemap
}

// AnalysisContext is a versioned view of facts: baseline or overlay.
type AnalysisContext struct {
	ContextID       string
	WorkspaceID     string
	Mode            ContextMode
	BaseContextID   string // empty for baseline
	OverlayMode     OverlayMode
	OverlayFiles    int
	OverlayRows     int
	Status          ContextStatus
	LastAccessedAt  time.Time
	ExpiresAt       time.Time
}

// TrackedFile is the per-(context, file-key) freshness record.
type TrackedFile struct {
	ContextID     string
	FileKey       FileKey
	AbsPath       string
	ContentHash   string
	FlagsHash     string
	IncludesHash  string
	CompositeHash string
	LastParsedAt  time.Time
}

// Symbol is one definition-site fact emitted by the extractor.
type Symbol struct {
	FileKey       FileKey
	Name          string
	QualifiedName string
	Kind          string
	Line          int
	Col           int
	ExtentEndLine int
}

// DedupKey is the reader's identity for deduplication across a context
// chain.
func (s Symbol) DedupKey() string {
	return string(s.FileKey) + "\x1f" + s.QualifiedName + "\x1f" + itoa(s.Line) + "\x1f" + itoa(s.Col)
}

// Reference is one use-site fact emitted by the extractor.
type Reference struct {
	FileKey FileKey
	Symbol  string
	Line    int
	Col     int
	Kind    RefKind
}

func (r Reference) DedupKey() string {
	return string(r.FileKey) + "\x1f" + r.Symbol + "\x1f" + itoa(r.Line) + "\x1f" + itoa(r.Col) + "\x1f" + string(r.Kind)
}

// CallEdge is one caller→callee fact emitted by the extractor.
type CallEdge struct {
	FileKey FileKey
	Caller  string
	Callee  string
	Line    int
}

func (c CallEdge) DedupKey() string {
	return string(c.FileKey) + "\x1f" + c.Caller + "\x1f" + c.Callee + "\x1f" + itoa(c.Line)
}

// IncludeDep is one #include resolution emitted by the extractor.
type IncludeDep struct {
	FileKey FileKey
	Path    string
	Depth   int
}

// ContextFileState records an overlay's claim about one file-key.
type ContextFileState struct {
	ContextID           string
	FileKey             FileKey
	State               FileState
	ReplacedFromFileKey FileKey // only set for renames
}

// ParseRun is one audit row for a single parse attempt.
type ParseRun struct {
	ContextID  string
	FileKey    FileKey
	AbsPath    string
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	ErrorMsg   string
}

// ParsePayload is the result of a successful parse, ready to persist.
type ParsePayload struct {
	ContextID     string
	FileKey       FileKey
	RepoID        string
	AbsPath       string
	Content       []byte
	ContentHash   string
	FlagsHash     string
	IncludesHash  string
	CompositeHash string
	Symbols       []Symbol
	References    []Reference
	CallEdges     []CallEdge
	IncludeDeps   []IncludeDep
}

// CompileEntry is one resolved compile-command catalog entry.
type CompileEntry struct {
	AbsPath   string
	Directory string
	Flags     []string
	FlagsHash string
}

// ParseTask is a unit of work for the Parser Pool.
type ParseTask struct {
	ContextID string
	FileKey   FileKey
	RepoID    string
	RelPath   string
	AbsPath   string
	Entry     CompileEntry
	MatchType MatchType
}

// ConfidenceEnvelope is the structured per-response summary attached to
// every orchestrator answer.
type ConfidenceEnvelope struct {
	VerifiedFiles   []FileKey
	StaleFiles      []FileKey
	UnparsedFiles   []FileKey
	TotalCandidates int
	VerifiedRatio   float64
	Warnings        []string
	OverlayMode     OverlayMode
	RepoCoverage    map[string]float64
}

// RepoSyncJob is one item in the repo-sync queue.
type RepoSyncJob struct {
	ID                  string
	WorkspaceID         string
	RepoID              string
	RequestedBranch     string
	RequestedCommitSHA  string
	RequestedForceClean bool
	ResolvedCommitSHA   string
	Status              JobStatus
	Attempts            int
	MaxAttempts         int
	ErrorCode           string
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	StartedAt           time.Time
	FinishedAt          time.Time
}

// IndexJob is one item in the index-job queue (webhook-triggered coarse
// work).
type IndexJob struct {
	ID          string
	WorkspaceID string
	Payload     string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CommitDiffSummary is one row of the vector side-store's
// commit_diff_summaries table: a free-text summary of one commit's
// diff, keyed for later similarity search once embeddings are
// enabled.
type CommitDiffSummary struct {
	ID          string
	WorkspaceID string
	RepoID      string
	CommitSHA   string
	Branch      string
	SummaryText string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
