package domain

import "time"

// TokenKind classifies a stored access token: project tokens only grant
// access to a single project, personal tokens to everything the user sees.
type TokenKind string

const (
	TokenPersonal TokenKind = "personal"
	TokenProject  TokenKind = "project"
)

// Mapping associates a local git remote URL with a gitlab project.
// Unique by Remote; replaced as a whole, never patched.
type Mapping struct {
	Remote      string
	Host        string
	ProjectPath string
	ProjectID   string
	ProjectName string
}

// HostAndProjectPath is the resolver's guess for an unmapped remote.
type HostAndProjectPath struct {
	Host        string
	ProjectPath string
}

// PipelineStatus is one pipeline as shown to consumers. StatusGroup and
// MergeRequestLink stay empty until enrichment fills them within the same
// cycle. A zero UpdatedAt means gitlab did not report an update time.
type PipelineStatus struct {
	ID               int64
	BranchName       string
	ProjectID        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Status           string
	StatusGroup      string
	WebURL           string
	Source           string
	MergeRequestLink string
}

// MergeRequestSummary is held only for correlating pipelines to open merge
// requests; rebuilt from scratch every cycle.
type MergeRequestSummary struct {
	SourceBranch    string
	WebURL          string
	Title           string
	HeadPipelineRef string
}

// Snapshot is the published result of one refresh cycle. It is immutable
// once published; readers always see either the previous or the new one.
type Snapshot struct {
	Mappings      map[string]Mapping          // keyed by remote URL
	Statuses      map[string][]PipelineStatus // keyed by remote URL, newest first
	MergeRequests []MergeRequestSummary
	Taken         time.Time
}

// ProjectInfo is the lightweight result of the project GraphQL query, used
// before a mapping exists.
type ProjectInfo struct {
	Name        string
	ID          string
	JobsEnabled bool
}

// ProjectDetails carries one mapping's enrichment data: open merge requests
// for the locally tracked branches and detailed status groups for recent
// successful pipelines, keyed by numeric pipeline id.
type ProjectDetails struct {
	ProjectInfo
	MergeRequests []MergeRequestSummary
	StatusGroups  map[int64]string
}

// UntrackedRemote is emitted when a remote has no mapping and could not be
// mapped automatically. BestGuess may be nil if even the fallback pattern
// failed.
type UntrackedRemote struct {
	URL       string
	BestGuess *HostAndProjectPath
}

// AuthRequest asks the presentation layer for a (new) token after a login
// failure. The consumer answers on Reply exactly once.
type AuthRequest struct {
	Mapping  Mapping
	OldToken string
	Kind     TokenKind
	Reply    chan AuthResponse
}

// AuthResponse resolves an AuthRequest. Submitted false means the prompt
// was declined; an empty Token with Submitted true deletes the stored one.
type AuthResponse struct {
	Token     string
	Kind      TokenKind
	Submitted bool
}

// Repository is a locally checked out repository and its remote URLs.
type Repository struct {
	Root    string
	Remotes []string
}
