// Package importer runs listing imports into the company registry: search
// imports that decide per item synchronously, and manual uploads that are
// staged first and published on request.
package importer

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of an import run.
type RunStatus string

// Run statuses.
const (
	RunPending     RunStatus = "pending"
	RunRunning     RunStatus = "running"
	RunDone        RunStatus = "done"
	RunFailed      RunStatus = "failed"
	RunInvalidated RunStatus = "invalidated"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunFailed},
	RunRunning: {RunDone, RunFailed},
	RunDone:    {RunInvalidated},
}

// CanTransition reports whether a run may move from s to next. Progression
// is strictly forward; failed and invalidated are terminal.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, to := range runTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// finishFrom returns the statuses a run may be closed from as to. Only a
// failure can close a run that never left pending.
func finishFrom(to RunStatus) (RunStatus, RunStatus) {
	if to == RunFailed {
		return RunRunning, RunPending
	}
	return RunRunning, RunRunning
}

// SourceKind identifies where a run's items came from.
type SourceKind string

// Source kinds.
const (
	SourceAPISearch    SourceKind = "api_search"
	SourceManualUpload SourceKind = "manual_upload"
)

// Counters tallies a run's outcomes.
type Counters struct {
	Found     int `json:"found"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
	Deduped   int `json:"deduped"`
}

// Add returns the element-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		Found:     c.Found + d.Found,
		Inserted:  c.Inserted + d.Inserted,
		Updated:   c.Updated + d.Updated,
		Conflicts: c.Conflicts + d.Conflicts,
		Errors:    c.Errors + d.Errors,
		Deduped:   c.Deduped + d.Deduped,
	}
}

// IsZero reports whether no counter is set.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Options tune how items are written to the registry.
type Options struct {
	IgnoreDuplicates  bool `json:"ignore_duplicates" yaml:"ignore_duplicates" mapstructure:"ignore_duplicates"`
	UpdateExisting    bool `json:"update_existing" yaml:"update_existing" mapstructure:"update_existing"`
	DryRun            bool `json:"dry_run" yaml:"dry_run" mapstructure:"dry_run"`
	ActivateCompanies bool `json:"activate_companies" yaml:"activate_companies" mapstructure:"activate_companies"`
}

// Run is one ingestion attempt.
type Run struct {
	ID      string     `json:"id"`
	Source  SourceKind `json:"source"`
	CityID  *int64     `json:"city_id,omitempty"`
	NicheID *int64     `json:"niche_id,omitempty"`
	Query   *string    `json:"query,omitempty"`
	Limit   int        `json:"limit"`
	DryRun  bool       `json:"dry_run"`
	ActorID string     `json:"actor_id,omitempty"`
	Options Options    `json:"options"`
	// Params is the request snapshot kept for audit and replay.
	Params        map[string]any `json:"params,omitempty"`
	Status        RunStatus      `json:"status"`
	Counters      Counters       `json:"counters"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	InvalidatedBy string         `json:"invalidated_by,omitempty"`
	InvalidatedAt *time.Time     `json:"invalidated_at,omitempty"`
}

// RecordStatus is the decision taken for one item.
type RecordStatus string

// Record statuses. Conflict is the staged state of upload rows and the
// unresolved state of search duplicates; the others are terminal.
const (
	RecordInserted RecordStatus = "inserted"
	RecordUpdated  RecordStatus = "updated"
	RecordConflict RecordStatus = "conflict"
	RecordIgnored  RecordStatus = "ignored"
	RecordError    RecordStatus = "error"
)

// Projection is the normalized view of an item kept with its record.
type Projection struct {
	Name            string `json:"name,omitempty"`
	Phone           string `json:"phone,omitempty"`
	WhatsApp        string `json:"whatsapp,omitempty"`
	Address         string `json:"address,omitempty"`
	Website         string `json:"website,omitempty"`
	City            string `json:"city,omitempty"`
	Niche           string `json:"niche,omitempty"`
	Source          string `json:"source,omitempty"`
	NormalizedName  string `json:"normalized_name,omitempty"`
	NormalizedPhone string `json:"normalized_phone,omitempty"`
	// MatchedCompanyID is the registry company a duplicate was matched to.
	MatchedCompanyID *int64   `json:"matched_company_id,omitempty"`
	MatchRule        string   `json:"match_rule,omitempty"`
	ChangedFields    []string `json:"changed_fields,omitempty"`
}

// PublishMode says how a record reached the registry.
type PublishMode string

// Publish modes.
const (
	PublishLinkedExisting PublishMode = "linked_existing"
	PublishCreatedNew     PublishMode = "created_new"
	PublishIgnored        PublishMode = "ignored"
)

// PublishMeta records who resolved a record and how.
type PublishMeta struct {
	By   string      `json:"by,omitempty"`
	At   time.Time   `json:"at"`
	Mode PublishMode `json:"mode"`
}

// Record is one observed item of a run.
type Record struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	Position   int             `json:"position"`
	CityID     *int64          `json:"city_id,omitempty"`
	NicheID    *int64          `json:"niche_id,omitempty"`
	DedupeKey  *string         `json:"dedupe_key,omitempty"`
	CompanyID  *int64          `json:"company_id,omitempty"`
	Status     RecordStatus    `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Projection Projection      `json:"projection"`
	Publish    *PublishMeta    `json:"publish,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ConflictAction is an operator decision on a conflict record.
type ConflictAction string

// Conflict actions.
const (
	ActionLinkExisting ConflictAction = "link_existing"
	ActionCreateNew    ConflictAction = "create_new"
	ActionIgnore       ConflictAction = "ignore"
)

// Record reasons shown to operators.
const (
	ReasonMissingName       = "missing name"
	ReasonMissingCity       = "missing city"
	ReasonMissingNiche      = "missing niche"
	ReasonNoNewInformation  = "duplicate, no new information"
	ReasonDryRunUpdate      = "dry run pending update"
	ReasonDryRun            = "dry run"
	ReasonStaged            = "staged"
	ReasonManualLink        = "manual link"
	ReasonForcedCreation    = "forced manual creation"
	ReasonIgnoredByOperator = "ignored by operator"
	ReasonDuplicateExisting = "duplicate of existing company"
	ReasonPublished         = "published"
)
