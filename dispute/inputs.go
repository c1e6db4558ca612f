package dispute

import (
	"strings"
	"time"
)

// Nullable is an explicit assignment to a column that accepts NULL. The zero
// value means "leave the column alone".
type Nullable[T any] struct {
	set   bool
	value *T
}

// Set assigns v.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{set: true, value: &v}
}

// Null assigns NULL.
func Null[T any]() Nullable[T] {
	return Nullable[T]{set: true}
}

// FromPtr assigns *p, or NULL when p is nil.
func FromPtr[T any](p *T) Nullable[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

func (n Nullable[T]) IsSet() bool { return n.set }

// Value returns the assigned value, nil for NULL or unset.
func (n Nullable[T]) Value() *T { return n.value }

func (n Nullable[T]) applyTo(dst **T) {
	if !n.set {
		return
	}
	if n.value == nil {
		*dst = nil
		return
	}
	v := *n.value
	*dst = &v
}

func applyPtr[T any](src *T, dst *T) {
	if src != nil {
		*dst = *src
	}
}

// CaseInput carries the fields of a new case. Zero enum values and an empty
// currency take the service defaults; a blank CaseNumber is generated.
type CaseInput struct {
	CaseNumber        string
	DisputeID         *string
	Title             string
	Category          Category
	Status            CaseStatus
	Severity          Severity
	Summary           *string
	NextStep          *string
	ResolutionNotes   *string
	ExternalReference *string
	AmountDisputed    *float64
	Currency          string
	OpenedAt          *time.Time
	DueAt             *time.Time
	ResolvedAt        *time.Time
	SLADueAt          *time.Time
	LastReviewedAt    *time.Time
	RequiresFollowUp  bool
}

func (in CaseInput) build(ownerID string) (Case, error) {
	c := Case{
		OwnerID:           ownerID,
		DisputeID:         in.DisputeID,
		Title:             strings.TrimSpace(in.Title),
		Category:          in.Category,
		Status:            in.Status,
		Severity:          in.Severity,
		Summary:           in.Summary,
		NextStep:          in.NextStep,
		ResolutionNotes:   in.ResolutionNotes,
		ExternalReference: in.ExternalReference,
		AmountDisputed:    in.AmountDisputed,
		Currency:          strings.ToUpper(strings.TrimSpace(in.Currency)),
		OpenedAt:          in.OpenedAt,
		DueAt:             in.DueAt,
		ResolvedAt:        in.ResolvedAt,
		SLADueAt:          in.SLADueAt,
		LastReviewedAt:    in.LastReviewedAt,
		RequiresFollowUp:  in.RequiresFollowUp,
	}
	if c.Category == "" {
		c.Category = defaultCategory
	}
	if c.Status == "" {
		c.Status = defaultStatus
	}
	if c.Severity == "" {
		c.Severity = defaultSeverity
	}
	if c.Currency == "" {
		c.Currency = defaultCurrency
	}

	if c.Title == "" {
		return Case{}, validationError("title", "is required")
	}
	if err := validateCaseEnums(c); err != nil {
		return Case{}, err
	}
	return c, nil
}

func validateCaseEnums(c Case) error {
	if !c.Category.Valid() {
		return validationError("category", "is not a known category: "+string(c.Category))
	}
	if !c.Status.Valid() {
		return validationError("status", "is not a known status: "+string(c.Status))
	}
	if !c.Severity.Valid() {
		return validationError("severity", "is not a known severity: "+string(c.Severity))
	}
	return nil
}

// CasePatch is a partial update: nil pointers and unset Nullables leave the
// stored value untouched.
type CasePatch struct {
	CaseNumber        *string
	DisputeID         Nullable[string]
	Title             *string
	Category          *Category
	Status            *CaseStatus
	Severity          *Severity
	Summary           Nullable[string]
	NextStep          Nullable[string]
	ResolutionNotes   Nullable[string]
	ExternalReference Nullable[string]
	AmountDisputed    Nullable[float64]
	Currency          *string
	OpenedAt          Nullable[time.Time]
	DueAt             Nullable[time.Time]
	ResolvedAt        Nullable[time.Time]
	SLADueAt          Nullable[time.Time]
	LastReviewedAt    Nullable[time.Time]
	RequiresFollowUp  *bool
}

// proposedNumber returns the trimmed case number the patch asks for, or "".
func (p CasePatch) proposedNumber() string {
	if p.CaseNumber == nil {
		return ""
	}
	return strings.TrimSpace(*p.CaseNumber)
}

func (p CasePatch) apply(c Case) (Case, error) {
	p.DisputeID.applyTo(&c.DisputeID)
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Case{}, validationError("title", "cannot be blank")
		}
		c.Title = title
	}
	applyPtr(p.Category, &c.Category)
	applyPtr(p.Status, &c.Status)
	applyPtr(p.Severity, &c.Severity)
	p.Summary.applyTo(&c.Summary)
	p.NextStep.applyTo(&c.NextStep)
	p.ResolutionNotes.applyTo(&c.ResolutionNotes)
	p.ExternalReference.applyTo(&c.ExternalReference)
	p.AmountDisputed.applyTo(&c.AmountDisputed)
	if p.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*p.Currency))
		if currency == "" {
			return Case{}, validationError("currency", "cannot be blank")
		}
		c.Currency = currency
	}
	p.OpenedAt.applyTo(&c.OpenedAt)
	p.DueAt.applyTo(&c.DueAt)
	p.ResolvedAt.applyTo(&c.ResolvedAt)
	p.SLADueAt.applyTo(&c.SLADueAt)
	p.LastReviewedAt.applyTo(&c.LastReviewedAt)
	applyPtr(p.RequiresFollowUp, &c.RequiresFollowUp)

	if err := validateCaseEnums(c); err != nil {
		return Case{}, err
	}
	return c, nil
}

type TaskInput struct {
	Label        string
	Status       TaskStatus
	AssignedTo   *string
	DueAt        *time.Time
	CompletedAt  *time.Time
	Instructions *string
}

func (in TaskInput) build(caseID string) (Task, error) {
	t := Task{
		CaseID:       caseID,
		Label:        strings.TrimSpace(in.Label),
		Status:       in.Status,
		AssignedTo:   in.AssignedTo,
		DueAt:        in.DueAt,
		CompletedAt:  in.CompletedAt,
		Instructions: in.Instructions,
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Label == "" {
		return Task{}, validationError("label", "is required")
	}
	if !t.Status.Valid() {
		return Task{}, validationError("status", "is not a known task status: "+string(t.Status))
	}
	return t, nil
}

type TaskPatch struct {
	Label        *string
	Status       *TaskStatus
	AssignedTo   Nullable[string]
	DueAt        Nullable[time.Time]
	CompletedAt  Nullable[time.Time]
	Instructions Nullable[string]
}

func (p TaskPatch) apply(t Task) (Task, error) {
	if p.Label != nil {
		label := strings.TrimSpace(*p.Label)
		if label == "" {
			return Task{}, validationError("label", "cannot be blank")
		}
		t.Label = label
	}
	applyPtr(p.Status, &t.Status)
	p.AssignedTo.applyTo(&t.AssignedTo)
	p.DueAt.applyTo(&t.DueAt)
	p.CompletedAt.applyTo(&t.CompletedAt)
	p.Instructions.applyTo(&t.Instructions)

	if !t.Status.Valid() {
		return Task{}, validationError("status", "is not a known task status: "+string(t.Status))
	}
	return t, nil
}

// NoteInput carries a new note. CreatedBy falls back to the acting user, then
// the case owner.
type NoteInput struct {
	Type       NoteType
	Visibility Visibility
	Body       string
	NextSteps  *string
	Pinned     bool
	CreatedBy  *string
}

func (in NoteInput) build(caseID string) (Note, error) {
	n := Note{
		CaseID:     caseID,
		Type:       in.Type,
		Visibility: in.Visibility,
		Body:       strings.TrimSpace(in.Body),
		NextSteps:  in.NextSteps,
		Pinned:     in.Pinned,
	}
	if n.Type == "" {
		n.Type = NoteUpdate
	}
	if n.Visibility == "" {
		n.Visibility = VisibilityInternal
	}
	if n.Body == "" {
		return Note{}, validationError("body", "is required")
	}
	if err := validateNoteEnums(n); err != nil {
		return Note{}, err
	}
	return n, nil
}

func validateNoteEnums(n Note) error {
	if !n.Type.Valid() {
		return validationError("type", "is not a known note type: "+string(n.Type))
	}
	if !n.Visibility.Valid() {
		return validationError("visibility", "is not a known visibility: "+string(n.Visibility))
	}
	return nil
}

type NotePatch struct {
	Type       *NoteType
	Visibility *Visibility
	Body       *string
	NextSteps  Nullable[string]
	Pinned     *bool
}

func (p NotePatch) apply(n Note) (Note, error) {
	applyPtr(p.Type, &n.Type)
	applyPtr(p.Visibility, &n.Visibility)
	if p.Body != nil {
		body := strings.TrimSpace(*p.Body)
		if body == "" {
			return Note{}, validationError("body", "cannot be blank")
		}
		n.Body = body
	}
	p.NextSteps.applyTo(&n.NextSteps)
	applyPtr(p.Pinned, &n.Pinned)

	if err := validateNoteEnums(n); err != nil {
		return Note{}, err
	}
	return n, nil
}

// EvidenceInput carries a new evidence item. UploadedBy falls back to the
// acting user, then the case owner.
type EvidenceInput struct {
	Label        string
	FileURL      string
	FileType     *string
	ThumbnailURL *string
	Notes        *string
	UploadedBy   *string
}

func (in EvidenceInput) build(caseID string) (Evidence, error) {
	e := Evidence{
		CaseID:       caseID,
		Label:        strings.TrimSpace(in.Label),
		FileURL:      strings.TrimSpace(in.FileURL),
		FileType:     in.FileType,
		ThumbnailURL: in.ThumbnailURL,
		Notes:        in.Notes,
	}
	if e.Label == "" {
		return Evidence{}, validationError("label", "is required")
	}
	if e.FileURL == "" {
		return Evidence{}, validationError("fileUrl", "is required")
	}
	return e, nil
}

type EvidencePatch struct {
	Label        *string
	FileURL      *string
	FileType     Nullable[string]
	ThumbnailURL Nullable[string]
	Notes        Nullable[string]
}

func (p EvidencePatch) apply(e Evidence) (Evidence, error) {
	if p.Label != nil {
		label := strings.TrimSpace(*p.Label)
		if label == "" {
			return Evidence{}, validationError("label", "cannot be blank")
		}
		e.Label = label
	}
	if p.FileURL != nil {
		url := strings.TrimSpace(*p.FileURL)
		if url == "" {
			return Evidence{}, validationError("fileUrl", "cannot be blank")
		}
		e.FileURL = url
	}
	p.FileType.applyTo(&e.FileType)
	p.ThumbnailURL.applyTo(&e.ThumbnailURL)
	p.Notes.applyTo(&e.Notes)
	return e, nil
}

// authorOf picks the payload identity, then the actor, then the owner.
func authorOf(payload *string, actorID, ownerID string) *string {
	if payload != nil {
		if v := strings.TrimSpace(*payload); v != "" {
			return &v
		}
	}
	if actorID != "" {
		return &actorID
	}
	return &ownerID
}
