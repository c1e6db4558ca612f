package dispute

import "time"

// CaseStatus is the lifecycle position of a dispute case.
type CaseStatus string

const (
	StatusDraft            CaseStatus = "draft"
	StatusOpen             CaseStatus = "open"
	StatusUnderReview      CaseStatus = "under_review"
	StatusAwaitingCustomer CaseStatus = "awaiting_customer"
	StatusResolved         CaseStatus = "resolved"
	StatusClosed           CaseStatus = "closed"
)

// CaseStatuses is the fixed vocabulary, in workflow order.
var CaseStatuses = []CaseStatus{
	StatusDraft,
	StatusOpen,
	StatusUnderReview,
	StatusAwaitingCustomer,
	StatusResolved,
	StatusClosed,
}

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusOpen, StatusUnderReview, StatusAwaitingCustomer, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether due-date tracking has stopped for the status.
func (s CaseStatus) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

type Category string

const (
	CategoryBilling        Category = "billing"
	CategoryServiceQuality Category = "service_quality"
	CategoryDamage         Category = "damage"
	CategoryRefund         Category = "refund"
	CategoryCompliance     Category = "compliance"
	CategoryOther          Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryServiceQuality, CategoryDamage, CategoryRefund, CategoryCompliance, CategoryOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Active reports whether work on the task is still outstanding.
func (s TaskStatus) Active() bool {
	return s == TaskPending || s == TaskInProgress
}

type NoteType string

const (
	NoteUpdate     NoteType = "update"
	NoteCall       NoteType = "call"
	NoteEmail      NoteType = "email"
	NoteDecision   NoteType = "decision"
	NoteEscalation NoteType = "escalation"
)

func (t NoteType) Valid() bool {
	switch t {
	case NoteUpdate, NoteCall, NoteEmail, NoteDecision, NoteEscalation:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityCustomer Visibility = "customer"
	VisibilityShared   Visibility = "shared"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityInternal, VisibilityCustomer, VisibilityShared:
		return true
	}
	return false
}

// Case mirrors the dispute_cases table. Tasks, Notes and Evidence are only
// populated by reads that attach children.
type Case struct {
	ID                string
	OwnerID           string
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
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Tasks    []Task
	Notes    []Note
	Evidence []Evidence
}

// Task mirrors the dispute_tasks table.
type Task struct {
	ID           string
	CaseID       string
	Label        string
	Status       TaskStatus
	AssignedTo   *string
	DueAt        *time.Time
	CompletedAt  *time.Time
	Instructions *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Note mirrors the dispute_notes table.
type Note struct {
	ID         string
	CaseID     string
	Type       NoteType
	Visibility Visibility
	Body       string
	NextSteps  *string
	Pinned     bool
	CreatedBy  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Evidence mirrors the dispute_evidence table.
type Evidence struct {
	ID           string
	CaseID       string
	Label        string
	FileURL      string
	FileType     *string
	ThumbnailURL *string
	Notes        *string
	UploadedBy   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	defaultCategory = CategoryBilling
	defaultStatus   = StatusDraft
	defaultSeverity = SeverityMedium
	defaultCurrency = "GBP"
)
