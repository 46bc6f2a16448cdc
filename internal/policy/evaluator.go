package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/approval"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	"github.com/charlesng35/accessdesk/internal/training"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// Decision is the kind of outcome of an access request.
type Decision string

const (
	DecisionAutoGranted     Decision = "AUTO_GRANTED"
	DecisionPendingApproval Decision = "PENDING_APPROVAL"
	DecisionDenied          Decision = "DENIED"
)

// ReasonCode explains a denial.
type ReasonCode string

const (
	ReasonNoPolicy           ReasonCode = "NO_POLICY"
	ReasonUserNotFound       ReasonCode = "USER_NOT_FOUND"
	ReasonConditionsNotMet   ReasonCode = "CONDITIONS_NOT_MET"
	ReasonTrainingIncomplete ReasonCode = "TRAINING_INCOMPLETE"
	ReasonTrainingExpired    ReasonCode = "TRAINING_EXPIRED"
)

// Remediation is a step the requester can take to turn a denial around.
type Remediation struct {
	Action     string `json:"action"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	TrainingID string `json:"training_id,omitempty"`
}

// Request asks for access to one resource.
type Request struct {
	Email        string
	ResourceType string
	ResourceName string
	Reason       string
}

// Outcome is the result of RequestAccess. Denials are outcomes, not errors.
type Outcome struct {
	Decision       Decision            `json:"decision"`
	ResourceType   string              `json:"resource_type"`
	ResourceName   string              `json:"resource_name"`
	Grant          *models.AccessGrant `json:"grant,omitempty"`
	RequestID      string              `json:"request_id,omitempty"`
	ApproverEmail  string              `json:"approver_email,omitempty"`
	TicketID       string              `json:"ticket_id,omitempty"`
	TicketURL      string              `json:"ticket_url,omitempty"`
	Duplicate      bool                `json:"duplicate,omitempty"`
	ReasonCode     ReasonCode          `json:"reason_code,omitempty"`
	UnmetCondition string              `json:"unmet_condition,omitempty"`
	Message        string              `json:"message"`
	Remediation    []Remediation       `json:"remediation,omitempty"`
	AuditEventID   string              `json:"audit_event_id,omitempty"`
}

// Config tunes the evaluator.
type Config struct {
	// EnforceTraining denies requests whose training gate is not satisfied.
	EnforceTraining bool
	// AutoGrantAccessLevel is the level of grants issued without approval.
	AutoGrantAccessLevel string
}

// Evaluator decides access requests.
type Evaluator struct {
	catalog   *Catalog
	employees store.Reader[models.Employee]
	gate      *training.Gate
	workflow  *approval.Workflow
	issuer    *grants.Issuer
	recorder  *audit.Recorder
	cfg       Config
	log       *zap.Logger
}

// NewEvaluator wires an Evaluator.
func NewEvaluator(
	catalog *Catalog,
	employees store.Reader[models.Employee],
	gate *training.Gate,
	workflow *approval.Workflow,
	issuer *grants.Issuer,
	recorder *audit.Recorder,
	cfg Config,
) (*Evaluator, error) {
	if catalog == nil || employees == nil || workflow == nil || issuer == nil {
		return nil, errors.New("policy evaluator: catalog, employees, workflow and issuer are required")
	}
	if cfg.EnforceTraining && gate == nil {
		return nil, errors.New("policy evaluator: training enforcement needs a training gate")
	}
	if cfg.AutoGrantAccessLevel == "" {
		cfg.AutoGrantAccessLevel = "read_only"
	}
	return &Evaluator{
		catalog:   catalog,
		employees: employees,
		gate:      gate,
		workflow:  workflow,
		issuer:    issuer,
		recorder:  recorder,
		cfg:       cfg,
		log:       logger.WithModule("policy"),
	}, nil
}

// Catalog exposes the compiled policies.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// RequestAccess evaluates req against its policy. Every returned outcome has
// been audited exactly once. An error means nothing was decided and nothing
// was audited.
func (e *Evaluator) RequestAccess(ctx context.Context, req Request) (Outcome, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.ResourceType = strings.TrimSpace(req.ResourceType)
	req.ResourceName = strings.TrimSpace(req.ResourceName)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Email == "" || req.ResourceType == "" || req.ResourceName == "" {
		return Outcome{}, apperrors.NewBadRequest("email, resource type and resource name are required")
	}

	out := Outcome{ResourceType: req.ResourceType, ResourceName: req.ResourceName}

	policy, ok := e.catalog.Lookup(req.ResourceType, req.ResourceName)
	if !ok {
		out.deny(ReasonNoPolicy, fmt.Sprintf("No access policy is defined for %s:%s.", req.ResourceType, req.ResourceName))
		return e.finish(ctx, req, out), nil
	}

	employee, err := e.employees.First(ctx, store.Where("email", req.Email))
	if errors.Is(err, store.ErrNotFound) {
		out.deny(ReasonUserNotFound, fmt.Sprintf("No employee record exists for %s.", req.Email))
		return e.finish(ctx, req, out), nil
	}
	if err != nil {
		return Outcome{}, store.Classify(fmt.Errorf("request access: load employee: %w", err))
	}

	if e.cfg.EnforceTraining {
		gate, err := e.gate.Evaluate(ctx, req.Email, req.ResourceType, req.ResourceName)
		if err != nil {
			return Outcome{}, err
		}
		if !gate.Satisfied {
			out.denyTraining(gate)
			return e.finish(ctx, req, out), nil
		}
	}

	if policy.RequiresApproval {
		return e.requestApproval(ctx, req, *employee, policy, out)
	}

	if ok, unmet := policy.Condition.Eval(employee); !ok {
		out.deny(ReasonConditionsNotMet, fmt.Sprintf("You do not meet the auto-approval condition %q for %s:%s.", unmet.String(), req.ResourceType, req.ResourceName))
		out.UnmetCondition = unmet.String()
		if employee.ManagerEmail != "" {
			out.Remediation = []Remediation{{
				Action: "contact_manager",
				Title:  fmt.Sprintf("Ask %s to review your access needs", employee.ManagerEmail),
			}}
		}
		return e.finish(ctx, req, out), nil
	}

	grant, err := e.issuer.Issue(ctx, grants.IssueInput{
		UserEmail:    req.Email,
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		AccessLevel:  e.cfg.AutoGrantAccessLevel,
		GrantedBy:    models.GrantedByAuto,
	})
	if err != nil {
		return Outcome{}, err
	}
	e.issuer.Provision(ctx, grant)

	out.Decision = DecisionAutoGranted
	out.Grant = &grant
	out.Message = fmt.Sprintf("Access to %s:%s granted (%s).", req.ResourceType, req.ResourceName, grant.AccessLevel)
	return e.finish(ctx, req, out), nil
}

func (e *Evaluator) requestApproval(ctx context.Context, req Request, employee models.Employee, policy Policy, out Outcome) (Outcome, error) {
	existing, err := e.workflow.HasPendingFor(ctx, req.Email, req.ResourceType, req.ResourceName)
	if err != nil {
		return Outcome{}, err
	}

	var pending models.ApprovalRequest
	if existing != nil {
		pending = *existing
		out.Duplicate = true
	} else {
		res, err := e.workflow.Submit(ctx, approval.SubmitInput{
			Requester: employee,
			Policy:    policy.AccessPolicy,
			Reason:    req.Reason,
		})
		if err != nil {
			return Outcome{}, err
		}
		pending = res.Request
		out.Duplicate = res.Duplicate
	}

	out.Decision = DecisionPendingApproval
	out.RequestID = pending.RequestID
	out.ApproverEmail = pending.ApproverEmail
	if pending.TicketID != nil {
		out.TicketID = *pending.TicketID
	}
	if pending.TicketURL != nil {
		out.TicketURL = *pending.TicketURL
	}
	if out.Duplicate {
		out.Message = fmt.Sprintf("Request %s for %s:%s is already waiting on %s.", pending.RequestID, req.ResourceType, req.ResourceName, pending.ApproverEmail)
	} else {
		out.Message = fmt.Sprintf("Request %s for %s:%s was sent to %s for approval.", pending.RequestID, req.ResourceType, req.ResourceName, pending.ApproverEmail)
	}
	return e.finish(ctx, req, out), nil
}

func (o *Outcome) deny(code ReasonCode, message string) {
	o.Decision = DecisionDenied
	o.ReasonCode = code
	o.Message = message
}

func (o *Outcome) denyTraining(gate training.Result) {
	outstanding := gate.Outstanding()
	names := make([]string, len(outstanding))
	for i, item := range outstanding {
		names[i] = item.Name
		action, verb := "complete_training", "Complete"
		if item.State == training.StateExpired {
			action, verb = "renew_training", "Renew"
		}
		o.Remediation = append(o.Remediation, Remediation{
			Action:     action,
			Title:      verb + " " + item.Name,
			URL:        item.URL,
			TrainingID: item.TrainingID,
		})
	}

	if gate.OnlyExpired() {
		o.deny(ReasonTrainingExpired, fmt.Sprintf("Your training for %s:%s has expired: %s.", o.ResourceType, o.ResourceName, strings.Join(names, ", ")))
		return
	}
	o.deny(ReasonTrainingIncomplete, fmt.Sprintf("Required training for %s:%s is outstanding: %s.", o.ResourceType, o.ResourceName, strings.Join(names, ", ")))
}

// finish records the single audit event of a decision.
func (e *Evaluator) finish(ctx context.Context, req Request, out Outcome) Outcome {
	ev := audit.Event{
		UserEmail:    req.Email,
		Action:       "request_access",
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		Description:  out.Message,
		Metadata:     map[string]any{"decision": string(out.Decision)},
	}
	if req.Reason != "" {
		ev.Metadata["reason"] = req.Reason
	}

	switch out.Decision {
	case DecisionAutoGranted:
		ev.Type = audit.EventAccessAutoGranted
		ev.Result = audit.ResultSuccess
		ev.Metadata["grant_id"] = out.Grant.ID
		ev.Metadata["access_level"] = out.Grant.AccessLevel
	case DecisionPendingApproval:
		ev.Type = audit.EventAccessApprovalRequest
		if out.Duplicate {
			ev.Type = audit.EventAccessRequestDuplicate
		}
		ev.Result = audit.ResultPending
		ev.Metadata["request_id"] = out.RequestID
		ev.Metadata["approver_email"] = out.ApproverEmail
		if out.TicketID != "" {
			ev.Metadata["ticket_id"] = out.TicketID
		}
	default:
		ev.Type = audit.EventAccessDenied
		ev.Result = audit.ResultFailure
		ev.Metadata["reason_code"] = string(out.ReasonCode)
		if out.UnmetCondition != "" {
			ev.Metadata["unmet_condition"] = out.UnmetCondition
		}
	}

	out.AuditEventID = e.recorder.Safe(ctx, ev)
	metrics.AccessDecisions.WithLabelValues(string(out.Decision), req.ResourceType).Inc()
	e.log.Info("access request evaluated",
		zap.String("user_email", req.Email),
		zap.String("resource", req.ResourceType+":"+req.ResourceName),
		zap.String("decision", string(out.Decision)),
		zap.String("reason_code", string(out.ReasonCode)),
	)
	return out
}
