package permissions

// Gateway permission identifiers.
const (
	AccessView       = "access.view"
	AccessRequest    = "access.request"
	AccessRevoke     = "access.revoke"
	TrainingView     = "training.view"
	TrainingRecord   = "training.record"
	ApprovalView     = "approval.view"
	ApprovalResolve  = "approval.resolve"
	NetworkWhitelist = "network.whitelist"
	APIKeyIssue      = "apikey.issue"
	AuditView        = "audit.view"
	AuditExport      = "audit.export"
	NotificationView = "notification.view"
)

// Seeded role identifiers.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleSecurity = "security"
	RoleAdmin    = "admin"
)

func init() {
	perms := []*Permission{
		{ID: AccessView, Module: "access", Description: "View own grants and request history"},
		{ID: AccessRequest, Module: "access", DependsOn: []string{AccessView}, Description: "Request access to resources"},
		{ID: AccessRevoke, Module: "access", DependsOn: []string{AccessView}, Description: "Revoke active grants"},
		{ID: TrainingView, Module: "training", Description: "View training status"},
		{ID: TrainingRecord, Module: "training", DependsOn: []string{TrainingView}, Description: "Record completed training"},
		{ID: ApprovalView, Module: "approval", Description: "View pending approvals addressed to you"},
		{ID: ApprovalResolve, Module: "approval", DependsOn: []string{ApprovalView}, Description: "Approve or reject access requests"},
		{ID: NetworkWhitelist, Module: "network", DependsOn: []string{AccessView}, Description: "Whitelist an IP address"},
		{ID: APIKeyIssue, Module: "access", DependsOn: []string{AccessRequest}, Description: "Issue API keys for granted services"},
		{ID: AuditView, Module: "audit", Description: "Query the audit trail"},
		{ID: AuditExport, Module: "audit", DependsOn: []string{AuditView}, Description: "Export the audit trail"},
		{ID: NotificationView, Module: "notifications", Description: "Read in-app notifications"},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}

// RoleDefinition is a seeded role and the permissions it carries.
type RoleDefinition struct {
	ID          string
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles returns the system roles. Admin receives every registered permission.
func DefaultRoles() []RoleDefinition {
	employee := []string{AccessView, AccessRequest, TrainingView, TrainingRecord, NetworkWhitelist, APIKeyIssue, NotificationView}
	manager := append(append([]string(nil), employee...), ApprovalView, ApprovalResolve)
	security := append(append([]string(nil), manager...), AuditView, AuditExport, AccessRevoke)

	return []RoleDefinition{
		{ID: RoleEmployee, Name: "Employee", Description: "Self-service access requests", Permissions: employee},
		{ID: RoleManager, Name: "Manager", Description: "Approves requests from direct reports", Permissions: manager},
		{ID: RoleSecurity, Name: "Security", Description: "Audits access decisions", Permissions: security},
		{ID: RoleAdmin, Name: "Administrator", Description: "Full gateway access", Permissions: IDs()},
	}
}
