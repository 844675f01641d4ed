package rbac

// Role constants
const (
	RoleAgent    = "agent"
	RoleOperator = "operator"
)

// Permission constants
const (
	PermWriteContent   = "write_content"
	PermReadContent    = "read_content"
	PermLike           = "like"
	PermRegisterWallet = "register_wallet"
	PermTransfer       = "transfer"
	PermReadAudit      = "read_audit"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAgent: {
		PermWriteContent, PermReadContent, PermLike, PermRegisterWallet,
		// Agent CANNOT: PermTransfer
	},
	RoleOperator: {
		PermWriteContent, PermReadContent, PermLike, PermRegisterWallet,
		PermTransfer, PermReadAudit,
	},
}

// operationPermissions maps gateway function names to the permission they need.
var operationPermissions = map[string]string{
	"write_post":      PermWriteContent,
	"write_comment":   PermWriteContent,
	"list_content":    PermReadContent,
	"increment_like":  PermLike,
	"register_wallet": PermRegisterWallet,
	"transfer_token":  PermTransfer,
}

func IsKnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// PermissionFor returns the permission an operation requires.
func PermissionFor(operation string) (string, bool) {
	p, ok := operationPermissions[operation]
	return p, ok
}

// CanExecute reports whether role may run the named gateway operation.
func CanExecute(role, operation string) bool {
	p, ok := PermissionFor(operation)
	return ok && HasPermission(role, p)
}

// IsFinancialOperation checks if permission moves treasury funds (operator-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermTransfer
}
