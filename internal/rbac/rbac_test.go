package rbac

import "testing"

func TestCanExecute(t *testing.T) {
	tests := []struct {
		role, op string
		want     bool
	}{
		{RoleAgent, "write_post", true},
		{RoleAgent, "increment_like", true},
		{RoleAgent, "register_wallet", true},
		{RoleAgent, "transfer_token", false},
		{RoleOperator, "transfer_token", true},
		{RoleOperator, "drop_tables", false},
		{"guest", "list_content", false},
	}
	for _, tt := range tests {
		if got := CanExecute(tt.role, tt.op); got != tt.want {
			t.Errorf("CanExecute(%q, %q) = %v, want %v", tt.role, tt.op, got, tt.want)
		}
	}
}

func TestFinancialOnlyForOperator(t *testing.T) {
	for role, perms := range RolePermissions {
		for _, p := range perms {
			if IsFinancialOperation(p) && role != RoleOperator {
				t.Errorf("role %q holds financial permission %q", role, p)
			}
		}
	}
}
