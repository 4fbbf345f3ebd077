package rbac

import "testing"

func TestHas(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		required Role
		want     bool
	}{
		{name: "user has user", role: RoleUser, required: RoleUser, want: true},
		{name: "user lacks admin", role: RoleUser, required: RoleAdmin, want: false},
		{name: "admin has admin", role: RoleAdmin, required: RoleAdmin, want: true},
		{name: "admin implies user", role: RoleAdmin, required: RoleUser, want: true},
		{name: "unknown role grants nothing", role: Role("ROLE_GHOST"), required: RoleUser, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Has(tc.role, tc.required); got != tc.want {
				t.Fatalf("Has(%q, %q) = %v, want %v", tc.role, tc.required, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("ROLE_ADMIN"); got != RoleAdmin {
		t.Fatalf("Normalize(ROLE_ADMIN) = %q", got)
	}
	if got := Normalize("banana"); got != RoleUser {
		t.Fatalf("Normalize(banana) = %q, want ROLE_USER", got)
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(RoleAdmin) {
		t.Fatal("expected RoleAdmin to be admin")
	}
	if IsAdmin(RoleUser) {
		t.Fatal("expected RoleUser not to be admin")
	}
}
