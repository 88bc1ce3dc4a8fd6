// Package navigation serves the role-filtered application menu.
package navigation

import "github.com/hms/hms/internal/platform/auth"

// Item is one menu entry. An entry with no roles is visible to everyone.
type Item struct {
	Label string   `json:"label"`
	Path  string   `json:"path"`
	Icon  string   `json:"icon,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// visibleTo reports whether any of roles may see the item. Admin sees
// everything.
func (it Item) visibleTo(roles []string) bool {
	if len(it.Roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == auth.RoleAdmin {
			return true
		}
		for _, allowed := range it.Roles {
			if r == allowed {
				return true
			}
		}
	}
	return false
}

// Menu is an ordered list of entries.
type Menu []Item

// Default is the hospital menu.
var Default = Menu{
	{Label: "Dashboard", Path: "/dashboard", Icon: "home"},
	{Label: "Patients", Path: "/patients", Icon: "users",
		Roles: []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleEHR, auth.RoleCashier}},
	{Label: "Appointments", Path: "/appointments", Icon: "calendar",
		Roles: []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleEHR}},
	{Label: "Medical Records", Path: "/medical-records", Icon: "file-text",
		Roles: []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleEHR}},
	{Label: "Vital Signs", Path: "/vital-signs", Icon: "activity",
		Roles: []string{auth.RoleDoctor, auth.RoleNurse}},
	{Label: "Lab Worklist", Path: "/lab/worklist", Icon: "flask",
		Roles: []string{auth.RoleLabTech}},
	{Label: "Lab Results", Path: "/lab/results", Icon: "clipboard",
		Roles: []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleLabTech, auth.RoleEHR}},
	{Label: "Lab Inventory", Path: "/lab/inventory", Icon: "package",
		Roles: []string{auth.RoleLabTech}},
	{Label: "Prescriptions", Path: "/prescriptions", Icon: "pill",
		Roles: []string{auth.RoleDoctor, auth.RolePharmacist}},
	{Label: "Dispensing", Path: "/pharmacy/dispensing", Icon: "check-square",
		Roles: []string{auth.RolePharmacist}},
	{Label: "Drug Inventory", Path: "/pharmacy/inventory", Icon: "archive",
		Roles: []string{auth.RolePharmacist}},
	{Label: "Payments", Path: "/billing/payments", Icon: "credit-card",
		Roles: []string{auth.RoleCashier}},
	{Label: "HMO Claims", Path: "/billing/claims", Icon: "shield",
		Roles: []string{auth.RoleCashier, auth.RoleEHR}},
	{Label: "Pre-authorizations", Path: "/billing/preauthorizations", Icon: "key",
		Roles: []string{auth.RoleCashier, auth.RoleEHR, auth.RoleDoctor}},
	{Label: "Financial Reports", Path: "/reports/financial", Icon: "bar-chart",
		Roles: []string{auth.RoleCashier}},
	{Label: "Users", Path: "/admin/users", Icon: "user-cog", Roles: []string{auth.RoleAdmin}},
	{Label: "Audit Log", Path: "/admin/audit-log", Icon: "eye", Roles: []string{auth.RoleAdmin}},
	{Label: "Settings", Path: "/admin/settings", Icon: "settings", Roles: []string{auth.RoleAdmin}},
	{Label: "Profile", Path: "/profile", Icon: "user"},
}

// VisibleFor returns the entries a user holding role may see.
func (m Menu) VisibleFor(role string) Menu {
	return m.visible([]string{role})
}

func (m Menu) visible(roles []string) Menu {
	out := make(Menu, 0, len(m))
	for _, it := range m {
		if it.visibleTo(roles) {
			out = append(out, it)
		}
	}
	return out
}
