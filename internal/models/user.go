package models

import "slices"

// User roles recognised by the platform.
const (
	RoleAdmin               = "Administrator"
	RoleExecutiveBoard      = "Executive Board"
	RoleTechnicalManager    = "Technical Manager"
	RoleConstructionManager = "Construction Manager"
	RoleResourceManager     = "Resource Manager"
	RoleQualityAssurance    = "Quality Assurance"
)

// Roles lists every assignable role.
var Roles = []string{
	RoleAdmin,
	RoleExecutiveBoard,
	RoleTechnicalManager,
	RoleConstructionManager,
	RoleResourceManager,
	RoleQualityAssurance,
}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}

// User is an account able to sign in and edit construction plans.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	FullName string `gorm:"size:200" json:"full_name"`
	Role     string `gorm:"size:50;index" json:"role"`
	IsVerify bool   `gorm:"index;default:false" json:"is_verify"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
