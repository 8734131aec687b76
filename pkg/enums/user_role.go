package enums

// UserRole is carried in access tokens.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}
