package domain

// Role tags the kind of account behind a Principal.
type Role string

const (
	RoleAuthor   Role = "author"
	RoleBorrower Role = "borrower"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAuthor || r == RoleBorrower
}

// Principal is the authenticated caller, resolved once per request and
// passed explicitly to every service operation.
type Principal struct {
	Role     Role   `json:"role"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// IsBorrower reports whether p acts as a borrower.
func (p Principal) IsBorrower() bool { return p.Role == RoleBorrower }

// IsAuthor reports whether p acts as an author.
func (p Principal) IsAuthor() bool { return p.Role == RoleAuthor }
