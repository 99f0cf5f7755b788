package identity

// User is a registered customer or administrator.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FinCode   string `json:"finCode"`
	IsAdmin   bool   `json:"isAdmin"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Credential is the stored secret of a user, keyed by user id.
type Credential struct {
	PasswordHash string `json:"passwordHash"`
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	FirstName string `json:"firstName" validate:"name"`
	LastName  string `json:"lastName" validate:"name"`
	FinCode   string `json:"finCode" validate:"fincode"`
	Password  string `json:"password" validate:"password"`
}

// ProfileUpdate changes the fields that are set.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitnil,name"`
	LastName  *string `json:"lastName,omitempty" validate:"omitnil,name"`
	IsAdmin   *bool   `json:"isAdmin,omitempty"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Search        string
	ExcludeAdmins bool
}

type finIndex struct {
	UserID string `json:"userId"`
}
