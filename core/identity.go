package core

// Identity identifies the author of a commit.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (i Identity) String() string {
	if i.Email == "" {
		return i.Name
	}
	return i.Name + " <" + i.Email + ">"
}
