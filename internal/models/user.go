package models

// User is a registered account. HashedPassword never leaves the server.
type User struct {
	ID             int64  `json:"id" db:"id"`
	Email          string `json:"email" db:"email"`
	HashedPassword string `json:"-" db:"hashed_password"`
}

// UserRead is the public view of a User.
type UserRead struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (u *User) Read() UserRead {
	return UserRead{ID: u.ID, Email: u.Email}
}
