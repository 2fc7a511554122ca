package models

import "gorm.io/gorm"

// User is an account that owns assets and tasks. Authentication state (the
// bearer token) is never stored; only the bcrypt hash of the password is.
type User struct {
	BaseModel

	// Username is the unique login name.
	Username string `gorm:"not null;uniqueIndex;size:150" json:"username"`

	// HashedPassword is the bcrypt hash of the user's password. Never
	// serialized to clients.
	HashedPassword string `gorm:"not null;size:255" json:"-" masq:"secret"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// Validate performs basic validation on the user.
func (u *User) Validate() error {
	if u.Username == "" {
		return ErrUsernameRequired
	}
	if u.HashedPassword == "" {
		return ErrPasswordRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the user and generates a ULID.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if err := u.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return u.Validate()
}
