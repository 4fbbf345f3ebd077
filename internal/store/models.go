package store

import "time"

type User struct {
	ID           int64
	Login        string
	Email        string
	PasswordHash string
	RoleID       int64
	RoleName     string
}

type Role struct {
	ID   int64
	Name string
}

type Project struct {
	ID          int64
	Name        string
	Subtitle    string
	Description string
}

type Priority struct {
	ID   int64
	Name string
}

type Task struct {
	ID          int64
	Name        string
	Description string
	Done        bool
	Date        time.Time
	PriorityID  int64
	ProjectID   int64
	// AssigneeID is nullable: a task may be unassigned.
	AssigneeID *int64
	// AuthorID is set at creation and never updated.
	AuthorID int64
}

type Message struct {
	ID        int64
	Content   string
	Date      time.Time
	ProjectID int64
	UserID    int64
}

type Note struct {
	ID        int64
	Title     string
	Content   string
	ProjectID int64
	UserID    int64
}

type File struct {
	ID          int64
	Name        string
	Description string
	// StoredName is the object name in blob storage, persisted only after
	// the blob write succeeded.
	StoredName string
	ProjectID  int64
	UserID     int64
}
