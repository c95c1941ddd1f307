package models

// NoticeVariant distinguishes informational notices from failures
type NoticeVariant string

const (
	NoticeDefault     NoticeVariant = "default"
	NoticeDestructive NoticeVariant = "destructive"
)

// Notice represents a user-visible notification
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Variant     NoticeVariant `json:"variant"`
}

// Info builds a default notice
func Info(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: NoticeDefault}
}

// Failure builds a destructive notice
func Failure(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: NoticeDestructive}
}
