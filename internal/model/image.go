package model

import "time"

// Image is the metadata record of one stored, normalized image.
type Image struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	ContentType string    `json:"mimetype"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// URL is derived from Path when the record is rendered; it is never stored.
	URL string `json:"url,omitempty"`
}

// Patch holds the fields an owner may change after upload.
// A nil field is left untouched.
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil
}
