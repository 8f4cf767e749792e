package model

import "time"

// Entry is a knowledge record owned by exactly one user.
type Entry struct {
	ID         string     `json:"id"         db:"id"`
	UserID     string     `json:"userId"     db:"user_id"`
	Title      string     `json:"title"      db:"title"`
	Content    string     `json:"content"    db:"content"`
	Links      []Link     `json:"links"`
	Videos     []Video    `json:"videos"`
	Categories []Category `json:"categories"`
	CreatedAt  time.Time  `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt"  db:"updated_at"`
}

// HasCategory reports whether categoryID is in the entry's category set.
func (e *Entry) HasCategory(categoryID string) bool {
	for _, c := range e.Categories {
		if c.ID == categoryID {
			return true
		}
	}
	return false
}

// Link lives and dies with its entry.
type Link struct {
	ID      string `json:"id"      db:"id"`
	EntryID string `json:"entryId" db:"entry_id"`
	Title   string `json:"title"   db:"title"`
	URL     string `json:"url"     db:"url"`
}

// Video references a YouTube video by its 11-character ID.
type Video struct {
	ID        string `json:"id"        db:"id"`
	EntryID   string `json:"entryId"   db:"entry_id"`
	Title     string `json:"title"     db:"title"`
	YouTubeID string `json:"youtubeId" db:"youtube_id"`
}

// EntryInput carries the caller-supplied fields of a create or update.
// Links and Videos replace the existing sub-collections wholesale.
type EntryInput struct {
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Links       []LinkInput  `json:"links"`
	Videos      []VideoInput `json:"videos"`
	CategoryIDs []string     `json:"categoryIds"`
}

type LinkInput struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// VideoInput.YouTubeID may be a bare ID or a full YouTube URL.
type VideoInput struct {
	Title     string `json:"title"`
	YouTubeID string `json:"youtubeId"`
}
