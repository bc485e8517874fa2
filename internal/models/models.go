package models

import (
	"fmt"
	"strings"
	"time"

	"betclever/internal/status"
)

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionUser is the session-safe projection of an Account.
type SessionUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

func (a Account) SessionUser() SessionUser {
	return SessionUser{ID: a.ID, Email: a.Email, IsAdmin: a.IsAdmin}
}

type Session struct {
	ID            string      `json:"id"`
	TokenHash     string      `json:"token_hash"`
	User          SessionUser `json:"user"`
	IPHint        string      `json:"ip_hint,omitempty"`
	UserAgentHash string      `json:"user_agent_hash,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
	IdleExpiresAt time.Time   `json:"idle_expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	LastSeenAt    time.Time   `json:"last_seen_at"`
}

type Profile struct {
	FirstName     string               `json:"first_name"`
	LastName      string               `json:"last_name"`
	Email         string               `json:"email"`
	Phone         string               `json:"phone"`
	BirthDate     string               `json:"birth_date"`
	Street        string               `json:"street"`
	HouseNumber   string               `json:"house_number"`
	ZipCode       string               `json:"zip_code"`
	City          string               `json:"city"`
	IsSubmitted   bool                 `json:"is_submitted"`
	Status        status.ReviewStatus  `json:"status,omitempty"`
	ProjectStatus status.ProjectStatus `json:"project_status,omitempty"`
}

// Editable reports whether the owner may still change form fields and uploads.
func (p Profile) Editable() bool {
	return !p.IsSubmitted || p.Status == status.ReviewRejected
}

type Document struct {
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadDate time.Time `json:"upload_date"`
	// Content is an inline data URL or a content store reference.
	Content string `json:"content"`
}

type Bucket string

const (
	BucketIdentity Bucket = "identity"
	BucketCard     Bucket = "card"
	BucketBank     Bucket = "bank"
)

var Buckets = []Bucket{BucketIdentity, BucketCard, BucketBank}

func ParseBucket(s string) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity", "id", "iddocuments":
		return BucketIdentity, nil
	case "card", "carddocuments":
		return BucketCard, nil
	case "bank", "bankdocuments":
		return BucketBank, nil
	}
	return "", fmt.Errorf("unknown document bucket %q", s)
}

type DocumentSet struct {
	Identity []Document `json:"identity"`
	Card     []Document `json:"card"`
	Bank     []Document `json:"bank"`
}

// Bucket returns a pointer to the named list, or nil for an unknown bucket.
func (d *DocumentSet) Bucket(b Bucket) *[]Document {
	switch b {
	case BucketIdentity:
		return &d.Identity
	case BucketCard:
		return &d.Card
	case BucketBank:
		return &d.Bank
	}
	return nil
}

// Complete reports whether every bucket holds at least one document.
func (d DocumentSet) Complete() bool {
	return len(d.Identity) > 0 && len(d.Card) > 0 && len(d.Bank) > 0
}

func (d DocumentSet) All() []Document {
	out := make([]Document, 0, len(d.Identity)+len(d.Card)+len(d.Bank))
	out = append(out, d.Identity...)
	out = append(out, d.Card...)
	return append(out, d.Bank...)
}

// DocumentMeta is a Document without its content, for listings.
type DocumentMeta struct {
	Index      int       `json:"index"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadDate time.Time `json:"upload_date"`
}

func (d DocumentSet) Meta() map[Bucket][]DocumentMeta {
	out := make(map[Bucket][]DocumentMeta, len(Buckets))
	for _, b := range Buckets {
		docs := *d.Bucket(b)
		metas := make([]DocumentMeta, 0, len(docs))
		for i, doc := range docs {
			metas = append(metas, DocumentMeta{Index: i, FileName: doc.FileName, FileType: doc.FileType, FileSize: doc.FileSize, UploadDate: doc.UploadDate})
		}
		out[b] = metas
	}
	return out
}
