package catalog

import (
	"fmt"
	"strings"
	"time"
)

// StampLayout is the timestamp format used by the upstream catalog, both in
// dump files and in the mirror API responses.
const StampLayout = "2006-01-02 15:04:05"

// Family identifies one of the record families tracked by the catalog.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyNonFiction
	FamilyFiction
	FamilyArticle
)

func (f Family) String() string {
	switch f {
	case FamilyNonFiction:
		return "nonfiction"
	case FamilyFiction:
		return "fiction"
	case FamilyArticle:
		return "articles"
	default:
		return "unknown"
	}
}

// Families lists the known record families in a stable order.
func Families() []Family {
	return []Family{FamilyNonFiction, FamilyFiction, FamilyArticle}
}

// ParseFamily resolves a user-supplied family name.
func ParseFamily(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nonfiction", "non-fiction":
		return FamilyNonFiction, nil
	case "fiction":
		return FamilyFiction, nil
	case "articles", "article", "scimag":
		return FamilyArticle, nil
	default:
		return FamilyUnknown, fmt.Errorf("unknown record family %q", name)
	}
}

// Object is the common shape shared by all record families. Key returns the
// identifier assigned by the upstream catalog, unique within the family.
// Stamp returns the change-detection value used to decide insert vs update:
// last-modified time for books, added time for articles.
type Object interface {
	Key() int64
	Stamp() time.Time
	Family() Family
}

// Book is a non-fiction catalog record.
type Book struct {
	ID           int64 // local surrogate id, assigned by storage
	RemoteID     int64
	Title        string
	Authors      string
	Series       string
	Publisher    string
	Year         string
	Language     string
	Format       string
	MD5          string
	FileSize     int64
	LastModified time.Time
}

func (b *Book) Key() int64       { return b.RemoteID }
func (b *Book) Stamp() time.Time { return b.LastModified }
func (b *Book) Family() Family   { return FamilyNonFiction }

// FictionBook is a fiction catalog record.
type FictionBook struct {
	ID           int64
	RemoteID     int64
	Title        string
	Authors      string
	Series       string
	Language     string
	Format       string
	MD5          string
	FileSize     int64
	LastModified time.Time
}

func (b *FictionBook) Key() int64       { return b.RemoteID }
func (b *FictionBook) Stamp() time.Time { return b.LastModified }
func (b *FictionBook) Family() Family   { return FamilyFiction }

// Article is a journal article record.
type Article struct {
	ID       int64
	RemoteID int64
	Title    string
	Authors  string
	DOI      string
	Journal  string
	Language string
	Format   string
	MD5      string
	FileSize int64
	AddedAt  time.Time
}

func (a *Article) Key() int64       { return a.RemoteID }
func (a *Article) Stamp() time.Time { return a.AddedAt }
func (a *Article) Family() Family   { return FamilyArticle }
