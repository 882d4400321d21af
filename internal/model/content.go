package model

import (
	"fmt"
	"time"
)

// Kind selects which content table an operation works on. Maps and blocks
// have exactly the same shape, so every layer takes a Kind instead of having
// two copies of the same code.
type Kind string

const (
	KindMap   Kind = "map"
	KindBlock Kind = "block"
)

// Kinds lists every supported kind, in route registration order.
var Kinds = []Kind{KindMap, KindBlock}

// Table is the SQL table holding items of this kind. Only the two fixed
// names can come out of here, which is what makes it safe to format into
// a query string.
func (k Kind) Table() string {
	switch k {
	case KindMap:
		return "maps"
	case KindBlock:
		return "blocks"
	}
	panic(fmt.Sprintf("model: unknown content kind %q", string(k)))
}

// Label is the capitalised name used in client-facing messages ("Block not found").
func (k Kind) Label() string {
	switch k {
	case KindMap:
		return "Map"
	case KindBlock:
		return "Block"
	}
	return string(k)
}

// Item is a user-submitted map or block.
type Item struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	ViewLink  string         `json:"viewLink,omitempty"`
	Image     string         `json:"image,omitempty"`
	FileName  string         `json:"fileName,omitempty"` // object storage reference
	FileURL   string         `json:"fileUrl,omitempty"`
	IxID      string         `json:"ixId,omitempty"` // in-game identifier
	Tags      []string       `json:"tags"`
	Votes     int64          `json:"votes"`
	AuthorID  string         `json:"authorId"`
	Author    *AuthorSummary `json:"author,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AuthorSummary is the slice of the owning user joined into item reads.
type AuthorSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar"`
	DisplayName string `json:"displayName"`
}

// SearchFilter narrows a search. Empty fields are ignored. An item matches
// Tags only if it carries every one of them.
type SearchFilter struct {
	Title  string
	Author string
	Tags   []string
}
