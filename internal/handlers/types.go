package handlers

import (
	"net/http"
	"time"

	"github.com/serroba/bookmarks-go/internal/bookmark"
)

// Item is a bookmark as exposed over HTTP.
type Item struct {
	ID        string    `doc:"Bookmark id"                 example:"0b8f6a4e-2c1d-4f7e-9a55-3f1c2d9e8b71" json:"id"`
	UserID    string    `doc:"Owner user id"               json:"userId"`
	URL       string    `doc:"Normalized bookmarked URL"   example:"https://example.com/article"          json:"url"`
	Title     string    `doc:"Optional title"              json:"title,omitempty"`
	CreatedAt time.Time `doc:"Creation time (RFC 3339)"    json:"createdAt"`
}

func toItem(b bookmark.Bookmark) Item {
	return Item(b)
}

func toItems(bs []bookmark.Bookmark) []Item {
	items := make([]Item, 0, len(bs))
	for _, b := range bs {
		items = append(items, toItem(b))
	}

	return items
}

// CreateItemRequest is the request body for saving a bookmark.
type CreateItemRequest struct {
	Body struct {
		URL   string `doc:"Absolute http(s) URL to save"  example:"https://example.com/article" json:"url"             required:"false"`
		Title string `doc:"Optional title, at most 200 characters" example:"A good read"        json:"title,omitempty"`
	}
}

// ItemResponse is the response for a created bookmark.
type ItemResponse struct {
	Body Item
}

// ItemListResponse is the response for bookmark lists.
type ItemListResponse struct {
	Body []Item
}

// LoginRequest is the request body for starting a session.
type LoginRequest struct {
	Body struct {
		Email string `doc:"Email address identifying the user" example:"ada@example.com" json:"email"`
		Name  string `doc:"Optional display name"              example:"Ada"             json:"name,omitempty"`
	}
}

// LoginResponse carries the session token as a cookie and in the body.
type LoginResponse struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      struct {
		UserID    string    `doc:"Stable user id"                 json:"userId"`
		Email     string    `doc:"Normalized email"               json:"email"`
		Token     string    `doc:"Bearer token for the API"       json:"token"`
		ExpiresAt time.Time `doc:"Token expiry (RFC 3339)"        json:"expiresAt"`
	}
}
