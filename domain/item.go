package domain

import "time"

// Item is a marketplace listing a conversation may reference.
// Dangling references are tolerated: a message pointing at a deleted item
// simply renders without the item snippet.
type Item struct {
	ID        string
	Title     string
	SellerID  string
	CreatedAt time.Time
}
