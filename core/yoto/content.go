package yoto

import (
	"context"
	"fmt"
	"net/url"
)

// Card is the metadata of one content card.
type Card struct {
	CardID      string `json:"cardId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

type cardResponse struct {
	Card Card `json:"card"`
}

type cardsResponse struct {
	Cards []Card `json:"cards"`
}

// Card fetches the metadata of one content card. Player status reports an
// active card ID only; this resolves it to a title for display.
func (c *Client) Card(ctx context.Context, cardID string) (*Card, error) {
	var resp cardResponse
	path := "/content/" + url.PathEscape(cardID)
	if err := c.doJSON(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch card %s: %w", cardID, err)
	}
	return &resp.Card, nil
}

// Cards lists the content cards in the account library.
func (c *Client) Cards(ctx context.Context) ([]Card, error) {
	var resp cardsResponse
	if err := c.doJSON(ctx, "GET", "/content/mine", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return resp.Cards, nil
}
