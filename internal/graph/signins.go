package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ListSignIns fetches interactive sign-in events created inside [from, to).
// Events missing an identity or timestamp are dropped here so the aggregator
// only ever sees usable pairs.
func (c *Client) ListSignIns(ctx context.Context, from, to time.Time) ([]SignInEvent, error) {
	filter := fmt.Sprintf("createdDateTime ge %s and createdDateTime lt %s",
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	listURL := fmt.Sprintf("%s/auditLogs/signIns?$filter=%s&$top=1000",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(filter))

	var events []SignInEvent
	err := c.listPages(ctx, listURL, func(value json.RawMessage) error {
		var raw []struct {
			UserPrincipalName string    `json:"userPrincipalName"`
			CreatedDateTime   time.Time `json:"createdDateTime"`
		}
		if err := json.Unmarshal(value, &raw); err != nil {
			return fmt.Errorf("invalid sign-in page: %w", err)
		}
		for _, r := range raw {
			upn := strings.TrimSpace(r.UserPrincipalName)
			if upn == "" || r.CreatedDateTime.IsZero() {
				continue
			}
			events = append(events, SignInEvent{
				UserPrincipalName: upn,
				CreatedAt:         r.CreatedDateTime,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
