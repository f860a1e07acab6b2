package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// rawUser is the wire shape of a directory user. Graph sometimes carries the
// mail address only in otherMails; normalizeUser folds that duality into the
// canonical DirectoryUser so the rest of the pipeline never deals with it.
type rawUser struct {
	DisplayName       string   `json:"displayName"`
	UserPrincipalName string   `json:"userPrincipalName"`
	Mail              string   `json:"mail"`
	OtherMails        []string `json:"otherMails"`
	AccountEnabled    bool     `json:"accountEnabled"`
	AssignedLicenses  []struct {
		SKUID string `json:"skuId"`
	} `json:"assignedLicenses"`
}

func normalizeUser(r rawUser) schema.DirectoryUser {
	mail := strings.TrimSpace(r.Mail)
	if mail == "" && len(r.OtherMails) > 0 {
		mail = strings.TrimSpace(r.OtherMails[0])
	}

	skus := make([]string, 0, len(r.AssignedLicenses))
	for _, lic := range r.AssignedLicenses {
		if id := strings.TrimSpace(lic.SKUID); id != "" {
			skus = append(skus, id)
		}
	}

	return schema.DirectoryUser{
		DisplayName:       strings.TrimSpace(r.DisplayName),
		UserPrincipalName: strings.TrimSpace(r.UserPrincipalName),
		Mail:              mail,
		AccountEnabled:    r.AccountEnabled,
		AssignedSKUIDs:    skus,
	}
}

// ListLicensedUsers enumerates all directory users and returns the
// normalized subset that has at least one license assignment.
func (c *Client) ListLicensedUsers(ctx context.Context) ([]schema.DirectoryUser, error) {
	listURL := fmt.Sprintf(
		"%s/users?$select=displayName,userPrincipalName,mail,otherMails,accountEnabled,assignedLicenses&$top=999",
		strings.TrimRight(c.cfg.BaseURL, "/"))

	var users []schema.DirectoryUser
	err := c.listPages(ctx, listURL, func(value json.RawMessage) error {
		var raw []rawUser
		if err := json.Unmarshal(value, &raw); err != nil {
			return fmt.Errorf("invalid user page: %w", err)
		}
		for _, r := range raw {
			u := normalizeUser(r)
			if u.UserPrincipalName == "" || len(u.AssignedSKUIDs) == 0 {
				continue
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ListSubscribedSKUs returns the tenant's skuId -> skuPartNumber table.
func (c *Client) ListSubscribedSKUs(ctx context.Context) (map[string]string, error) {
	listURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/subscribedSkus"

	table := make(map[string]string)
	err := c.listPages(ctx, listURL, func(value json.RawMessage) error {
		var raw []struct {
			SKUID         string `json:"skuId"`
			SKUPartNumber string `json:"skuPartNumber"`
		}
		if err := json.Unmarshal(value, &raw); err != nil {
			return fmt.Errorf("invalid subscribedSkus page: %w", err)
		}
		for _, r := range raw {
			if r.SKUID != "" && r.SKUPartNumber != "" {
				table[strings.ToLower(r.SKUID)] = r.SKUPartNumber
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// ListAdminRoleMembers walks all activated directory roles and returns role
// names keyed by lowercase member principal name.
func (c *Client) ListAdminRoleMembers(ctx context.Context) (map[string][]string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")

	var roles []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	err := c.listPages(ctx, base+"/directoryRoles", func(value json.RawMessage) error {
		var raw []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(value, &raw); err != nil {
			return fmt.Errorf("invalid directoryRoles page: %w", err)
		}
		roles = append(roles, raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	membership := make(map[string][]string)
	for _, role := range roles {
		if role.ID == "" || role.DisplayName == "" {
			continue
		}
		membersURL := fmt.Sprintf("%s/directoryRoles/%s/members?$select=userPrincipalName",
			base, url.PathEscape(role.ID))
		err := c.listPages(ctx, membersURL, func(value json.RawMessage) error {
			var raw []struct {
				UserPrincipalName string `json:"userPrincipalName"`
			}
			if err := json.Unmarshal(value, &raw); err != nil {
				return fmt.Errorf("invalid role member page: %w", err)
			}
			for _, m := range raw {
				upn := strings.ToLower(strings.TrimSpace(m.UserPrincipalName))
				if upn == "" {
					continue
				}
				membership[upn] = append(membership[upn], role.DisplayName)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return membership, nil
}
