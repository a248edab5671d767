// Package crm pushes qualified outreach contacts into the sales CRM.
package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/pkg/salesforce"
)

// DefaultLeadSource is used when no lead source is configured.
const DefaultLeadSource = "Lead Pipeline"

// Target is a CRM that can be checked for existing contacts and written to.
type Target interface {
	// FindByEmail reports the CRM id of an existing record with this exact email.
	FindByEmail(ctx context.Context, email string) (id string, found bool, err error)
	// Create inserts a record for the contact and returns its CRM id.
	Create(ctx context.Context, c model.OutreachContact) (string, error)
}

// SalesforceTarget writes outreach contacts as Salesforce Leads.
type SalesforceTarget struct {
	client     salesforce.Client
	leadSource string
}

// NewSalesforceTarget creates a Target backed by Salesforce Leads.
func NewSalesforceTarget(client salesforce.Client, leadSource string) *SalesforceTarget {
	if leadSource == "" {
		leadSource = DefaultLeadSource
	}
	return &SalesforceTarget{client: client, leadSource: leadSource}
}

// FindByEmail looks up a Lead by exact email.
func (t *SalesforceTarget) FindByEmail(ctx context.Context, email string) (string, bool, error) {
	lead, err := salesforce.FindLeadByEmail(ctx, t.client, email)
	if err != nil {
		return "", false, eris.Wrap(err, "crm: find by email")
	}
	if lead == nil {
		return "", false, nil
	}
	return lead.ID, true, nil
}

// Create inserts a Lead for the contact.
func (t *SalesforceTarget) Create(ctx context.Context, c model.OutreachContact) (string, error) {
	id, err := salesforce.CreateLead(ctx, t.client, LeadFields(c, t.leadSource))
	if err != nil {
		return "", eris.Wrapf(err, "crm: create lead for %s", c.Email)
	}
	return id, nil
}

// LeadFields maps an outreach contact onto Salesforce Lead fields.
func LeadFields(c model.OutreachContact, leadSource string) map[string]any {
	first, last := SplitName(c.FullName)
	fields := map[string]any{
		"LastName":    last,
		"Company":     c.CompanyName,
		"Email":       c.Email,
		"LeadSource":  leadSource,
		"Description": Description(c),
	}
	if first != "" {
		fields["FirstName"] = first
	}
	if c.Title != "" {
		fields["Title"] = c.Title
	}
	if c.Phone != "" {
		fields["Phone"] = c.Phone
	}
	if c.HQCity != "" {
		fields["City"] = c.HQCity
	}
	if c.HQState != "" {
		fields["State"] = c.HQState
	}
	return fields
}

// SplitName splits a full name at the last space. A single token becomes
// the last name; an empty name yields "Unknown".
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// Description summarizes the operator context for the CRM record.
func Description(c model.OutreachContact) string {
	lines := []string{
		fmt.Sprintf("Category: %s", c.Category),
		fmt.Sprintf("Estimated locations: %d", c.EstimatedLocationCount),
	}
	if c.POSSystem != "" {
		lines = append(lines, fmt.Sprintf("POS: %s", c.POSSystem))
	}
	lines = append(lines, fmt.Sprintf("Expansion score: %d/10", c.ExpansionScore))
	if c.LinkedInURL != "" {
		lines = append(lines, "LinkedIn: "+c.LinkedInURL)
	}
	return strings.Join(lines, "\n")
}
