package crm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/pkg/salesforce"
)

type mockSF struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	insertOneFn func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
}

func (m *mockSF) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockSF) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "", nil
}

var _ salesforce.Client = (*mockSF)(nil)

func contact() model.OutreachContact {
	return model.OutreachContact{
		DecisionMakerID:        "dm-1",
		FullName:               "Dana Ruiz",
		Title:                  "VP Operations",
		Email:                  "dana@sunshinegrill.com",
		Phone:                  "305-555-0100",
		CompanyName:            "Sunshine Grill Group",
		Category:               model.CategoryRestaurantChain,
		EstimatedLocationCount: 14,
		POSSystem:              "toast",
		ExpansionScore:         5,
		HQCity:                 "Miami",
		HQState:                "FL",
	}
}

func TestSalesforceTarget_FindByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		sf := &mockSF{queryFn: func(_ context.Context, soql string, out any) error {
			assert.Contains(t, soql, "Email = 'dana@sunshinegrill.com'")
			*(out.(*[]salesforce.Lead)) = []salesforce.Lead{{ID: "00Q1"}}
			return nil
		}}
		id, found, err := NewSalesforceTarget(sf, "").FindByEmail(context.Background(), "dana@sunshinegrill.com")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "00Q1", id)
	})

	t.Run("not found", func(t *testing.T) {
		_, found, err := NewSalesforceTarget(&mockSF{}, "").FindByEmail(context.Background(), "x@y.com")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("query error", func(t *testing.T) {
		sf := &mockSF{queryFn: func(context.Context, string, any) error { return errors.New("session expired") }}
		_, _, err := NewSalesforceTarget(sf, "").FindByEmail(context.Background(), "x@y.com")
		assert.Error(t, err)
	})
}

func TestSalesforceTarget_Create(t *testing.T) {
	var got map[string]any
	sf := &mockSF{insertOneFn: func(_ context.Context, obj string, rec map[string]any) (string, error) {
		assert.Equal(t, "Lead", obj)
		got = rec
		return "00QNEW", nil
	}}

	id, err := NewSalesforceTarget(sf, "Registry Discovery").Create(context.Background(), contact())
	require.NoError(t, err)
	assert.Equal(t, "00QNEW", id)
	assert.Equal(t, "Dana", got["FirstName"])
	assert.Equal(t, "Ruiz", got["LastName"])
	assert.Equal(t, "Sunshine Grill Group", got["Company"])
	assert.Equal(t, "Registry Discovery", got["LeadSource"])
	assert.Equal(t, "Miami", got["City"])
	assert.Contains(t, got["Description"], "POS: toast")
}

func TestSalesforceTarget_CreateError(t *testing.T) {
	sf := &mockSF{insertOneFn: func(context.Context, string, map[string]any) (string, error) {
		return "", errors.New("DUPLICATE_VALUE")
	}}
	_, err := NewSalesforceTarget(sf, "").Create(context.Background(), contact())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dana@sunshinegrill.com")
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Dana Ruiz", "Dana", "Ruiz"},
		{"Mary Ann  Smith", "Mary Ann", "Smith"},
		{"Cher", "", "Cher"},
		{"  ", "", "Unknown"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestLeadFields_DefaultsAndOmissions(t *testing.T) {
	c := contact()
	c.FullName = "Unknown"
	c.Title, c.Phone, c.HQCity, c.HQState, c.POSSystem = "", "", "", "", ""

	f := LeadFields(c, DefaultLeadSource)
	assert.Equal(t, "Unknown", f["LastName"])
	assert.NotContains(t, f, "FirstName")
	assert.NotContains(t, f, "Title")
	assert.NotContains(t, f, "City")
	assert.NotContains(t, f, "POS")
	assert.NotContains(t, f["Description"], "POS:")
	assert.Contains(t, f["Description"], "Estimated locations: 14")
}
