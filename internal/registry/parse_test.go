package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sunbizResults = `<html><body>
<table class="search-results">
  <tr><th>Name</th><th>Document</th><th>Status</th><th>Filed</th><th>Address</th></tr>
  <tr><td> SUNSHINE HOSPITALITY GROUP LLC </td><td>L21000012345</td><td>ACTIVE</td><td>03/04/2021</td><td>100 Main St, Tampa FL</td></tr>
  <tr><td>GULF COAST CONCEPTS INC</td><td>P21000098765</td><td>ACTIVE</td><td>06/15/2021</td><td>22 Bay Rd, Naples FL</td></tr>
  <tr><td>OLD TAVERN CORP</td><td>P98000011111</td><td>INACT</td><td>01/10/2021</td><td>9 Elm St, Miami FL</td></tr>
  <tr><td>SHORT ROW</td><td>X1</td></tr>
</table>
</body></html>`

func TestParseSunbiz(t *testing.T) {
	rows, err := ParseSunbiz(sunbizResults)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "SUNSHINE HOSPITALITY GROUP LLC", rows[0].EntityName)
	assert.Equal(t, "L21000012345", rows[0].EntityID)
	assert.Equal(t, "ACTIVE", rows[0].Status)
	assert.Equal(t, "03/04/2021", rows[0].FilingDate)
	assert.Equal(t, "100 Main St, Tampa FL", rows[0].PhysicalAddress)
	assert.Equal(t, "INACT", rows[2].Status)
}

func TestParseSunbiz_FallsBackToAnyTable(t *testing.T) {
	html := `<table>
<tr><td>Name</td><td>Doc</td><td>Status</td><td>Filed</td><td>Address</td></tr>
<tr><td>BAYSIDE GRILL LLC</td><td>L22000000001</td><td>ACTIVE</td><td>2022-02-01</td><td>1 Bay St</td></tr>
</table>`

	rows, err := ParseSunbiz(html)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BAYSIDE GRILL LLC", rows[0].EntityName)
}

func TestParseSunbiz_NoTable(t *testing.T) {
	rows, err := ParseSunbiz("<html><body><p>No results</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseGA_DefaultsMissingColumns(t *testing.T) {
	html := `<table>
<tr><th>Business Name</th><th>Control #</th></tr>
<tr><td>PEACH STATE EATERY LLC</td><td>22012345</td></tr>
<tr><td></td><td>skipped-no-name</td></tr>
<tr><td>ONLY ONE CELL</td></tr>
<tr><td>ATLANTA TAVERN GROUP</td><td>22099999</td><td>Active/Compliance</td><td>01/05/2023</td><td>55 Peachtree St</td></tr>
</table>`

	rows, err := ParseGA(html)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "PEACH STATE EATERY LLC", rows[0].EntityName)
	assert.Equal(t, "Active", rows[0].Status)
	assert.Empty(t, rows[0].FilingDate)
	assert.Empty(t, rows[0].PhysicalAddress)

	assert.Equal(t, "Active/Compliance", rows[1].Status)
	assert.Equal(t, "55 Peachtree St", rows[1].PhysicalAddress)
}

func TestParseAL(t *testing.T) {
	html := `<table>
<tr><td>Entity</td><td>ID</td><td>Status</td></tr>
<tr><td>MOBILE BAY LOUNGE LLC</td><td>000-123</td><td>Exists</td></tr>
</table>`

	rows, err := ParseAL(html)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Exists", rows[0].Status)
}
