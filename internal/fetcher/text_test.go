package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOf(t *testing.T) {
	html := `<html><head><title>Sunshine Grill</title><style>body{color:red}</style></head>
<body>
  <h1>Welcome</h1>
  <script>var toast = "ignored";</script>
  <p>Order online   with
  Toast</p>
</body></html>`

	text, err := TextOf(html)
	require.NoError(t, err)
	assert.Equal(t, "Welcome Order online with Toast", text)
}

func TestTextOf_Fragment(t *testing.T) {
	text, err := TextOf("<div>Now hiring <b>servers</b></div>")
	require.NoError(t, err)
	assert.Equal(t, "Now hiring servers", text)
}
