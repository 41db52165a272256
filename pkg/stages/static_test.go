package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vulnvalid/pkg/triage"
)

const semgrepFixture = `{
  "results": [
    {
      "check_id": "python.flask.security.injection.sql.sql-injection-db-cursor-execute",
      "path": "app/views/products.py",
      "start": {"line": 42},
      "extra": {
        "message": "User input flows into a raw SQL query.",
        "lines": "cursor.execute(\"SELECT * FROM products WHERE id = \" + pid)",
        "severity": "ERROR"
      }
    },
    {
      "check_id": "python.flask.security.audit.debug-enabled",
      "path": "app/main.py",
      "start": {"line": 7},
      "extra": {
        "message": "Debug mode enabled.",
        "lines": "app.run(debug=True)",
        "severity": "WARNING"
      }
    }
  ],
  "errors": []
}`

func TestParseSemgrepOutput(t *testing.T) {
	matches, err := ParseSemgrepOutput([]byte(semgrepFixture))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "python.flask.security.injection.sql.sql-injection-db-cursor-execute", matches[0].RuleID)
	assert.Equal(t, "app/views/products.py", matches[0].File)
	assert.Equal(t, 42, matches[0].Line)
	assert.Equal(t, `cursor.execute("SELECT * FROM products WHERE id = " + pid)`, matches[0].Snippet)
	assert.Equal(t, "sql injection db cursor execute", matches[0].Category)

	assert.Equal(t, "debug enabled", matches[1].Category)
	assert.Equal(t, 7, matches[1].Line)
}

func TestParseSemgrepOutputEmpty(t *testing.T) {
	matches, err := ParseSemgrepOutput([]byte(`{"results": [], "errors": []}`))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestParseSemgrepOutputMalformed(t *testing.T) {
	_, err := ParseSemgrepOutput([]byte("semgrep exploded"))
	assert.Error(t, err)
}

func TestCategoryFromRule(t *testing.T) {
	assert.Equal(t, "sql injection", categoryFromRule("python.django.security.sql-injection"))
	assert.Equal(t, "xss", categoryFromRule("xss"))
	assert.Equal(t, "hardcoded secret", categoryFromRule("generic.secrets.hardcoded-secret"))
}

func TestLinkMatch(t *testing.T) {
	findings := []triage.Finding{
		{ID: "VULN-001", AffectedComponents: []string{"/products"}},
		{ID: "VULN-002", AffectedComponents: []string{"app/main.py"}},
	}

	linked := linkMatch(triage.StaticMatch{File: "app/views/products.py"}, findings)
	assert.Equal(t, "VULN-001", linked)

	linked = linkMatch(triage.StaticMatch{File: "src/app/main.py"}, findings)
	assert.Equal(t, "VULN-002", linked)

	linked = linkMatch(triage.StaticMatch{File: "lib/util.go"}, findings)
	assert.Empty(t, linked)
}
