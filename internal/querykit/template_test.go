package querykit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTemplateVariables_SingleValue(t *testing.T) {
	vars := map[string]any{"service": "checkout"}
	out := ResolveTemplateVariables(`rate(http_requests_total{service="${service}"}[5m])`, vars)
	assert.Equal(t, `rate(http_requests_total{service="checkout"}[5m])`, out)
}

func TestResolveTemplateVariables_SingleValueNeedsQuoting(t *testing.T) {
	out := ResolveTemplateVariables(`up{instance=${host}}`, map[string]any{"host": "10.0.0.1:9090"})
	assert.Equal(t, `up{instance="10.0.0.1:9090"}`, out)
}

func TestResolveTemplateVariables_MultiValueRewritesOperator(t *testing.T) {
	vars := map[string]any{"svc": []string{"a", "b"}}
	out := ResolveTemplateVariables(`up{service=${svc}}`, vars)
	assert.Equal(t, `up{service=~"a|b"}`, out)
	assert.NotContains(t, out, "${svc}")
}

func TestResolveTemplateVariables_MultiValueEscapesRegexMeta(t *testing.T) {
	vars := map[string]any{"path": []string{"/api/v1", "/api/v2+x"}}
	out := ResolveTemplateVariables(`http{route=${path}}`, vars)
	assert.Contains(t, out, `=~"/api/v1|/api/v2\+x"`)
}

func TestResolveTemplateVariables_SingleValueKeepsExactMatchOperator(t *testing.T) {
	out := ResolveTemplateVariables(`up{service=${svc}}`, map[string]any{"svc": "api"})
	assert.Equal(t, `up{service=api}`, out)
	assert.NotContains(t, out, "=~")
	assert.NotContains(t, out, "|")
}

func TestResolveTemplateVariables_CommaJoinedScalarSplits(t *testing.T) {
	out := ResolveTemplateVariables(`up{svc=${svc}}`, map[string]any{"svc": "a, b"})
	assert.Equal(t, `up{svc=~"a|b"}`, out)
}

func TestResolveTemplateVariables_BareForm(t *testing.T) {
	vars := map[string]any{"service": "checkout", "env": "prod"}
	out := ResolveTemplateVariables(`rate(http_requests_total{service="$service", env="$env"}[5m])`, vars)
	assert.Equal(t, `rate(http_requests_total{service="checkout", env="prod"}[5m])`, out)
}

func TestResolveTemplateVariables_BareFormWordBoundary(t *testing.T) {
	// $app must not match inside $apple.
	vars := map[string]any{"app": "checkout"}
	out := ResolveTemplateVariables(`up{a="$app", b="$apple"}`, vars)
	assert.Equal(t, `up{a="checkout", b="$apple"}`, out)
}

func TestResolveTemplateVariables_FormatSuffixStripped(t *testing.T) {
	vars := map[string]any{"svc": "api"}
	for _, q := range []string{
		`up{service="${svc:csv}"}`,
		`up{service="${svc:pipe}"}`,
		`up{service="${svc:regex}"}`,
	} {
		assert.Equal(t, `up{service="api"}`, ResolveTemplateVariables(q, vars))
	}
}

func TestResolveTemplateVariables_BareMultiValueRewritesOperator(t *testing.T) {
	vars := map[string]any{"svc": []string{"a", "b"}}
	out := ResolveTemplateVariables(`up{service=$svc}`, vars)
	assert.Equal(t, `up{service=~"a|b"}`, out)
}

func TestResolveTemplateVariables_MixedFormsSameVariable(t *testing.T) {
	vars := map[string]any{"host": "web-1"}
	out := ResolveTemplateVariables(`up{a="$host", b="${host}", c="${host:csv}"}`, vars)
	assert.Equal(t, `up{a="web-1", b="web-1", c="web-1"}`, out)
}

func TestResolveTemplateVariables_UnboundPlaceholderUntouched(t *testing.T) {
	q := `up{service="${unknown}"}`
	assert.Equal(t, q, ResolveTemplateVariables(q, map[string]any{"other": "x"}))
}

func TestResolveTemplateVariables_Idempotent(t *testing.T) {
	vars := map[string]any{
		"svc":  []string{"a", "b"},
		"host": "web-1",
	}
	q := `up{service=${svc}, host="${host}"}`
	once := ResolveTemplateVariables(q, vars)
	twice := ResolveTemplateVariables(once, vars)
	assert.Equal(t, once, twice)
}

func TestResolveTemplateVariables_SingleItemListCollapsesToScalar(t *testing.T) {
	out := ResolveTemplateVariables(`up{svc=${svc}}`, map[string]any{"svc": []string{"api"}})
	assert.Equal(t, `up{svc=api}`, out)
}
