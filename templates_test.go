package provision_test

import (
	"testing"

	provision "github.com/goliatone/go-provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRendererDefaults(t *testing.T) {
	r, err := provision.NewTemplateRenderer(nil)
	require.NoError(t, err)

	msg, err := r.Render(provision.TemplatePasswordReset, map[string]any{
		"user": &provision.User{Username: "alice"},
		"link": "https://id.example.com/reset?a=1&b=2",
	})
	require.NoError(t, err)

	assert.Equal(t, "Reset your password", msg.Subject)
	assert.Contains(t, msg.Body, "Hello alice")
	assert.Contains(t, msg.Body, `href="https://id.example.com/reset?a=1&amp;b=2"`)
}

func TestTemplateRendererEscapesUserInput(t *testing.T) {
	r, err := provision.NewTemplateRenderer(nil)
	require.NoError(t, err)

	msg, err := r.Render(provision.TemplateWelcome, map[string]any{
		"user":     &provision.User{Username: "<script>"},
		"password": "Abc12$",
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.Body, "<script>")
	assert.Contains(t, msg.Body, "Abc12$")
}

func TestTemplateRendererOverrides(t *testing.T) {
	r, err := provision.NewTemplateRenderer(map[string]provision.MessageTemplate{
		provision.TemplateWelcome: {Subject: "Hi {{ user.Username }}", Body: "pw={{ password }}"},
	})
	require.NoError(t, err)

	msg, err := r.Render(provision.TemplateWelcome, map[string]any{
		"user":     &provision.User{Username: "bob"},
		"password": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi bob", msg.Subject)
	assert.Equal(t, "pw=secret", msg.Body)
}

func TestTemplateRendererErrors(t *testing.T) {
	_, err := provision.NewTemplateRenderer(map[string]provision.MessageTemplate{
		"broken": {Subject: "{% if %}", Body: ""},
	})
	require.Error(t, err)

	r, err := provision.NewTemplateRenderer(nil)
	require.NoError(t, err)
	_, err = r.Render("missing", nil)
	require.Error(t, err)
}
