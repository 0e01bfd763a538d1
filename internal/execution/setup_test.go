package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/pairpad/internal/config"
	"github.com/michaelbrown/pairpad/internal/logging"
	"github.com/michaelbrown/pairpad/internal/session"
)

func TestFromConfigDefault(t *testing.T) {
	e, err := FromConfig(config.Default().Runtime, logging.Discard())
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []session.Language{session.LanguageJavaScript, session.LanguagePython}, e.Languages())

	res, err := e.Execute(context.Background(), session.LanguagePython, `print(1 + 2)`)
	require.NoError(t, err)
	assert.Equal(t, "3", res.Output)
}

func TestFromConfigRejectsUnlistedImage(t *testing.T) {
	cfg := config.Default().Runtime
	cfg.Interpreter = config.InterpreterDocker
	cfg.Docker.Image = "ubuntu:latest"

	_, err := FromConfig(cfg, logging.Discard())
	assert.ErrorContains(t, err, "allowlist")
}

func TestFromConfigUnknownBackend(t *testing.T) {
	cfg := config.Default().Runtime
	cfg.Interpreter = "jython"

	_, err := FromConfig(cfg, logging.Discard())
	assert.Error(t, err)
}
