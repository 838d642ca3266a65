package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Quiz struct {
		QuestionTimeout time.Duration
		MaxQuestions    int
	}

	Redis struct {
		Addrs  []string
		Prefix string
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  port: 8080
quiz:
  questiontimeout: 10s
redis:
  addrs: ["localhost:6379"]
`), 0o600))

	t.Setenv("QUIZ_MAXQUESTIONS", "7")

	var c testConfig
	c.Quiz.MaxQuestions = 50
	c.Redis.Prefix = "quizbot"

	require.NoError(t, config.Load(file, &c))

	assert.Equal(t, int32(8080), c.HTTP.Port)
	assert.Equal(t, 10*time.Second, c.Quiz.QuestionTimeout)
	assert.Equal(t, 7, c.Quiz.MaxQuestions, "environment should win over defaults")
	assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
	assert.Equal(t, "quizbot", c.Redis.Prefix, "defaults should be kept")
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("QUIZBOT_TEST_DOTENV=from-file\n"), 0o600))

	t.Setenv("QUIZBOT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("QUIZBOT_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(file, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("QUIZBOT_TEST_DOTENV"))
}
