package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/cli/config"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRules_Load(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		rules, err := (&config.Rules{}).Load()
		gt.NoError(t, err)
		gt.Equal(t, len(rules), 0)
	})

	t.Run("rules in file order", func(t *testing.T) {
		path := writeFile(t, `
[[rule]]
name = "security"
pattern = "(?i)^sec(urity)?:"
category = "bugfix"

[[rule]]
name = "deps"
pattern = "^deps:"
category = "chore"
`)
		rules, err := (&config.Rules{Path: path}).Load()
		gt.NoError(t, err)
		gt.Equal(t, rules, []model.ClassificationRule{
			{Name: "security", Pattern: "(?i)^sec(urity)?:", Category: model.CategoryBugfix},
			{Name: "deps", Pattern: "^deps:", Category: model.CategoryChore},
		})
	})

	t.Run("unknown field", func(t *testing.T) {
		path := writeFile(t, `
[[rule]]
name = "x"
regex = "^x"
category = "chore"
`)
		_, err := (&config.Rules{Path: path}).Load()
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&config.Rules{Path: filepath.Join(t.TempDir(), "none.toml")}).Load()
		gt.Error(t, err)
	})
}
