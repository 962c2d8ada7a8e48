package git

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBranch(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "task-add-auth-job1", "task-add-auth-job1"},
		{"spaces", "fix the thing", "fix-the-thing"},
		{"special runs", "feat!!@@##x", "feat-x"},
		{"leading trailing", "--weird--", "weird"},
		{"dots trimmed", ".hidden.", "hidden"},
		{"slash kept", "feature/sub", "feature/sub"},
		{"unicode", "tâche número uno", "t-che-n-mero-uno"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBranch(tt.in))
		})
	}
}

func TestSanitizeBranchEmptyFallback(t *testing.T) {
	got := SanitizeBranch("!!!")
	assert.Regexp(t, regexp.MustCompile(`^branch-\d{8}-\d{6}$`), got)
}

func TestSanitizeBranchCharset(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	for _, in := range []string{"ok", "weird <>?", "ünïcode", "a b c", "x/y.z_w"} {
		got := SanitizeBranch(in)
		assert.Regexp(t, valid, got)
		assert.NotRegexp(t, `^[-.]|[-.]$`, got)
	}
}
