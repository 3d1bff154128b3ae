package xfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandTilde(t *testing.T) {
	t.Setenv("HOME", "/home/rock")

	tests := []struct {
		in   string
		want string
	}{
		{"~", "/home/rock"},
		{"~/models", filepath.Join("/home/rock", "models")},
		{"~/.local/share/rkbackend", filepath.Join("/home/rock", ".local/share/rkbackend")},
		{"/srv/models", "/srv/models"},
		{"~rock/models", "~rock/models"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandTilde(tt.in), tt.in)
	}
}
