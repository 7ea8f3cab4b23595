package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

func TestIsDocumentationOnly(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  bool
	}{
		{name: "no files", files: nil, want: false},
		{name: "readme", files: []string{"README.md"}, want: true},
		{name: "docs directory", files: []string{"docs/guide/setup.html", "CHANGELOG.md"}, want: true},
		{name: "nested docs directory", files: []string{"pkg/api/docs/openapi.yaml"}, want: true},
		{name: "mixed", files: []string{"README.md", "main.go"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Equal(t, model.IsDocumentationOnly(tt.files), tt.want)
		})
	}
}
