package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arena2036/vec-aas-uploader/internal/agent/generator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

func TestAssetIDShort(t *testing.T) {
	tests := []struct {
		org, user, file string
		want            string
	}{
		{"Acme", "Jane", "harness.vec", "Acme-Jane-harness"},
		{"ARENA 2036", "J. Doe", "my harness.v2.vec", "ARENA-2036-J--Doe-my-harness-v2"},
		{"Ümlaut", "x", "a.vec", "-mlaut-x-a"},
		{"o", "u", "dir/sub/file.VEC", "o-u-file"},
		{"o", "u", "noext", "o-u-noext"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AssetIDShort(tt.org, tt.user, tt.file))
	}
}

func TestRedirectURL(t *testing.T) {
	assert.Equal(t, "/viewer/abc", RedirectURL("/viewer", &generator.CreateAasResponse{AasID: "raw", AasIDEncoded: "abc"}))
	assert.Equal(t, "/viewer/a%2Fb", RedirectURL("/viewer/", &generator.CreateAasResponse{AasID: "a/b"}))
	assert.Empty(t, RedirectURL("/viewer", &generator.CreateAasResponse{}))
	assert.Empty(t, RedirectURL("/viewer", nil))
}

func TestParseBlueprintIDs(t *testing.T) {
	log := logger.NewTestLogger()

	assert.Nil(t, ParseBlueprintIDs("", log))
	assert.Equal(t, []string{"a", "b"}, ParseBlueprintIDs(`["a","b"]`, log))
	assert.False(t, log.HasMessage("WARN", "Ignoring malformed blueprint id configuration"))

	assert.Nil(t, ParseBlueprintIDs(`[a, b`, log))
	assert.True(t, log.HasMessage("WARN", "Ignoring malformed blueprint id configuration"))
}
