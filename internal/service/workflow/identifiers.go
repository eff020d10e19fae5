package workflow

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/arena2036/vec-aas-uploader/internal/agent/generator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

const DefaultViewerPath = "/viewer"

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// AssetIDShort derives the artifact identifier from organization, user and the
// file's base name. Characters outside [A-Za-z0-9_-] become "-".
func AssetIDShort(organizationName, userName, fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return unsafeIDChars.ReplaceAllString(organizationName+"-"+userName+"-"+base, "-")
}

// RedirectURL points the viewer at the created shell, preferring the compact id.
func RedirectURL(viewerPath string, resp *generator.CreateAasResponse) string {
	if resp == nil {
		return ""
	}
	viewerPath = strings.TrimRight(viewerPath, "/")
	switch {
	case resp.AasIDEncoded != "":
		return viewerPath + "/" + resp.AasIDEncoded
	case resp.AasID != "":
		return viewerPath + "/" + url.PathEscape(resp.AasID)
	}
	return ""
}

// ParseBlueprintIDs reads the configured JSON array of blueprint ids. Empty
// or malformed values mean "no blueprints"; malformed ones are logged.
func ParseBlueprintIDs(raw string, log logger.Logger) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Warn("Ignoring malformed blueprint id configuration",
			logger.String("value", raw),
			logger.Error(err),
		)
		return nil
	}
	return ids
}
