package validator

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

func newValidator() *FileValidator {
	return NewFileValidator(logger.NewNopLogger(), nil)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		info models.FileInfo
		code string
	}{
		{"vec extension", models.FileInfo{Filename: "harness.vec", Size: 100}, ""},
		{"upper case extension", models.FileInfo{Filename: "HARNESS.VEC", Size: 100, ContentType: "image/png"}, ""},
		{"octet stream", models.FileInfo{Filename: "harness.xml", Size: 100, ContentType: "application/octet-stream"}, ""},
		{"plain text", models.FileInfo{Filename: "harness", Size: 100, ContentType: "text/plain"}, ""},
		{"exactly at ceiling", models.FileInfo{Filename: "a.vec", Size: DefaultMaxFileSize}, ""},
		{"wrong type", models.FileInfo{Filename: "photo.png", Size: 100, ContentType: "image/png"}, CodeFileTypeNotSupported},
		{"no type no extension", models.FileInfo{Filename: "harness", Size: 100}, CodeFileTypeNotSupported},
		{"too large", models.FileInfo{Filename: "a.vec", Size: DefaultMaxFileSize + 1}, CodeFileTooLarge},
		// type is checked before size
		{"wrong type and too large", models.FileInfo{Filename: "a.pdf", Size: DefaultMaxFileSize + 1, ContentType: "application/pdf"}, CodeFileTypeNotSupported},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Accept(tt.info)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			verr, ok := AsValidationError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, verr.Code)
			assert.Equal(t, "file", verr.Field)
		})
	}
}

func TestTooLargeMessage(t *testing.T) {
	err := newValidator().Accept(models.FileInfo{Filename: "a.vec", Size: 11 * 1024 * 1024})
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "File is too large. Maximum size is 10 MiB.", verr.Message)
	assert.Equal(t, "10 MiB", verr.Params["maxSize"])
}

func TestValidateForm(t *testing.T) {
	user, org, err := ValidateForm("  Jane ", "\tAcme\n")
	require.NoError(t, err)
	assert.Equal(t, "Jane", user)
	assert.Equal(t, "Acme", org)

	_, _, err = ValidateForm("Jane", "   ")
	var errs ValidationErrors
	require.True(t, errors.As(err, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeOrganizationRequired, errs[0].Code)
	assert.Equal(t, "organizationName", errs[0].Field)
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = ValidateForm("", "")
	require.True(t, errors.As(err, &errs))
	require.Len(t, errs, 2)
	assert.Equal(t, CodeUserNameRequired, errs.First().Code)
	assert.Equal(t, "Name is required.; Organization is required.", err.Error())
}

func TestAcceptHeader(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="dir/harness.vec"`)
	h.Set("Content-Type", "application/octet-stream")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("<VEC/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, header, err := req.FormFile("file")
	require.NoError(t, err)

	info, err := newValidator().AcceptHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "harness.vec", info.Filename)
	assert.Equal(t, int64(6), info.Size)
	assert.Equal(t, "application/octet-stream", info.ContentType)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatFileSize(0))
	assert.Equal(t, "0 B", FormatFileSize(-5))
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "10 MiB", FormatFileSize(DefaultMaxFileSize))
}

func TestAsValidationErrorPlainError(t *testing.T) {
	_, ok := AsValidationError(errors.New("boom"))
	assert.False(t, ok)
	_, ok = AsValidationError(nil)
	assert.False(t, ok)
}
