package validator

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// ErrValidation is matched by every validation failure via errors.Is.
var ErrValidation = errors.New("validation failed")

// 验证错误码
const (
	CodeFileTypeNotSupported = "fileTypeNotSupported"
	CodeFileTooLarge         = "fileTooLarge"
	CodeFileRequired         = "fileRequired"
	CodeUserNameRequired     = "userNameRequired"
	CodeOrganizationRequired = "organizationRequired"
)

// DefaultMaxFileSize is the upload ceiling for VEC files.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// ValidationError 验证错误
type ValidationError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidationErrors collects every failed form field.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func (es ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// First returns the first validation error, which is what the UI shows.
func (es ValidationErrors) First() *ValidationError {
	if len(es) == 0 {
		return nil
	}
	return es[0]
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	AllowedMimeTypes  []string
}

// DefaultConfig accepts .vec files and the generic types browsers report for them.
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize:       DefaultMaxFileSize,
		AllowedExtensions: []string{".vec"},
		AllowedMimeTypes:  []string{"application/octet-stream", "text/plain"},
	}
}

// FileValidator is the acceptance filter every file passes before it can be
// part of an upload request.
type FileValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

func NewFileValidator(log logger.Logger, config *ValidatorConfig) *FileValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &FileValidator{
		logger: log,
		config: config,
	}
}

// MaxFileSize returns the configured ceiling in bytes.
func (v *FileValidator) MaxFileSize() int64 {
	return v.config.MaxFileSize
}

// Accept checks the file type first and the size second. A nil return means
// the file may enter the workflow unchanged.
func (v *FileValidator) Accept(info models.FileInfo) error {
	if !v.isAcceptedType(info) {
		v.logger.Debug("Rejected file type",
			logger.String("filename", info.Filename),
			logger.String("contentType", info.ContentType),
		)
		return &ValidationError{
			Code:    CodeFileTypeNotSupported,
			Message: "File type not supported. Please upload a .vec file.",
			Field:   "file",
		}
	}

	if info.Size > v.config.MaxFileSize {
		v.logger.Debug("Rejected file size",
			logger.String("filename", info.Filename),
			logger.Int64("size", info.Size),
		)
		return TooLarge(v.config.MaxFileSize)
	}

	return nil
}

// AcceptHeader builds the FileInfo of a multipart part and runs Accept on it.
func (v *FileValidator) AcceptHeader(header *multipart.FileHeader) (models.FileInfo, error) {
	info := FileInfoFromHeader(header)
	return info, v.Accept(info)
}

func (v *FileValidator) isAcceptedType(info models.FileInfo) bool {
	name := strings.ToLower(info.Filename)
	for _, ext := range v.config.AllowedExtensions {
		if strings.HasSuffix(name, strings.ToLower(ext)) {
			return true
		}
	}

	contentType := strings.ToLower(strings.TrimSpace(info.ContentType))
	for _, mime := range v.config.AllowedMimeTypes {
		if contentType == mime {
			return true
		}
	}
	return false
}

// TooLarge is the fileTooLarge rejection for the given ceiling.
func TooLarge(maxSize int64) *ValidationError {
	formatted := FormatFileSize(maxSize)
	return &ValidationError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("File is too large. Maximum size is %s.", formatted),
		Field:   "file",
		Params:  map[string]string{"maxSize": formatted},
	}
}

// FileRequired is returned when a submission carries no file.
func FileRequired() *ValidationError {
	return &ValidationError{
		Code:    CodeFileRequired,
		Message: "Please select a file to upload.",
		Field:   "file",
	}
}

// ValidateForm trims both names and reports every empty one.
func ValidateForm(userName, organizationName string) (string, string, error) {
	userName = strings.TrimSpace(userName)
	organizationName = strings.TrimSpace(organizationName)

	var errs ValidationErrors
	if userName == "" {
		errs = append(errs, &ValidationError{
			Code:    CodeUserNameRequired,
			Message: "Name is required.",
			Field:   "userName",
		})
	}
	if organizationName == "" {
		errs = append(errs, &ValidationError{
			Code:    CodeOrganizationRequired,
			Message: "Organization is required.",
			Field:   "organizationName",
		})
	}
	if len(errs) > 0 {
		return userName, organizationName, errs
	}
	return userName, organizationName, nil
}

// FileInfoFromHeader reads name, size and declared type of a multipart part.
func FileInfoFromHeader(header *multipart.FileHeader) models.FileInfo {
	return models.FileInfo{
		Filename:    filepath.Base(header.Filename),
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}
}

// FormatFileSize renders bytes in IEC units, e.g. "10 MiB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// AsValidationError extracts the first ValidationError carried by err.
func AsValidationError(err error) (*ValidationError, bool) {
	var single *ValidationError
	if errors.As(err, &single) {
		return single, true
	}
	var multi ValidationErrors
	if errors.As(err, &multi) && len(multi) > 0 {
		return multi.First(), true
	}
	return nil, false
}
