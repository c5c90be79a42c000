package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
)

// ErrUnsupportedType 文件类型不允许上传
var ErrUnsupportedType = errors.New("unsupported file type")

// FileMetadata 已上传文件的信息,字段与报告中的文件条目一致
type FileMetadata struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	FileName    string    `json:"fileName"`
	UploadedAt  time.Time `json:"uploadedAt"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
}

// Fields 转换为报告中的文件条目
func (m FileMetadata) Fields() *report.Fields {
	return report.NewFields().
		Set("name", report.String(m.Name)).
		Set("url", report.String(m.URL)).
		Set("fileName", report.String(m.FileName)).
		Set("uploadedAt", report.String(m.UploadedAt.UTC().Format(time.RFC3339)))
}

// Store 附件存储
type Store interface {
	// Upload 写入对象并返回可访问的 URL
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	// List 按路径顺序列出前缀下的对象
	List(ctx context.Context, prefix string) ([]FileMetadata, error)
}

// ImagePrefix 成果配图目录
func ImagePrefix(charityID, projectID string, outcome int) string {
	return fmt.Sprintf("supporting-images/%s/%s/outcome%d/", charityID, projectID, outcome)
}

// ImagePath 成果配图路径
func ImagePath(charityID, projectID string, outcome int, fileName string) string {
	return ImagePrefix(charityID, projectID, outcome) + fileName
}

// ContractPath 合作协议路径
func ContractPath(charityID, projectID, fileName string) string {
	return fmt.Sprintf("contracts/%s/%s/%s", charityID, projectID, fileName)
}

// ListImages 列出某个成果已上传的配图
func ListImages(ctx context.Context, store Store, charityID, projectID string, outcome int) ([]FileMetadata, error) {
	return store.List(ctx, ImagePrefix(charityID, projectID, outcome))
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var contractTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DetectImageType 检测配图类型,非图片返回 ErrUnsupportedType
func DetectImageType(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !imageTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return mimeType, nil
}

// DetectContractType 按扩展名和内容检测合作协议类型
func DetectContractType(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(fileName))
	expected, ok := contractTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	sniffed := http.DetectContentType(data)
	switch ext {
	case ".pdf":
		if sniffed != "application/pdf" {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
		}
	case ".docx":
		// docx 是 zip 包
		if sniffed != "application/zip" {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
		}
	}
	return expected, nil
}
