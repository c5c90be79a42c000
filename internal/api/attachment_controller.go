package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Kaz-z/impact-engine-report-builder/internal/service"
	"github.com/gin-gonic/gin"
)

// AttachmentController 附件控制器
type AttachmentController struct {
	attachmentService service.AttachmentService
	maxUploadSize     int64
}

// NewAttachmentController 创建附件控制器
func NewAttachmentController(attachmentService service.AttachmentService, maxUploadSize int64) *AttachmentController {
	return &AttachmentController{
		attachmentService: attachmentService,
		maxUploadSize:     maxUploadSize,
	}
}

// UploadImage 上传成果配图
// @Summary      上传成果配图
// @Tags         附件
// @Accept       multipart/form-data
// @Produce      json
// @Param        charityId  path      string  true  "慈善机构 ID"
// @Param        projectId  path      string  true  "项目 ID"
// @Param        outcome    path      int     true  "成果序号"
// @Param        file       formData  file    true  "图片"
// @Success      201        {object}  Response
// @Failure      413        {object}  ErrorResponse
// @Failure      415        {object}  ErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/outcomes/{outcome}/images [post]
func (ctrl *AttachmentController) UploadImage(c *gin.Context) {
	outcome, ok := outcomeParam(c)
	if !ok {
		return
	}
	name, data, ok := ctrl.readFile(c)
	if !ok {
		return
	}

	meta, err := ctrl.attachmentService.UploadImage(c.Request.Context(), reportKey(c), outcome, name, data)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, meta)
}

// ListImages 列出成果配图
// @Summary      列出成果配图
// @Tags         附件
// @Produce      json
// @Param        charityId  path      string  true  "慈善机构 ID"
// @Param        projectId  path      string  true  "项目 ID"
// @Param        outcome    path      int     true  "成果序号"
// @Success      200        {object}  Response
// @Router       /charities/{charityId}/projects/{projectId}/report/outcomes/{outcome}/images [get]
func (ctrl *AttachmentController) ListImages(c *gin.Context) {
	outcome, ok := outcomeParam(c)
	if !ok {
		return
	}

	files, err := ctrl.attachmentService.ListImages(c.Request.Context(), reportKey(c), outcome)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, files)
}

// UploadContract 上传合作协议
// @Summary      上传合作协议
// @Tags         附件
// @Accept       multipart/form-data
// @Produce      json
// @Param        charityId  path      string  true  "慈善机构 ID"
// @Param        projectId  path      string  true  "项目 ID"
// @Param        file       formData  file    true  "PDF 或 Word 文档"
// @Success      201        {object}  Response
// @Failure      413        {object}  ErrorResponse
// @Failure      415        {object}  ErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/contract [post]
func (ctrl *AttachmentController) UploadContract(c *gin.Context) {
	name, data, ok := ctrl.readFile(c)
	if !ok {
		return
	}

	meta, err := ctrl.attachmentService.UploadContract(c.Request.Context(), reportKey(c), name, data)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, meta)
}

func outcomeParam(c *gin.Context) (int, bool) {
	outcome, err := strconv.Atoi(c.Param("outcome"))
	if err != nil {
		HandleServiceError(c, service.ErrInvalidOutcome)
		return 0, false
	}
	return outcome, true
}

// readFile 读取 multipart 字段 file,超过上限时多读一个字节交给服务层判断
func (ctrl *AttachmentController) readFile(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		Error(c, http.StatusBadRequest, "file is required", err.Error())
		return "", nil, false
	}

	f, err := header.Open()
	if err != nil {
		Error(c, http.StatusBadRequest, "failed to open file", err.Error())
		return "", nil, false
	}
	defer f.Close()

	var r io.Reader = f
	if ctrl.maxUploadSize > 0 {
		r = io.LimitReader(f, ctrl.maxUploadSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		Error(c, http.StatusBadRequest, "failed to read file", fmt.Sprintf("%s: %v", header.Filename, err))
		return "", nil, false
	}
	return header.Filename, data, true
}
