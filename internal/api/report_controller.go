package api

import (
	"net/http"

	"github.com/Kaz-z/impact-engine-report-builder/internal/service"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/gin-gonic/gin"
)

// ReportController 报告控制器
type ReportController struct {
	reportService service.ReportService
}

// NewReportController 创建报告控制器
func NewReportController(reportService service.ReportService) *ReportController {
	return &ReportController{
		reportService: reportService,
	}
}

func reportKey(c *gin.Context) workflow.Key {
	return workflow.Key{
		CharityID: c.Param("charityId"),
		ProjectID: c.Param("projectId"),
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

// RegisterFunding 登记资助记录
// @Summary      登记资助记录
// @Description  资助发放后登记项目,创建未开始的报告
// @Tags         资助
// @Accept       json
// @Produce      json
// @Param        request  body      service.RegisterFundingRequest  true  "资助信息"
// @Success      201      {object}  Response
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /projects [post]
func (ctrl *ReportController) RegisterFunding(c *gin.Context) {
	var req service.RegisterFundingRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.RegisterFunding(c.Request.Context(), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, r)
}

// List 报告列表
// @Summary      报告列表
// @Description  按状态和慈善机构分页查询报告
// @Tags         报告
// @Produce      json
// @Param        status      query     string  false  "状态"
// @Param        charity_id  query     string  false  "慈善机构 ID"
// @Param        page        query     int     false  "页码"
// @Param        page_size   query     int     false  "每页数量"
// @Param        sort_by     query     string  false  "排序字段"
// @Param        order       query     string  false  "排序方向"
// @Success      200         {object}  PaginatedResponse
// @Failure      400         {object}  ErrorResponse
// @Router       /reports [get]
func (ctrl *ReportController) List(c *gin.Context) {
	var req service.ListReportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	page, err := ctrl.reportService.List(c.Request.Context(), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, page.Items, NewPaginationInfo(page.Page, page.PageSize, page.Total))
}

// Statistics 各状态报告数量
// @Summary      报告统计
// @Tags         报告
// @Produce      json
// @Success      200  {object}  Response
// @Router       /reports/statistics [get]
func (ctrl *ReportController) Statistics(c *gin.Context) {
	stats, err := ctrl.reportService.Statistics(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, stats)
}

// Validate 校验报告字段
// @Summary      校验报告
// @Description  按宽松或严格模式校验,不保存
// @Tags         报告
// @Accept       json
// @Produce      json
// @Param        request  body      service.ValidateReportRequest  true  "报告字段"
// @Success      200      {object}  Response
// @Failure      400      {object}  ErrorResponse
// @Router       /reports/validate [post]
func (ctrl *ReportController) Validate(c *gin.Context) {
	var req service.ValidateReportRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ctrl.reportService.Validate(&req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"ok":         result.OK,
		"violations": result.ByStep(),
	})
}

// Get 获取报告
// @Summary      获取报告
// @Description  返回报告字段、状态和资金分配汇总
// @Tags         报告
// @Produce      json
// @Param        charityId  path      string  true  "慈善机构 ID"
// @Param        projectId  path      string  true  "项目 ID"
// @Success      200        {object}  Response
// @Failure      404        {object}  ErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report [get]
func (ctrl *ReportController) Get(c *gin.Context) {
	view, err := ctrl.reportService.Get(c.Request.Context(), reportKey(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, view)
}

// SaveDraft 保存草稿
// @Summary      保存草稿
// @Description  宽松模式校验后保存,不存在时创建
// @Tags         报告
// @Accept       json
// @Produce      json
// @Param        charityId  path      string                     true  "慈善机构 ID"
// @Param        projectId  path      string                     true  "项目 ID"
// @Param        request    body      service.SaveReportRequest  true  "报告字段"
// @Success      200        {object}  Response
// @Failure      409        {object}  ErrorResponse
// @Failure      422        {object}  ValidationErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/draft [put]
func (ctrl *ReportController) SaveDraft(c *gin.Context) {
	var req service.SaveReportRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.SaveDraft(c.Request.Context(), reportKey(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, r)
}

// Submit 提交报告
// @Summary      提交报告
// @Description  严格模式校验后提交审核
// @Tags         报告
// @Accept       json
// @Produce      json
// @Param        charityId  path      string                     true  "慈善机构 ID"
// @Param        projectId  path      string                     true  "项目 ID"
// @Param        request    body      service.SaveReportRequest  true  "报告字段"
// @Success      200        {object}  Response
// @Failure      409        {object}  ErrorResponse
// @Failure      422        {object}  ValidationErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/submit [post]
func (ctrl *ReportController) Submit(c *gin.Context) {
	var req service.SaveReportRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.Submit(c.Request.Context(), reportKey(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, r)
}

// Approve 审核通过
// @Summary      审核通过
// @Tags         审核
// @Accept       json
// @Produce      json
// @Param        charityId  path      string                  true   "慈善机构 ID"
// @Param        projectId  path      string                  true   "项目 ID"
// @Param        request    body      service.VersionRequest  false  "版本"
// @Success      200        {object}  Response
// @Failure      409        {object}  ErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/approve [post]
func (ctrl *ReportController) Approve(c *gin.Context) {
	var req service.VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.Approve(c.Request.Context(), reportKey(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, r)
}

// Reject 驳回报告
// @Summary      驳回报告
// @Tags         审核
// @Accept       json
// @Produce      json
// @Param        charityId  path      string                       true  "慈善机构 ID"
// @Param        projectId  path      string                       true  "项目 ID"
// @Param        request    body      service.RejectReportRequest  true  "驳回意见"
// @Success      200        {object}  Response
// @Failure      409        {object}  ErrorResponse
// @Failure      422        {object}  ValidationErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/reject [post]
func (ctrl *ReportController) Reject(c *gin.Context) {
	var req service.RejectReportRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.Reject(c.Request.Context(), reportKey(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, r)
}

// Resume 恢复编辑
// @Summary      恢复编辑
// @Description  驳回后重新打开报告,保留驳回意见
// @Tags         报告
// @Accept       json
// @Produce      json
// @Param        charityId  path      string                  true   "慈善机构 ID"
// @Param        projectId  path      string                  true   "项目 ID"
// @Param        request    body      service.VersionRequest  false  "版本"
// @Success      200        {object}  Response
// @Failure      409        {object}  ErrorResponse
// @Router       /charities/{charityId}/projects/{projectId}/report/resume [post]
func (ctrl *ReportController) Resume(c *gin.Context) {
	var req service.VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, err := ctrl.reportService.Resume(c.Request.Context(), reportKey(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, r)
}

// History 状态历史
// @Summary      状态历史
// @Tags         报告
// @Produce      json
// @Param        charityId  path      string  true  "慈善机构 ID"
// @Param        projectId  path      string  true  "项目 ID"
// @Success      200        {object}  Response
// @Router       /charities/{charityId}/projects/{projectId}/report/history [get]
func (ctrl *ReportController) History(c *gin.Context) {
	entries, err := ctrl.reportService.History(c.Request.Context(), reportKey(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, entries)
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}
