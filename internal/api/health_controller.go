package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck 单项依赖检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthController 健康检查控制器
type HealthController struct {
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthController 创建健康检查控制器
func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

// Check 健康检查
// @Summary      健康检查
// @Description  检查数据库、OpenFGA 和 Redis 连接
// @Tags         系统
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthController) Check(c *gin.Context) {
	status := "healthy"
	checks := make(map[string]string, len(h.checks))

	for _, hc := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := hc.Check(ctx)
		cancel()

		if err != nil {
			status = "unhealthy"
			checks[hc.Name] = "unhealthy: " + err.Error()
			continue
		}
		checks[hc.Name] = "healthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
