package handler

import (
	"bytes"
	"net/http"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/0Calories/hibana-sub000/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

type flamePayload struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Color                string `json:"color"`
	Mode                 string `json:"mode"`
	BudgetMinutes        int    `json:"budget_minutes"`
	CountTarget          int    `json:"count_target"`
	CountUnit            string `json:"count_unit"`
	Daily                bool   `json:"daily"`
	SealThresholdMinutes int    `json:"seal_threshold_minutes"`
}

// ListFlames 返回当前用户的火苗列表
func (a *API) ListFlames(c *gin.Context) {
	filter := service.FlameFilter{
		UserID:          currentUserID(c),
		IncludeArchived: c.Query("archived") == "true",
		Search:          c.Query("search"),
	}

	flames, err := a.flames.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取火苗列表失败")
		return
	}

	items := make([]gin.H, 0, len(flames))
	for _, flame := range flames {
		items = append(items, flameToPayload(flame))
	}

	c.JSON(http.StatusOK, gin.H{"flames": items})
}

// GetFlame 返回单个火苗详情，Description 以净化后的 HTML 附带返回
func (a *API) GetFlame(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的火苗ID")
		return
	}

	flame, err := a.flames.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	payload := flameToPayload(*flame)
	if rendered, err := renderMarkdown(flame.Description); err == nil {
		payload["description_html"] = rendered
	}

	c.JSON(http.StatusOK, gin.H{"flame": payload})
}

// CreateFlame 创建火苗
func (a *API) CreateFlame(c *gin.Context) {
	var payload flamePayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	flame, err := a.flames.Create(currentUserID(c), payloadToInput(payload))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"flame": flameToPayload(*flame)})
}

// UpdateFlame 更新火苗
func (a *API) UpdateFlame(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的火苗ID")
		return
	}

	var payload flamePayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	flame, err := a.flames.Update(id, payloadToInput(payload))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"flame": flameToPayload(*flame)})
}

// ArchiveFlame 归档火苗（软删除）
func (a *API) ArchiveFlame(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的火苗ID")
		return
	}

	if err := a.flames.Archive(id); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"archived": true})
}

func payloadToInput(payload flamePayload) service.FlameInput {
	return service.FlameInput{
		Name:                 payload.Name,
		Description:          payload.Description,
		Color:                payload.Color,
		Mode:                 payload.Mode,
		BudgetMinutes:        payload.BudgetMinutes,
		CountTarget:          payload.CountTarget,
		CountUnit:            payload.CountUnit,
		Daily:                payload.Daily,
		SealThresholdMinutes: payload.SealThresholdMinutes,
	}
}

func flameToPayload(flame db.Flame) gin.H {
	return gin.H{
		"id":                     flame.ID,
		"name":                   flame.Name,
		"description":            flame.Description,
		"color":                  flame.Color,
		"mode":                   flame.Mode,
		"budget_minutes":         flame.BudgetMinutes,
		"count_target":           flame.CountTarget,
		"count_unit":             flame.CountUnit,
		"daily":                  flame.Daily,
		"seal_threshold_minutes": flame.SealThresholdMinutes,
		"seal_threshold_seconds": service.SealThresholdSeconds(flame),
		"archived":               flame.Archived,
	}
}

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}
