// Package handler 提供监考服务的管理接口与会话监听器。
package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/proctor"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
	"github.com/lk2023060901/xdooria-proctor/pkg/web"
	"github.com/lk2023060901/xdooria-proctor/pkg/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler 管理接口
type AdminHandler struct {
	sdk      *proctor.SDK
	gatherer prometheus.Gatherer
	logger   logger.Logger
}

// NewAdminHandler 创建管理接口处理器，gatherer 为 nil 时不注册 /metrics
func NewAdminHandler(sdk *proctor.SDK, g prometheus.Gatherer, l logger.Logger) *AdminHandler {
	return &AdminHandler{
		sdk:      sdk,
		gatherer: g,
		logger:   l.Named("handler.admin"),
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Listen   string `json:"listen,omitempty"`
}

// SessionView 会话快照及其底层连接状态，连接已移出连接池时 Connection 为空
type SessionView struct {
	session.Info
	Connection *websocket.ConnectionInfo `json:"connection,omitempty"`
}

// Register 注册路由
func (h *AdminHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/installers", h.Installers)

	sessions := r.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSessions)
		sessions.DELETE("/:id", h.DisconnectSessions)
	}

	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// Health 健康检查
func (h *AdminHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Sessions: h.sdk.SessionCount(),
	}
	if addr := h.sdk.Addr(); addr != nil {
		resp.Listen = addr.String()
	}
	web.Success(c, resp)
}

// Installers 返回客户端安装包下载地址，?os= 指定系统时只返回对应地址
func (h *AdminHandler) Installers(c *gin.Context) {
	links := h.sdk.InstallerLinks()

	osName := c.Query("os")
	if osName == "" {
		web.Success(c, links)
		return
	}

	link, ok := links[osName]
	if !ok {
		web.Error(c, http.StatusNotFound, web.CodeNotFound, "no installer for os "+osName)
		return
	}
	web.Success(c, gin.H{"os": osName, "url": link})
}

// ListSessions 列出当前会话，按建立时间排序
func (h *AdminHandler) ListSessions(c *gin.Context) {
	web.Success(c, h.sessionViews(""))
}

// GetSessions 返回指定会话 ID 的所有连接，同一 ID 可能对应多个连接
func (h *AdminHandler) GetSessions(c *gin.Context) {
	views := h.sessionViews(c.Param("id"))
	if len(views) == 0 {
		web.Error(c, http.StatusNotFound, web.CodeNotFound, "session not found")
		return
	}
	web.Success(c, views)
}

// DisconnectSessions 主动断开指定会话 ID 的所有连接
func (h *AdminHandler) DisconnectSessions(c *gin.Context) {
	id := c.Param("id")

	closed := 0
	for _, s := range h.sdk.Registry().Snapshot() {
		if s.ID() != id {
			continue
		}
		if err := s.Disconnect(); err != nil {
			h.logger.Warn("failed to disconnect session", "session_id", id, "conn_id", s.ConnID(), "error", err)
			continue
		}
		closed++
	}

	if closed == 0 {
		web.Error(c, http.StatusNotFound, web.CodeNotFound, "session not found")
		return
	}
	h.logger.Info("sessions disconnected by admin", "session_id", id, "count", closed)
	web.Success(c, gin.H{"disconnected": closed})
}

func (h *AdminHandler) sessionViews(id string) []SessionView {
	sessions := h.sdk.Registry().Snapshot()
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		if id != "" && s.ID() != id {
			continue
		}
		v := SessionView{Info: s.Info()}
		if ci, ok := h.sdk.Connection(s.ConnID()); ok {
			v.Connection = &ci
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].StartTime.Before(views[j].StartTime)
	})
	return views
}
