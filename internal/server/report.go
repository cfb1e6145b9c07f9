package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reportdomain "github.com/smallbiznis/floodwatch/internal/report/domain"
)

type StatusRequest struct {
	Status string `json:"status"`
}

type VerifyRequest struct {
	Verified *bool `json:"verified"`
}

func reportID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil || id == 0 {
		AbortWithError(c, reportdomain.ErrReportNotFound)
		return 0, false
	}
	return id, true
}

func (s *Server) SubmitReport(c *gin.Context) {
	var req reportdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.reportsvc.Submit(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dataResponse{Success: true, Message: "Report submitted", Data: report})
}

func (s *Server) ListReports(c *gin.Context) {
	var req reportdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.reportsvc.List(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Data: res})
}

func (s *Server) GetReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}

	report, err := s.reportsvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Data: report})
}

func (s *Server) UpdateReportStatus(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.reportsvc.UpdateStatus(c.Request.Context(), currentIdentity(c), id, reportdomain.Status(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Report status updated", Data: report})
}

func (s *Server) VerifyReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}

	report, err := s.reportsvc.Verify(c.Request.Context(), currentIdentity(c), id, verified)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Report verification updated", Data: report})
}
