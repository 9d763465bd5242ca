package api

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"interpharma-gateway/internal/common/errors"
	"interpharma-gateway/internal/common/validation"
	"interpharma-gateway/internal/gateway"
	"interpharma-gateway/internal/gateway/disclaimer"
	"interpharma-gateway/internal/models"
)

type queryRequest struct {
	Message  string `json:"message"`
	Mode     string `json:"mode"`
	Language string `json:"language"`
}

type reportRequest struct {
	Topic     string `json:"topic"`
	Disease   string `json:"disease"`
	Region    string `json:"region"`
	TimeRange string `json:"timeRange"`
	Language  string `json:"language"`
	Mode      string `json:"mode"`
}

// plainResponse carries the disclaimer twice: Text already ends with it, and
// Disclaimer repeats it for clients that style it apart. Such clients must
// render Text with the disclaimer suffix trimmed, or show Text alone.
type plainResponse struct {
	Text       string            `json:"text"`
	Model      models.ModelLabel `json:"model"`
	Disclaimer string            `json:"disclaimer"`
	Cached     bool              `json:"cached,omitempty"`
}

type structuredResponse struct {
	Structured bool              `json:"structured"`
	Overview   string            `json:"overview"`
	KeyPoints  string            `json:"keyPoints"`
	Safety     string            `json:"safety"`
	Counseling string            `json:"counseling"`
	Refer      string            `json:"refer"`
	Model      models.ModelLabel `json:"model"`
	Disclaimer string            `json:"disclaimer"`
	Cached     bool              `json:"cached,omitempty"`
}

func (s *Server) plainQuery(persona models.Persona) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body queryRequest
		if !s.decode(c, validation.QueryValidator, &body) {
			return
		}
		q, err := models.NewQuery(body.Message, body.Mode, body.Language)
		if err != nil {
			s.fail(c, errors.NewInvalidInputError(err.Error()))
			return
		}
		s.answer(c, persona, q)
	}
}

func (s *Server) report(c *gin.Context) {
	var body reportRequest
	if !s.decode(c, validation.ReportValidator, &body) {
		return
	}
	q, err := models.NewQuery(body.Topic, body.Mode, body.Language)
	if err != nil {
		s.fail(c, errors.NewInvalidInputError(err.Error()))
		return
	}
	q = q.WithReport(models.ReportDetails{
		Disease:   body.Disease,
		Region:    body.Region,
		TimeRange: body.TimeRange,
	})
	s.answer(c, models.PersonaReport, q)
}

func (s *Server) medicalChat(c *gin.Context) {
	var body queryRequest
	if !s.decode(c, validation.QueryValidator, &body) {
		return
	}
	q, err := models.NewQuery(body.Message, body.Mode, body.Language)
	if err != nil {
		s.fail(c, errors.NewInvalidInputError(err.Error()))
		return
	}
	s.answer(c, models.PersonaMedicalChat, q)
}

func (s *Server) medicalInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "medical-chat", "env": s.cfg.Environment})
}

// decode reads, schema-checks and unmarshals the body, writing a 400 on failure.
func (s *Server) decode(c *gin.Context, v *validation.Validator, dst interface{}) bool {
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.fail(c, errors.NewInvalidInputError("request body too large"))
			return false
		}
		s.fail(c, errors.NewInvalidInputError("unreadable request body"))
		return false
	}

	result := v.Validate(raw)
	if !result.Valid {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid input",
			"code":    errors.ErrCodeInvalidInput,
			"details": result.Errors,
		})
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		s.fail(c, errors.NewInvalidInputError(err.Error()))
		return false
	}
	return true
}

func (s *Server) answer(c *gin.Context, persona models.Persona, q models.Query) {
	resp, err := s.gw.Handle(c.Request.Context(), gateway.Request{
		RequestID: c.GetString(ctxRequestID),
		ClientID:  c.ClientIP(),
		Persona:   persona,
		Query:     q,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	if resp.RateLimited {
		secs := int(math.Ceil(resp.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	a := resp.Answer
	if a.Kind == models.KindStructured && a.Sections != nil {
		c.JSON(http.StatusOK, structuredResponse{
			Structured: true,
			Overview:   a.Sections.Overview,
			KeyPoints:  a.Sections.KeyPoints,
			Safety:     a.Sections.SafetyNotes,
			Counseling: a.Sections.CounselingTips,
			Refer:      a.Sections.ReferToDoctor,
			Model:      a.ModelLabel,
			Disclaimer: a.Disclaimer,
			Cached:     a.Cached,
		})
		return
	}
	c.JSON(http.StatusOK, plainResponse{
		Text:       a.PlainText,
		Model:      a.ModelLabel,
		Disclaimer: disclaimer.Text,
		Cached:     a.Cached,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	stdErr := errors.AsStandard(err)
	status := errors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", map[string]interface{}{
			"requestId": c.GetString(ctxRequestID),
			"error":     stdErr.Error(),
		})
		c.AbortWithStatusJSON(status, gin.H{"error": "Internal server error", "code": stdErr.Code})
		return
	}
	body := gin.H{"error": stdErr.Message, "code": stdErr.Code}
	if stdErr.Details != "" {
		body["details"] = stdErr.Details
	}
	c.AbortWithStatusJSON(status, body)
}
