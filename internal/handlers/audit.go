package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/response"
)

const ndjsonContentType = "application/x-ndjson"

// AuditHandler serves the read side of the audit trail.
type AuditHandler struct {
	reader *audit.Reader
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(reader *audit.Reader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// GET /api/audit/events
func (h *AuditHandler) Events(c *gin.Context) {
	filter, ok := auditFilter(c)
	if !ok {
		return
	}

	page := audit.Page{
		Limit:  parseIntQuery(c, "limit", audit.DefaultPageLimit),
		Offset: parseIntQuery(c, "offset", 0),
	}
	result, err := h.reader.Query(requestContext(c), filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result.Events, &response.Meta{
		Total:   result.Total,
		Limit:   result.Limit,
		Offset:  result.Offset,
		HasMore: result.HasMore,
	})
}

// GET /api/audit/summary
func (h *AuditHandler) Summary(c *gin.Context) {
	summary, err := h.reader.Summarize(requestContext(c), parseIntQuery(c, "window_days", 7))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// GET /api/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	filter, ok := auditFilter(c)
	if !ok {
		return
	}

	name := fmt.Sprintf("audit-%s.ndjson", time.Now().UTC().Format("20060102T150405Z"))
	c.Header("Content-Type", ndjsonContentType)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)

	n, err := h.reader.ExportNDJSON(requestContext(c), c.Writer, filter)
	if err != nil {
		// Headers are already out; the truncated body is all we can signal.
		logger.WithModule("audit").Error("audit export failed", zap.Int("written", n), zap.Error(err))
		_ = c.Error(err)
	}
}

func auditFilter(c *gin.Context) (audit.Filter, bool) {
	since, ok := parseTimeQuery(c, "since")
	if !ok {
		return audit.Filter{}, false
	}
	until, ok := parseTimeQuery(c, "until")
	if !ok {
		return audit.Filter{}, false
	}

	f := audit.Filter{
		UserEmail:      strings.ToLower(strings.TrimSpace(c.Query("user_email"))),
		Since:          since,
		Until:          until,
		ResourceType:   strings.TrimSpace(c.Query("resource_type")),
		ResourceName:   strings.TrimSpace(c.Query("resource_name")),
		ResourceSearch: strings.TrimSpace(c.Query("resource_search")),
		Action:         strings.TrimSpace(c.Query("action")),
	}

	for _, t := range queryList(c, "event_type") {
		f.EventTypes = append(f.EventTypes, audit.EventType(strings.ToUpper(t)))
	}
	for _, raw := range queryList(c, "severity") {
		sev, valid := audit.ParseSeverity(raw)
		if !valid {
			response.Error(c, errors.NewBadRequest(fmt.Sprintf("unknown severity %q", raw)))
			return audit.Filter{}, false
		}
		f.Severities = append(f.Severities, sev)
	}
	if raw := strings.TrimSpace(c.Query("min_severity")); raw != "" {
		sev, valid := audit.ParseSeverity(raw)
		if !valid {
			response.Error(c, errors.NewBadRequest(fmt.Sprintf("unknown severity %q", raw)))
			return audit.Filter{}, false
		}
		f.MinSeverity = sev
	}
	if raw := strings.TrimSpace(c.Query("result")); raw != "" {
		f.Result = audit.Result(strings.ToUpper(raw))
	}
	return f, true
}
