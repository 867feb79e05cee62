package http

import (
	"context"
	"net/http"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/internal/core/services"
	apperrors "ndilive/pkg/errors"
	"ndilive/pkg/tracing"
	"ndilive/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SourceHandler struct {
	discovery *services.DiscoveryRegistry
	directory ports.SourceDirectory
	logger    *zap.SugaredLogger
}

// NewSourceHandler serves the shared discovery snapshot. directory may be
// nil when no source directory is configured.
func NewSourceHandler(discovery *services.DiscoveryRegistry, directory ports.SourceDirectory, logger *zap.SugaredLogger) *SourceHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SourceHandler{discovery: discovery, directory: directory, logger: logger}
}

func (h *SourceHandler) ListSources(c *gin.Context) {
	monitor, err := h.discovery.Shared()
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	sources := monitor.Sources()
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// GetSource looks a source up by name. With a timeout it waits for the
// source to appear; without one only the current snapshot is searched.
func (h *SourceHandler) GetSource(c *gin.Context) {
	name, err := sourceName(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	timeout, err := queryDuration(c, "timeout", 0)
	if err != nil {
		_ = c.Error(err)
		return
	}

	monitor, err := h.discovery.Shared()
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	ctx, span := tracing.TraceSourceLookup(c.Request.Context(), name)
	defer span.End()

	var (
		src   domain.Source
		found bool
	)
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		src, found = monitor.FindSourceByName(ctx, name)
		cancel()
	} else {
		for _, s := range monitor.Sources() {
			if s.Name == name {
				src, found = s, true
				break
			}
		}
	}

	if !found {
		h.logger.Debugw("source lookup missed", "source", name, "timeout", timeout)
		_ = c.Error(apperrors.NewNotFoundError("source").WithDetail("name", name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

// GetInstanceSources returns the snapshot another instance published to
// the source directory.
func (h *SourceHandler) GetInstanceSources(c *gin.Context) {
	if h.directory == nil {
		_ = c.Error(apperrors.NewServiceUnavailableError("source directory is not enabled"))
		return
	}

	instance := c.Param("instance")
	if err := validation.ValidateInstanceID(instance); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	sources, err := h.directory.Lookup(c.Request.Context(), instance)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instance": instance,
		"sources":  sources,
		"count":    len(sources),
	})
}

// sourceName returns the validated :name path parameter.
func sourceName(c *gin.Context) (string, error) {
	name := c.Param("name")
	if err := validation.ValidateSourceName(name); err != nil {
		return "", apperrors.NewInvalidInputError(err.Error())
	}
	return name, nil
}

func queryDuration(c *gin.Context, key string, def time.Duration) (time.Duration, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, apperrors.NewInvalidInputError(key + " must be a non-negative duration such as 5s")
	}
	return d, nil
}
