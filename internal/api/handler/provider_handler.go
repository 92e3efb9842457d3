package handler

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/cuongbtq/invoice-notifier/internal/api/dto"
	"github.com/cuongbtq/invoice-notifier/internal/provider"
	"github.com/gin-gonic/gin"
)

// ProviderHandler serves the static provider catalog
type ProviderHandler struct {
	logger      *slog.Logger
	catalogPath string
}

// NewProviderHandler creates a new ProviderHandler instance
func NewProviderHandler(deps *Dependencies) *ProviderHandler {
	return &ProviderHandler{
		logger:      deps.Logger,
		catalogPath: deps.CatalogPath,
	}
}

// ListProviders handles GET /providers. The catalog is re-read on every
// request; logo paths are relative to the catalog file.
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	catalog, err := provider.LoadCatalog(h.catalogPath)
	if err != nil {
		h.logger.Error("Failed to load provider catalog", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load providers"})
		return
	}

	listings := catalog.Listings(filepath.Dir(h.catalogPath), h.logger)

	c.JSON(http.StatusOK, dto.ProvidersResponse{
		Providers: listings,
		Count:     len(listings),
	})
}
