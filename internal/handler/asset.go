package handler

import (
	"log/slog"
	"net/http"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
)

// AssetHandler handles HTTP requests for asset endpoints.
type AssetHandler struct {
	assetSvc *service.AssetService
	logger   *slog.Logger
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(assetSvc *service.AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assetSvc: assetSvc, logger: logger}
}

type assetResponse struct {
	CustomerID string `json:"customerId"`
	AssetName  string `json:"assetName"`
	Size       string `json:"size"`
	UsableSize string `json:"usableSize"`
	Reserved   string `json:"reserved"`
	UpdatedAt  string `json:"updatedAt"`
}

type assetListResponse struct {
	Assets []assetResponse `json:"assets"`
}

// ListAssets handles GET /api/assets.
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assets, err := h.assetSvc.ListAssets(r.Context(), q.Get("customerId"), q.Get("assetName"), CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, assetListResponse{Assets: buildAssetResponses(assets)})
}

func buildAssetResponses(assets []*domain.Asset) []assetResponse {
	result := make([]assetResponse, len(assets))
	for i, a := range assets {
		result[i] = assetResponse{
			CustomerID: a.CustomerID,
			AssetName:  a.Symbol,
			Size:       a.Size.StringFixed(domain.AmountScale),
			UsableSize: a.UsableSize.StringFixed(domain.AmountScale),
			Reserved:   a.Reserved().StringFixed(domain.AmountScale),
			UpdatedAt:  a.UpdatedAt.UTC().Format(timeLayout),
		}
	}
	return result
}
