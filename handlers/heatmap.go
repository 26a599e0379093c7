package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"

	"safety-poll-service/metrics"
	"safety-poll-service/models"
)

// GetHeatmap handles GET /api/heatmap?minLat=&minLng=&maxLat=&maxLng=
// With format=geojson the overlay is returned as a FeatureCollection.
func (h *Handlers) GetHeatmap(c *gin.Context) {
	vp, msg := parseViewport(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, msg))
		return
	}

	start := time.Now()
	points, err := h.overlay.HeatmapOverlay(c.Request.Context(), vp)
	if err != nil {
		log.Errorf("Error computing heatmap overlay: %v", err)
		c.JSON(http.StatusInternalServerError, models.Fail(models.ErrKindInternal, "internal error"))
		return
	}
	metrics.HeatmapDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.HeatmapPoints.Observe(float64(len(points)))

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, models.OK(overlayFeatureCollection(points)))
		return
	}

	c.JSON(http.StatusOK, models.OK(points))
}

// overlayFeatureCollection renders overlay points as GeoJSON point
// features; coordinates are [lng, lat] per the GeoJSON spec.
func overlayFeatureCollection(points []models.HeatmapPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		f := geojson.NewPointFeature([]float64{p.Longitude, p.Latitude})
		f.SetProperty("riskScore", p.RiskScore)
		f.SetProperty("sampleSize", p.SampleSize)
		f.SetProperty("radius", p.Radius)
		fc.AddFeature(f)
	}
	return fc
}

func parseViewport(c *gin.Context) (models.ViewPort, string) {
	var vp models.ViewPort
	fields := []struct {
		name string
		dst  *float64
		min  float64
		max  float64
	}{
		{"minLat", &vp.LatMin, -90, 90},
		{"minLng", &vp.LonMin, -180, 180},
		{"maxLat", &vp.LatMax, -90, 90},
		{"maxLng", &vp.LonMax, -180, 180},
	}
	for _, f := range fields {
		raw, ok := c.GetQuery(f.name)
		if !ok {
			return vp, f.name + " is required"
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return vp, f.name + " must be a number"
		}
		if v < f.min || v > f.max {
			return vp, f.name + " is out of range"
		}
		*f.dst = v
	}
	if vp.LatMin > vp.LatMax {
		return vp, "minLat must not exceed maxLat"
	}
	if vp.LonMin > vp.LonMax {
		return vp, "minLng must not exceed maxLng"
	}
	return vp, ""
}
