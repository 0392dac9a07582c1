package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/df07/go-progressive-bridge/pkg/core"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

// InspectResponse represents the JSON response for object inspection
type InspectResponse struct {
	Hit          bool                   `json:"hit"`
	MaterialType string                 `json:"materialType,omitempty"`
	Point        [3]float64             `json:"point"`
	Normal       [3]float64             `json:"normal"`
	Distance     float64                `json:"distance"`
	FrontFace    bool                   `json:"frontFace"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

func hexColor(c core.Vec3) string {
	clamp := func(v float64) int { return int(math.Max(0, math.Min(1, v)) * 255) }
	return fmt.Sprintf("#%02x%02x%02x", clamp(c.X), clamp(c.Y), clamp(c.Z))
}

func vec3Array(v core.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// extractMaterialInfo extracts material information with type assertions
func extractMaterialInfo(mat scene.Material) (string, map[string]interface{}) {
	properties := make(map[string]interface{})

	switch m := mat.(type) {
	case *scene.Lambertian:
		properties["albedo"] = vec3Array(m.Albedo)
		properties["color"] = hexColor(m.Albedo)
		return "lambertian", properties

	case *scene.Metal:
		properties["albedo"] = vec3Array(m.Albedo)
		properties["color"] = hexColor(m.Albedo)
		properties["fuzzness"] = m.Fuzzness
		return "metal", properties

	case *scene.Emissive:
		properties["emission"] = vec3Array(m.Emission)
		properties["color"] = hexColor(m.Emission)
		return "emissive", properties

	default:
		return "unknown", properties
	}
}

// inspectPixel casts a ray through the pixel centre and returns the nearest
// sphere hit. Row 0 is the top of the image.
func inspectPixel(root *scene.Root, camera *scene.Camera, width, height, pixelX, pixelY int) (scene.Hit, *scene.Sphere, bool) {
	camera.SetAspect(float64(width) / float64(height))

	u := (float64(pixelX) + 0.5) / float64(width)
	v := (float64(height-1-pixelY) + 0.5) / float64(height)
	ray := camera.GetRay(u, v)

	closest := math.Inf(1)
	var best scene.Hit
	var bestSphere *scene.Sphere
	for _, sphere := range root.Spheres() {
		if hit, ok := sphere.Hit(ray, 0.001, closest); ok {
			closest = hit.T
			best = hit
			bestSphere = sphere
		}
	}
	return best, bestSphere, bestSphere != nil
}

// handleInspect reports what the given pixel of a built-in scene shows
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sceneName := query.Get("scene")
	if sceneName == "" {
		sceneName = defaultScene
	}
	root, camera, err := scene.Preset(sceneName)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	width, err := parseIntParam(query.Get("width"), "width", s.cfg.Width, 1, maxViewport)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := parseIntParam(query.Get("height"), "height", s.cfg.Height, 1, maxViewport)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	pixelX, errX := strconv.Atoi(query.Get("x"))
	pixelY, errY := strconv.Atoi(query.Get("y"))
	if errX != nil || errY != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid pixel coordinates")
		return
	}
	if pixelX < 0 || pixelX >= width || pixelY < 0 || pixelY >= height {
		writeJSONError(w, http.StatusBadRequest, "Pixel coordinates out of bounds")
		return
	}

	hit, sphere, ok := inspectPixel(root, camera, width, height, pixelX, pixelY)
	if !ok {
		writeJSON(w, http.StatusOK, InspectResponse{Hit: false})
		return
	}

	materialType, materialProps := extractMaterialInfo(hit.Material)
	writeJSON(w, http.StatusOK, InspectResponse{
		Hit:          true,
		MaterialType: materialType,
		Point:        vec3Array(hit.Point),
		Normal:       vec3Array(hit.Normal),
		Distance:     hit.T,
		FrontFace:    hit.FrontFace,
		Properties: map[string]interface{}{
			"material": materialProps,
			"geometry": map[string]interface{}{
				"center": vec3Array(sphere.Center),
				"radius": sphere.Radius,
			},
		},
	})
}
