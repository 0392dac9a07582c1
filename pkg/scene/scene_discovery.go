package scene

import (
	"fmt"
	"sort"
)

// SceneInfo describes a built-in scene
type SceneInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

type preset struct {
	info  SceneInfo
	build func() (*Root, *Camera)
}

var presets = map[string]preset{
	"default": {
		info: SceneInfo{
			ID:          "default",
			DisplayName: "Default",
			Description: "Diffuse and metal spheres under a sky",
		},
		build: func() (*Root, *Camera) { return NewDefaultScene() },
	},
	"spheregrid": {
		info: SceneInfo{
			ID:          "spheregrid",
			DisplayName: "Sphere Grid",
			Description: "A 10x10 grid of tinted metal spheres",
		},
		build: func() (*Root, *Camera) { return NewSphereGridScene(10) },
	},
}

// ListScenes returns every built-in scene sorted by display name
func ListScenes() []SceneInfo {
	scenes := make([]SceneInfo, 0, len(presets))
	for _, p := range presets {
		scenes = append(scenes, p.info)
	}
	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})
	return scenes
}

// Preset builds the named built-in scene
func Preset(name string) (*Root, *Camera, error) {
	p, ok := presets[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown scene: %q", name)
	}
	root, camera := p.build()
	return root, camera, nil
}
