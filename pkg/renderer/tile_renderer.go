package renderer

import (
	"image"
	"math/rand"

	"github.com/df07/go-progressive-bridge/pkg/core"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

// Tile represents a rectangular region of the image to be rendered
type Tile struct {
	ID     int             // Unique tile identifier
	Bounds image.Rectangle // Pixel bounds (x0,y0,x1,y1)
	Random *rand.Rand      // Tile-specific random generator for deterministic results
}

// NewTile creates a new tile with the specified bounds
func NewTile(id int, bounds image.Rectangle) *Tile {
	return &Tile{
		ID:     id,
		Bounds: bounds,
		Random: rand.New(rand.NewSource(int64(id + 42))), // +42 to avoid seed 0
	}
}

// NewTileGrid creates a grid of tiles covering the entire image
func NewTileGrid(width, height, tileSize int) []*Tile {
	if width <= 0 || height <= 0 {
		return nil
	}
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}

	var tiles []*Tile
	tileID := 0

	tilesX := (width + tileSize - 1) / tileSize // Ceiling division
	tilesY := (height + tileSize - 1) / tileSize

	for tileY := 0; tileY < tilesY; tileY++ {
		for tileX := 0; tileX < tilesX; tileX++ {
			x0 := tileX * tileSize
			y0 := tileY * tileSize
			x1 := min(x0+tileSize, width) // Don't exceed image bounds
			y1 := min(y0+tileSize, height)

			tiles = append(tiles, NewTile(tileID, image.Rect(x0, y0, x1, y1)))
			tileID++
		}
	}

	return tiles
}

// frameJob is the per-render snapshot handed to workers. Workers only read it.
type frameJob struct {
	pipeline           *pipeline
	camera             scene.Camera
	environment        *scene.Environment
	width, height      int
	bounces            int
	envIntensity       float64
	environmentVisible bool
}

// TileRenderer traces the pixels of one tile into an accumulation buffer
type TileRenderer struct {
	job *frameJob
}

// NewTileRenderer creates a tile renderer for job
func NewTileRenderer(job *frameJob) *TileRenderer {
	return &TileRenderer{job: job}
}

// RenderTileBounds takes one sample for every pixel within bounds. Pixel row 0
// is the top of the image.
func (tr *TileRenderer) RenderTileBounds(bounds image.Rectangle, pixelStats [][]PixelStats, random *rand.Rand) RenderStats {
	job := tr.job
	stats := RenderStats{TotalPixels: bounds.Dx() * bounds.Dy(), MinSamples: 1, MaxSamplesUsed: 1}

	for j := bounds.Min.Y; j < bounds.Max.Y; j++ {
		for i := bounds.Min.X; i < bounds.Max.X; i++ {
			s := (float64(i) + random.Float64()) / float64(job.width)
			t := (float64(job.height-1-j) + random.Float64()) / float64(job.height)

			ray := job.camera.GetRay(s, t)
			color, depth := tr.rayColor(ray, random)
			pixelStats[j][i].AddSample(color, depth)
			stats.TotalSamples++
		}
	}

	if stats.TotalPixels > 0 {
		stats.AverageSamples = float64(stats.TotalSamples) / float64(stats.TotalPixels)
	}
	return stats
}

// rayColor traces a path and returns its radiance and the distance to the
// first hit (0 when the camera ray escapes)
func (tr *TileRenderer) rayColor(ray core.Ray, random *rand.Rand) (core.Vec3, float64) {
	job := tr.job
	radiance := core.Vec3{}
	throughput := core.NewVec3(1, 1, 1)
	depth := 0.0

	// The camera ray plus one segment per bounce
	for segment := 0; segment <= job.bounces; segment++ {
		hit, isHit := job.pipeline.hitWorld(ray, 0.001, 1e6)
		if !isHit {
			if segment > 0 || job.environmentVisible {
				sky := job.environment.Radiance(ray.Direction).Multiply(job.envIntensity)
				radiance = radiance.Add(throughput.MultiplyVec(sky))
			}
			break
		}
		if segment == 0 {
			depth = hit.T * ray.Direction.Length()
		}

		radiance = radiance.Add(throughput.MultiplyVec(hit.Material.Emitted()))

		scatter, didScatter := hit.Material.Scatter(ray, hit, random)
		if !didScatter {
			break // Material absorbed the ray
		}
		throughput = throughput.MultiplyVec(scatter.Attenuation)
		ray = scatter.Ray
	}

	return radiance, depth
}
