package renderer

import (
	"runtime"
	"sync"
)

// TileTask represents a tile rendering task for the worker pool
type TileTask struct {
	Tile       *Tile
	TaskID     int // Index into the submitted batch
	Job        *frameJob
	PixelStats [][]PixelStats // Shared pixel stats array to write to
}

// TileResult contains the result from rendering a tile
type TileResult struct {
	TaskID int
	Stats  RenderStats
}

// WorkerPool manages parallel tile rendering
type WorkerPool struct {
	taskQueue   chan TileTask
	resultQueue chan TileResult
	numWorkers  int
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	// Queues hold one bounded batch; RenderTiles never submits more than this
	// before draining results
	capacity := numWorkers * 4

	return &WorkerPool{
		taskQueue:   make(chan TileTask, capacity),
		resultQueue: make(chan TileResult, capacity),
		numWorkers:  numWorkers,
	}
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
}

// Stop gracefully shuts down all workers. Safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		wp.wg.Wait()        // Wait for workers to finish
		close(wp.resultQueue)
	})
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// RenderTiles renders every tile of the list for job and blocks until all are
// done. Each tile has non-overlapping bounds, so workers write the shared
// buffer without locking.
func (wp *WorkerPool) RenderTiles(job *frameJob, tiles []*Tile, pixelStats [][]PixelStats) RenderStats {
	total := RenderStats{}
	batch := cap(wp.taskQueue)

	for start := 0; start < len(tiles); start += batch {
		end := min(start+batch, len(tiles))
		for i := start; i < end; i++ {
			wp.taskQueue <- TileTask{
				Tile:       tiles[i],
				TaskID:     i,
				Job:        job,
				PixelStats: pixelStats,
			}
		}
		for i := start; i < end; i++ {
			result := <-wp.resultQueue
			total.TotalPixels += result.Stats.TotalPixels
			total.TotalSamples += result.Stats.TotalSamples
		}
	}

	if total.TotalPixels > 0 {
		total.AverageSamples = float64(total.TotalSamples) / float64(total.TotalPixels)
	}
	return total
}

// run is the main worker loop
func (wp *WorkerPool) run() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		stats := NewTileRenderer(task.Job).RenderTileBounds(task.Tile.Bounds, task.PixelStats, task.Tile.Random)
		wp.resultQueue <- TileResult{TaskID: task.TaskID, Stats: stats}
	}
}
