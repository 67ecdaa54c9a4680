package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"video_processor_worker/pkg/logger"

	"go.uber.org/zap"
)

// 讓 test 可以替換檔案系統操作
var (
	makeTempDir = os.MkdirTemp
	makeDir     = func(path string) error {
		return os.MkdirAll(path, 0755)
	}
	removeAll = os.RemoveAll
)

// Workspaces allocate job scoped scratch directories under root
type Workspaces struct {
	root string
}

// NewWorkspaces create Workspaces
func NewWorkspaces(root string) *Workspaces {
	return &Workspaces{root: root}
}

// Workspace 單一 job 專用的暫存目錄 (raw + out)，不與其他 job 共用
type Workspace struct {
	JobID     string
	Dir       string
	RawDir    string
	OutputDir string

	once       sync.Once
	releaseErr error
}

// Acquire create <root>/<jobID>-<random>/{raw,out}
func (w *Workspaces) Acquire(jobID string) (*Workspace, error) {
	if err := makeDir(w.root); err != nil {
		return nil, fmt.Errorf("建立暫存根目錄失敗: %w", err)
	}

	// 同一個 job 重複投遞也會拿到不同目錄
	dir, err := makeTempDir(w.root, jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("建立 job 暫存目錄失敗: %w", err)
	}

	ws := &Workspace{
		JobID:     jobID,
		Dir:       dir,
		RawDir:    filepath.Join(dir, "raw"),
		OutputDir: filepath.Join(dir, "out"),
	}
	for _, d := range []string{ws.RawDir, ws.OutputDir} {
		if err := makeDir(d); err != nil {
			_ = ws.Release()
			return nil, fmt.Errorf("建立暫存目錄[%s]失敗: %w", d, err)
		}
	}
	return ws, nil
}

// Release remove the whole job directory, only the first call does work
func (ws *Workspace) Release() error {
	ws.once.Do(func() {
		ws.releaseErr = removeAll(ws.Dir)
	})
	return ws.releaseErr
}

// With acquire a workspace, run fn and release it on every exit path.
// Release errors are logged, never returned.
func (w *Workspaces) With(jobID string, fn func(ws *Workspace) error) error {
	ws, err := w.Acquire(jobID)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logger.Log.Warn("清理暫存目錄失敗",
				zap.String("video_id", jobID),
				zap.String("dir", ws.Dir),
				zap.Error(err),
			)
		}
	}()

	return fn(ws)
}
