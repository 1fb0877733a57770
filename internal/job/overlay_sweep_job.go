package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/store"
)

// OverlaySweepJob removes overlay entries orphaned from every tracked list.
// Eviction only deletes entries it knows about; interrupted writes can leave
// strays that this sweep reclaims.
type OverlaySweepJob struct {
	overlays *store.OverlayStore
}

func NewOverlaySweepJob(overlays *store.OverlayStore) *OverlaySweepJob {
	return &OverlaySweepJob{overlays: overlays}
}

func (j *OverlaySweepJob) Name() string {
	return "overlay_sweep"
}

func (j *OverlaySweepJob) Run(ctx context.Context) error {
	if j.overlays == nil {
		return nil
	}
	removed, err := j.overlays.SweepOrphans(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("orphaned overlays removed", zap.Int("count", removed))
	}
	return nil
}
