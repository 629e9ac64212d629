// ABOUTME: Periodic re-sync of regions the device is currently inside
// ABOUTME: Refreshes the cache without waiting for a new boundary crossing

package server

import (
	"context"
	"fmt"
	"time"
)

// Resync runs the sync engine for every registered region whose persisted
// state is inside. The location used is the one from the region's last ENTER,
// or the region center when none is known. It returns the number of regions
// synced; individual sync failures are logged and skipped.
func (s *Server) Resync(ctx context.Context) (int, error) {
	states, err := s.store.ListRegionStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing region states: %w", err)
	}

	synced := 0
	for _, st := range states {
		if !st.IsInside {
			continue
		}
		reg, ok := s.registry.Get(st.RegionID)
		if !ok {
			continue
		}

		loc, ok := s.dispatcher.LastLocation(st.RegionID)
		if !ok {
			loc = reg.Center
		}

		if err := ctx.Err(); err != nil {
			return synced, err
		}

		if _, err := s.engine.OnEnter(ctx, st.RegionID, loc); err != nil {
			s.logger.Warn("resync failed", "region_id", st.RegionID, "location", loc.String(), "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// resyncLoop calls Resync every interval until ctx is cancelled.
func (s *Server) resyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic resync enabled", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Resync(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("periodic resync failed", "error", err)
				continue
			}
			s.logger.Debug("periodic resync complete", "regions", n)
		}
	}
}
